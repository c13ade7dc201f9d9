package stream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"

	"routerwatch/internal/model"
)

type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// GRPCClient pushes cycle frames over one long-lived client stream, JSON encoded.
type GRPCClient struct {
	mu sync.Mutex

	logger       *slog.Logger
	addr         string
	tlsConfig    *tls.Config
	token        string
	cycleMethod  string
	conn         *grpc.ClientConn
	cycleStream  grpc.ClientStream
	streamCancel context.CancelFunc
}

func NewGRPCClient(addr string, tlsCfg *tls.Config, token, cycleMethod string, logger *slog.Logger) *GRPCClient {
	return &GRPCClient{
		logger:      logger,
		addr:        addr,
		tlsConfig:   tlsCfg,
		token:       token,
		cycleMethod: cycleMethod,
	}
}

func (c *GRPCClient) SendCycle(ctx context.Context, snap model.CycleSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureConnLocked(); err != nil {
		return err
	}
	if c.cycleStream == nil {
		if err := c.openCycleStreamLocked(); err != nil {
			return err
		}
	}
	frame := NewCycleFrame(snap)
	if err := c.sendLocked(ctx, frame); err != nil {
		c.logger.Warn("grpc cycle send failed, reopening stream", "error", err)
		c.closeStreamLocked()
		if err2 := c.openCycleStreamLocked(); err2 != nil {
			return fmt.Errorf("reopen cycle stream: %w", err2)
		}
		if err2 := c.sendLocked(ctx, frame); err2 != nil {
			return fmt.Errorf("send cycle frame: %w", err2)
		}
	}
	return nil
}

// sendLocked bounds SendMsg, which can block on flow control, by ctx.
func (c *GRPCClient) sendLocked(ctx context.Context, frame CycleFrame) error {
	s := c.cycleStream
	done := make(chan error, 1)
	go func() { done <- s.SendMsg(frame) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.closeStreamLocked()
		return ctx.Err()
	}
}

func (c *GRPCClient) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeStreamLocked()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *GRPCClient) closeStreamLocked() {
	if c.cycleStream != nil {
		_ = c.cycleStream.CloseSend()
		c.cycleStream = nil
	}
	if c.streamCancel != nil {
		c.streamCancel()
		c.streamCancel = nil
	}
}

func (c *GRPCClient) ensureConnLocked() error {
	if c.conn != nil {
		return nil
	}

	var creds credentials.TransportCredentials
	if c.tlsConfig != nil {
		creds = credentials.NewTLS(c.tlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.NewClient(
		c.addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return fmt.Errorf("grpc client %s: %w", c.addr, err)
	}
	c.conn = conn
	c.logger.Info("grpc stream client created", "addr", c.addr)
	return nil
}

func (c *GRPCClient) openCycleStreamLocked() error {
	if c.conn == nil {
		return errors.New("grpc conn is nil")
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	if c.token != "" {
		streamCtx = metadata.AppendToOutgoingContext(streamCtx, "authorization", "Bearer "+c.token)
	}
	s, err := c.conn.NewStream(streamCtx, &grpc.StreamDesc{ClientStreams: true}, c.cycleMethod)
	if err != nil {
		cancel()
		return fmt.Errorf("open cycle stream: %w", err)
	}
	c.cycleStream = s
	c.streamCancel = cancel
	return nil
}
