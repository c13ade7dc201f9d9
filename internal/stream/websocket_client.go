package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"routerwatch/internal/model"
)

type WebSocketClient struct {
	mu sync.Mutex

	logger       *slog.Logger
	url          string
	token        string
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	pingInterval time.Duration
	conn         *websocket.Conn
	pingStop     chan struct{}
}

func NewWebSocketClient(url, token string, tlsCfg *tls.Config, writeTimeout, pingInterval time.Duration, logger *slog.Logger) *WebSocketClient {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 10 * time.Second
	}
	return &WebSocketClient{
		logger: logger,
		url:    url,
		token:  token,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 8 * time.Second,
			TLSClientConfig:  tlsCfg,
		},
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

func (c *WebSocketClient) SendCycle(ctx context.Context, snap model.CycleSnapshot) error {
	payload, err := EncodeEnvelope(NewCycleEnvelope(snap))
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureConnLocked(ctx); err != nil {
		return err
	}
	if err := c.writeLocked(ctx, payload); err != nil {
		c.logger.Warn("websocket write failed, reconnecting", "error", err)
		c.dropConnLocked()
		if err2 := c.ensureConnLocked(ctx); err2 != nil {
			return err2
		}
		if err2 := c.writeLocked(ctx, payload); err2 != nil {
			return fmt.Errorf("write envelope retry: %w", err2)
		}
	}
	return nil
}

func (c *WebSocketClient) writeLocked(ctx context.Context, payload []byte) error {
	deadline := time.Now().Add(c.writeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *WebSocketClient) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn := c.conn
	c.stopPingLocked()
	c.conn = nil
	return conn.Close()
}

func (c *WebSocketClient) dropConnLocked() {
	c.stopPingLocked()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *WebSocketClient) ensureConnLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.url, h)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial %s: %s: %w", c.url, resp.Status, err)
		}
		return fmt.Errorf("websocket dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(1 << 20)
	c.conn = conn
	c.startPingLoopLocked()
	c.logger.Info("websocket stream connected", "url", c.url)
	return nil
}

func (c *WebSocketClient) startPingLoopLocked() {
	c.stopPingLocked()
	stop := make(chan struct{})
	c.pingStop = stop
	conn := c.conn

	// Control frames are only processed while reading.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	go func(interval time.Duration) {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(3*time.Second)); err != nil {
					c.logger.Debug("websocket ping failed", "error", err)
				}
			}
		}
	}(c.pingInterval)
}

func (c *WebSocketClient) stopPingLocked() {
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
}
