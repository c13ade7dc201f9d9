package stream

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	ModeNone      = "none"
	ModeGRPC      = "grpc"
	ModeWebSocket = "websocket"

	DefaultCycleStreamMethod = "/routerwatch.telemetry.v1.TelemetryService/StreamCycles"
)

type Config struct {
	Mode         string
	GRPCAddr     string
	GRPCMethod   string
	WebSocketURL string
	Token        string
	WriteTimeout time.Duration
	PingInterval time.Duration
}

func NewSinkFromConfig(cfg Config, tlsCfg *tls.Config, logger *slog.Logger) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", ModeNone:
		return NopSink{}, nil
	case ModeGRPC:
		if cfg.GRPCAddr == "" {
			return nil, fmt.Errorf("stream mode %q requires a backend address", cfg.Mode)
		}
		method := cfg.GRPCMethod
		if method == "" {
			method = DefaultCycleStreamMethod
		}
		return NewGRPCClient(cfg.GRPCAddr, tlsCfg, cfg.Token, method, logger), nil
	case ModeWebSocket:
		if cfg.WebSocketURL == "" {
			return nil, fmt.Errorf("stream mode %q requires a backend url", cfg.Mode)
		}
		return NewWebSocketClient(cfg.WebSocketURL, cfg.Token, tlsCfg, cfg.WriteTimeout, cfg.PingInterval, logger), nil
	default:
		return nil, fmt.Errorf("unsupported stream mode %q", cfg.Mode)
	}
}
