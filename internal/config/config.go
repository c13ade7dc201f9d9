package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const Version = "v1.0.0"

type Config struct {
	CollectorID     string
	DevicesFile     string
	DataDir         string
	PollInterval    time.Duration
	Workers         int
	ErrorBackoff    time.Duration
	Timezone        string
	ShutdownTimeout time.Duration
	HealthInterval  time.Duration

	SNMPPort       int
	SNMPTimeout    time.Duration
	SNMPRetries    int
	SNMPRetryDelay time.Duration
	SNMPMaxOids    int

	NotifyMode       string
	TelegramToken    string
	TelegramChatID   string
	TelegramAPIURL   string
	NATSURL          string
	NATSSubject      string
	NotifyRetries    int
	NotifyRetryDelay time.Duration
	NotifyQueueSize  int
	NotifyRate       float64

	StreamMode            string
	BackendGRPCAddr       string
	BackendWSURL          string
	BackendToken          string
	GRPCCycleStreamMethod string
	WebSocketWriteTimeout time.Duration
	WebSocketPingInterval time.Duration
	TLSEnabled            bool
	TLSSkipVerify         bool
	TLSCAPath             string
	TLSCertPath           string
	TLSKeyPath            string

	APIListenAddr string
	APIJWTSecret  string

	LogJSON  bool
	LogLevel string
}

func Load() (Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	interval := envDuration("COLLECTOR_POLL_INTERVAL", 60*time.Second)
	cfg := Config{
		CollectorID:     env("COLLECTOR_ID", hostname),
		DevicesFile:     env("COLLECTOR_DEVICES_FILE", "devices.json"),
		DataDir:         env("COLLECTOR_DATA_DIR", "."),
		PollInterval:    interval,
		Workers:         envInt("COLLECTOR_WORKERS", 10),
		ErrorBackoff:    envDuration("COLLECTOR_ERROR_BACKOFF", 2*interval),
		Timezone:        env("COLLECTOR_TIMEZONE", "Local"),
		ShutdownTimeout: envDuration("COLLECTOR_SHUTDOWN_TIMEOUT", 20*time.Second),
		HealthInterval:  envDuration("HEALTH_INTERVAL", 30*time.Second),

		SNMPPort:       envInt("SNMP_PORT", 161),
		SNMPTimeout:    envDuration("SNMP_TIMEOUT", 2*time.Second),
		SNMPRetries:    envInt("SNMP_RETRIES", 2),
		SNMPRetryDelay: envDuration("SNMP_RETRY_DELAY", time.Second),
		SNMPMaxOids:    envInt("SNMP_MAX_OIDS", 60),

		NotifyMode:       strings.ToLower(env("NOTIFY_MODE", "log")),
		TelegramToken:    env("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   env("TELEGRAM_CHAT_ID", ""),
		TelegramAPIURL:   env("TELEGRAM_API_URL", "https://api.telegram.org"),
		NATSURL:          env("NATS_URL", "nats://127.0.0.1:4222"),
		NATSSubject:      env("NATS_SUBJECT", "routerwatch.alerts"),
		NotifyRetries:    envInt("NOTIFY_RETRIES", 3),
		NotifyRetryDelay: envDuration("NOTIFY_RETRY_DELAY", 5*time.Second),
		NotifyQueueSize:  envInt("NOTIFY_QUEUE_SIZE", 256),
		NotifyRate:       envFloat("NOTIFY_RATE", 1),

		StreamMode:            strings.ToLower(env("STREAM_MODE", "none")),
		BackendGRPCAddr:       env("BACKEND_GRPC_ADDR", ""),
		BackendWSURL:          env("BACKEND_WS_URL", ""),
		BackendToken:          env("BACKEND_TOKEN", ""),
		GRPCCycleStreamMethod: env("GRPC_CYCLE_STREAM_METHOD", "/routerwatch.telemetry.v1.TelemetryService/StreamCycles"),
		WebSocketWriteTimeout: envDuration("WS_WRITE_TIMEOUT", 5*time.Second),
		WebSocketPingInterval: envDuration("WS_PING_INTERVAL", 10*time.Second),
		TLSEnabled:            envBool("TLS_ENABLED", false),
		TLSSkipVerify:         envBool("TLS_SKIP_VERIFY", false),
		TLSCAPath:             env("TLS_CA_PATH", ""),
		TLSCertPath:           env("TLS_CERT_PATH", ""),
		TLSKeyPath:            env("TLS_KEY_PATH", ""),

		// Empty disables the API.
		APIListenAddr: envRaw("API_LISTEN_ADDR", "127.0.0.1:8088"),
		APIJWTSecret:  env("API_JWT_SECRET", ""),

		LogJSON:  envBool("LOG_JSON", false),
		LogLevel: strings.ToLower(env("LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DevicesFile) == "" {
		return errors.New("COLLECTOR_DEVICES_FILE is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("COLLECTOR_DATA_DIR is required")
	}
	if c.PollInterval <= 0 {
		return errors.New("COLLECTOR_POLL_INTERVAL must be > 0")
	}
	if c.Workers <= 0 {
		return errors.New("COLLECTOR_WORKERS must be > 0")
	}
	if c.ErrorBackoff <= 0 {
		return errors.New("COLLECTOR_ERROR_BACKOFF must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("COLLECTOR_SHUTDOWN_TIMEOUT must be > 0")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.SNMPPort <= 0 || c.SNMPPort > 65535 {
		return fmt.Errorf("SNMP_PORT %d out of range", c.SNMPPort)
	}
	if c.SNMPTimeout <= 0 {
		return errors.New("SNMP_TIMEOUT must be > 0")
	}
	if c.SNMPRetries < 0 {
		return errors.New("SNMP_RETRIES must be >= 0")
	}
	if c.SNMPMaxOids <= 0 {
		return errors.New("SNMP_MAX_OIDS must be > 0")
	}
	switch c.NotifyMode {
	case "log":
	case "telegram":
		if c.TelegramToken == "" || c.TelegramChatID == "" {
			return errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required for telegram mode")
		}
	case "nats":
		if c.NATSURL == "" || c.NATSSubject == "" {
			return errors.New("NATS_URL and NATS_SUBJECT are required for nats mode")
		}
	default:
		return fmt.Errorf("unsupported notify mode %q", c.NotifyMode)
	}
	if c.NotifyRetries <= 0 {
		return errors.New("NOTIFY_RETRIES must be > 0")
	}
	switch c.StreamMode {
	case "none":
	case "grpc":
		if c.BackendGRPCAddr == "" {
			return errors.New("BACKEND_GRPC_ADDR is required for grpc mode")
		}
		if strings.TrimSpace(c.GRPCCycleStreamMethod) == "" {
			return errors.New("GRPC_CYCLE_STREAM_METHOD is required for grpc mode")
		}
	case "websocket":
		if c.BackendWSURL == "" {
			return errors.New("BACKEND_WS_URL is required for websocket mode")
		}
	default:
		return fmt.Errorf("unsupported stream mode %q", c.StreamMode)
	}
	return nil
}

// Location resolves COLLECTOR_TIMEZONE. Day and month boundaries are computed in it.
func (c Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("COLLECTOR_TIMEZONE: %w", err)
	}
	return loc, nil
}

func (c Config) TLSConfig() (*tls.Config, error) {
	if !c.TLSEnabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.TLSSkipVerify}
	if c.TLSCAPath != "" {
		caBytes, err := os.ReadFile(c.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("append CA cert failed")
		}
		tlsCfg.RootCAs = pool
	}
	if c.TLSCertPath != "" || c.TLSKeyPath != "" {
		if c.TLSCertPath == "" || c.TLSKeyPath == "" {
			return nil, errors.New("both TLS cert and key are required")
		}
		crt, err := tls.LoadX509KeyPair(c.TLSCertPath, c.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load mTLS cert/key: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{crt}
	}
	return tlsCfg, nil
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// envRaw distinguishes an explicitly empty variable from an unset one.
func envRaw(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return strings.TrimSpace(v)
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
