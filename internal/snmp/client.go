package snmp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/gosnmp/gosnmp"
)

var (
	// ErrUnreachable is returned once every attempt of a batch query has failed.
	ErrUnreachable = errors.New("device unreachable")

	errPartialResponse = errors.New("partial snmp response")
	errSNMPStatus      = errors.New("snmp error status")
)

type Target struct {
	Name      string
	Address   string
	Community string
	Version   string
}

// Querier performs an all-or-nothing batch GET against one device.
type Querier interface {
	Get(ctx context.Context, target Target, oids []string) (map[string]Value, error)
}

type Options struct {
	Port       uint16
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	MaxOids    int
}

type roundTripFunc func(ctx context.Context, target Target, oids []string) (map[string]Value, error)

// Client is the gosnmp-backed Querier. Each attempt opens its own UDP session so
// workers never share a socket.
type Client struct {
	logger     *slog.Logger
	port       uint16
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	maxOids    int
	roundTrip  roundTripFunc
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.Port == 0 {
		opts.Port = 161
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.MaxOids <= 0 {
		opts.MaxOids = gosnmp.MaxOids
	}
	c := &Client{
		logger:     logger,
		port:       opts.Port,
		timeout:    opts.Timeout,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		maxOids:    opts.MaxOids,
	}
	c.roundTrip = c.get
	return c
}

// Get queries every oid in one logical batch. It retries the whole batch up to the
// configured number of times with a fixed delay and returns ErrUnreachable when all
// attempts fail. Returned keys have no leading dot.
func (c *Client) Get(ctx context.Context, target Target, oids []string) (map[string]Value, error) {
	if len(oids) == 0 {
		return map[string]Value{}, nil
	}

	var lastErr error
	attempts := c.retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, target.Name, err)
		}

		values, err := c.roundTrip(ctx, target, oids)
		if err == nil {
			return values, nil
		}
		lastErr = err
		c.logger.Warn("snmp query failed", "device", target.Name, "address", target.Address, "attempt", attempt, "of", attempts, "error", err)

		if attempt == attempts || c.retryDelay == 0 {
			continue
		}
		t := time.NewTimer(c.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, target.Name, ctx.Err())
		case <-t.C:
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrUnreachable, target.Name, attempts, lastErr)
}

func (c *Client) get(ctx context.Context, target Target, oids []string) (map[string]Value, error) {
	host, port, err := c.hostPort(target.Address)
	if err != nil {
		return nil, err
	}

	g := &gosnmp.GoSNMP{
		Target:             host,
		Port:               port,
		Transport:          "udp",
		Community:          target.Community,
		Version:            parseVersion(target.Version),
		Timeout:            c.timeout,
		Retries:            0,
		ExponentialTimeout: false,
		MaxOids:            c.maxOids,
		Context:            ctx,
	}
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", target.Address, err)
	}
	defer func() {
		if g.Conn != nil {
			_ = g.Conn.Close()
		}
	}()

	out := make(map[string]Value, len(oids))
	for start := 0; start < len(oids); start += c.maxOids {
		end := min(start+c.maxOids, len(oids))
		chunk := oids[start:end]
		pkt, err := g.Get(chunk)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", target.Address, err)
		}
		values, err := decodePacket(chunk, pkt)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", target.Address, err)
		}
		for k, v := range values {
			out[k] = v
		}
	}
	return out, nil
}

// decodePacket maps a response onto the requested oids. A response that carries an
// error status or misses any requested varbind fails as a whole.
func decodePacket(requested []string, pkt *gosnmp.SnmpPacket) (map[string]Value, error) {
	if pkt == nil {
		return nil, errPartialResponse
	}
	if pkt.Error != gosnmp.NoError {
		return nil, fmt.Errorf("%w: %s at index %d", errSNMPStatus, pkt.Error, pkt.ErrorIndex)
	}

	got := make(map[string]Value, len(pkt.Variables))
	for _, v := range pkt.Variables {
		got[NormalizeOID(v.Name)] = Value{Type: v.Type, Raw: v.Value}
	}

	out := make(map[string]Value, len(requested))
	for _, oid := range requested {
		key := NormalizeOID(oid)
		v, ok := got[key]
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", errPartialResponse, key)
		}
		out[key] = v
	}
	return out, nil
}

func (c *Client) hostPort(address string) (string, uint16, error) {
	if address == "" {
		return "", 0, errors.New("empty device address")
	}
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return address, c.port, nil
	}
	p, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", address, err)
	}
	return host, uint16(p), nil
}

func parseVersion(v string) gosnmp.SnmpVersion {
	switch v {
	case "1", "v1":
		return gosnmp.Version1
	default:
		return gosnmp.Version2c
	}
}
