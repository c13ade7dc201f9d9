package stream

import (
	"context"
	"encoding/json"
	"time"

	"routerwatch/internal/model"
)

const MessageTypeCycle = "cycle"

// Sink forwards completed poll cycles to a backend. Failures are reported to the
// caller and never retried beyond one reconnect.
type Sink interface {
	SendCycle(ctx context.Context, snap model.CycleSnapshot) error
	Close(ctx context.Context) error
}

// NopSink discards every snapshot.
type NopSink struct{}

func (NopSink) SendCycle(context.Context, model.CycleSnapshot) error { return nil }
func (NopSink) Close(context.Context) error                         { return nil }

type Envelope struct {
	Type      string    `json:"type"`
	Collector string    `json:"collector"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type CycleFrame struct {
	Collector     string              `json:"collector"`
	CycleID       string              `json:"cycle_id"`
	TimestampUnix int64               `json:"timestamp_unix"`
	Snapshot      model.CycleSnapshot `json:"snapshot"`
}

func NewCycleFrame(snap model.CycleSnapshot) CycleFrame {
	at := snap.TimestampUnix
	if at == 0 {
		at = time.Now().UTC().Unix()
	}
	return CycleFrame{Collector: snap.Collector, CycleID: snap.CycleID, TimestampUnix: at, Snapshot: snap}
}

func NewCycleEnvelope(snap model.CycleSnapshot) Envelope {
	return Envelope{Type: MessageTypeCycle, Collector: snap.Collector, Timestamp: snap.Timestamp, Payload: NewCycleFrame(snap)}
}

func EncodeEnvelope(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}
