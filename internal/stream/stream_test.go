package stream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routerwatch/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSnapshot() model.CycleSnapshot {
	cpu := 12.0
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	return model.CycleSnapshot{
		CycleID:       "c-1",
		Collector:     "noc-1",
		Timestamp:     at,
		TimestampUnix: at.Unix(),
		Devices: []model.DeviceSnapshot{
			{Device: "core", Outcome: model.OutcomeOK, CPU: &cpu},
			{Device: "edge", Outcome: model.OutcomeUnreachable, Error: "device unreachable"},
		},
	}
}

func TestWebSocketClientSendsCycleEnvelope(t *testing.T) {
	received := make(chan []byte, 1)
	var authHeader string
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err == nil {
			received <- msg
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client := NewWebSocketClient(url, "tok", nil, time.Second, time.Minute, discardLogger())
	defer client.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.SendCycle(ctx, testSnapshot()))

	var msg []byte
	select {
	case msg = <-received:
	case <-ctx.Done():
		t.Fatal("no message received")
	}
	assert.Equal(t, "Bearer tok", authHeader)

	var env struct {
		Type      string     `json:"type"`
		Collector string     `json:"collector"`
		Payload   CycleFrame `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg, &env))
	assert.Equal(t, MessageTypeCycle, env.Type)
	assert.Equal(t, "noc-1", env.Collector)
	assert.Equal(t, "c-1", env.Payload.CycleID)
	require.Len(t, env.Payload.Snapshot.Devices, 2)
	assert.Equal(t, model.OutcomeUnreachable, env.Payload.Snapshot.Devices[1].Outcome)
}

func TestWebSocketClientDialFailure(t *testing.T) {
	client := NewWebSocketClient("ws://127.0.0.1:1/none", "", nil, time.Second, time.Minute, discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.Error(t, client.SendCycle(ctx, testSnapshot()))
	require.NoError(t, client.Close(ctx))
}

func TestNewCycleFrameFillsTimestamp(t *testing.T) {
	snap := testSnapshot()
	snap.TimestampUnix = 0
	frame := NewCycleFrame(snap)
	assert.NotZero(t, frame.TimestampUnix)
	assert.Equal(t, "noc-1", frame.Collector)
}

func TestNewSinkFromConfig(t *testing.T) {
	sink, err := NewSinkFromConfig(Config{}, nil, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, sink)

	sink, err = NewSinkFromConfig(Config{Mode: "grpc", GRPCAddr: "127.0.0.1:9000"}, nil, discardLogger())
	require.NoError(t, err)
	grpcSink, ok := sink.(*GRPCClient)
	require.True(t, ok)
	assert.Equal(t, DefaultCycleStreamMethod, grpcSink.cycleMethod)

	_, err = NewSinkFromConfig(Config{Mode: "websocket"}, nil, discardLogger())
	require.Error(t, err)

	_, err = NewSinkFromConfig(Config{Mode: "kafka"}, nil, discardLogger())
	require.Error(t, err)
}
