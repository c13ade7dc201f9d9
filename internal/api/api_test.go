package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routerwatch/internal/inventory"
	"routerwatch/internal/model"
	"routerwatch/internal/store"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

type fakeController struct {
	months    []string
	rollovers int
	err       error
}

func (f *fakeController) TriggerRollover(context.Context) error {
	f.rollovers++
	return f.err
}

func (f *fakeController) TriggerReport(_ context.Context, month string) error {
	f.months = append(f.months, month)
	return f.err
}

type staticHealth struct{}

func (staticHealth) Health() any { return map[string]int{"cycles": 3} }

func newTestServer(t *testing.T) (*Server, *store.Store, *fakeController) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(t.TempDir(), logger)
	reg, err := inventory.New([]model.DeviceConfig{{
		Name: "core", Address: "192.0.2.1", Credential: "public", SNMPVersion: "2c",
		Interfaces:        map[string]string{"1": "ether1", "2": "ether2"},
		OIDs:              model.MetricOIDs{CPU: "1.1", RAMTotal: "1.2", RAMUsed: "1.3"},
		CounterWidth:      model.CounterWidth32,
		CPUAlertThreshold: 85, RAMAlertThreshold: 90,
	}})
	require.NoError(t, err)
	ctrl := &fakeController{}
	return New(st, reg, ctrl, staticHealth{}, secret, logger), st, ctrl
}

func do(t *testing.T, s *Server, method, path, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	w, body := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotNil(t, body["health"])
}

func TestStatusReadsPersistedState(t *testing.T) {
	s, st, _ := newTestServer(t)
	require.NoError(t, st.SaveJSON(st.DevicePath("core"), model.DeviceRuntime{"1": {Status: model.LinkDown, In: 10, DownCount: 2}}))
	require.NoError(t, st.SaveJSON(st.ReachabilityPath(), map[string]model.Reachability{"core": {Reachable: true, LastAttempt: "x"}}))

	w, _ := do(t, s, http.MethodGet, "/api/v1/status/core", "")
	require.Equal(t, http.StatusOK, w.Code)

	var ds deviceStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ds))
	assert.True(t, ds.Reachability.Reachable)
	require.Len(t, ds.Interfaces, 2)
	assert.Equal(t, interfaceStatus{IfIndex: "1", Name: "ether1", Status: model.LinkDown, In: 10, DownCount: 2}, ds.Interfaces[0])
	assert.Equal(t, model.LinkUnknown, ds.Interfaces[1].Status)

	w, _ = do(t, s, http.MethodGet, "/api/v1/status/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := do(t, s, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["devices"], 1)
}

func TestDaily(t *testing.T) {
	s, st, _ := newTestServer(t)
	require.NoError(t, st.SaveJSON(st.AccumulatorPath(), model.DailyAccumulator{
		LastResetDate: "2024-06-10",
		Devices: map[string]*model.DeviceAccumulator{"core": {CPUSum: 30, CPUCount: 2}},
	}))

	w, body := do(t, s, http.MethodGet, "/api/v1/daily", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-06-10", body["date"])
	devices := body["devices"].([]any)
	require.Len(t, devices, 1)
	assert.Equal(t, 15.0, devices[0].(map[string]any)["avg_cpu"])
}

func TestReport(t *testing.T) {
	s, st, _ := newTestServer(t)
	cpu := 40.0
	_, err := st.AppendSummary(model.DailySummaryRecord{Date: "2024-05-01", Device: "core", AvgCPU: &cpu})
	require.NoError(t, err)

	w, body := do(t, s, http.MethodGet, "/api/v1/reports/2024-05/core", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body["text"], "Average CPU*: 40.0%")

	w, _ = do(t, s, http.MethodGet, "/api/v1/reports/2024-04/core", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, s, http.MethodGet, "/api/v1/reports/may/core", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTriggersRequireToken(t *testing.T) {
	s, _, ctrl := newTestServer(t)

	w, _ := do(t, s, http.MethodPost, "/api/v1/rollover", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, s, http.MethodPost, "/api/v1/rollover", "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := IssueToken(secret, "ops", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	w, _ = do(t, s, http.MethodPost, "/api/v1/rollover", expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, ctrl.rollovers)

	token, err := IssueToken(secret, "ops", time.Hour, time.Now())
	require.NoError(t, err)
	w, _ = do(t, s, http.MethodPost, "/api/v1/rollover", token)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, ctrl.rollovers)

	w, _ = do(t, s, http.MethodPost, "/api/v1/reports/2024-05/send", token)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"2024-05"}, ctrl.months)

	ctrl.err = errors.New("boom")
	w, _ = do(t, s, http.MethodPost, "/api/v1/rollover", token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTriggersDisabledWithoutSecret(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.secret = nil
	w, _ := do(t, s, http.MethodPost, "/api/v1/rollover", "anything")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestValidateTokenRejectsOtherSecret(t *testing.T) {
	token, err := IssueToken([]byte("another-secret-another-secret-00"), "ops", time.Hour, time.Now())
	require.NoError(t, err)
	_, err = ValidateToken(secret, token)
	require.Error(t, err)

	_, err = IssueToken(nil, "ops", time.Hour, time.Now())
	require.ErrorIs(t, err, ErrNoSecret)
}
