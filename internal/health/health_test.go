package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okPing(context.Context) error { return nil }

func failPing(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func TestHandler_AllHealthy(t *testing.T) {
	handler := NewHandler("v1.2.0")
	handler.now = func() time.Time { return handler.startTime.Add(90 * time.Second) }
	handler.RegisterChecker("postgres", NewPingChecker("postgres", time.Second, okPing))
	handler.RegisterChecker("amqp", NewPingChecker("amqp", time.Second, okPing))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, StatusHealthy, response.Status)
	assert.Equal(t, "v1.2.0", response.Version)
	assert.Equal(t, int64(90), response.UptimeSeconds)
	assert.Len(t, response.Checks, 2)
	assert.Equal(t, "postgres", response.Checks["postgres"].Name)
}

func TestHandler_RequiredFailureIs503(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("postgres", NewPingChecker("postgres", time.Second, failPing("connection refused")))
	handler.RegisterChecker("redis", NewPingChecker("redis", time.Second, failPing("timeout")).Optional())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, StatusUnhealthy, response.Status)
	assert.Equal(t, "connection refused", response.Checks["postgres"].Message)
	assert.Equal(t, StatusDegraded, response.Checks["redis"].Status)
}

func TestHandler_DegradedStays200(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("broker", NewPingChecker("broker", time.Second, failPing("amqp closed")).Optional())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, StatusDegraded, response.Status)
}

func TestHandler_RegisterReplaces(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("postgres", NewPingChecker("postgres", time.Second, failPing("down")))
	handler.RegisterChecker("postgres", NewPingChecker("postgres", time.Second, okPing))

	assert.Equal(t, StatusHealthy, Overall(handler.runChecks()))
}

func TestHandler_ChecksRunConcurrently(t *testing.T) {
	handler := NewHandler("dev")
	var inFlight, peak atomic.Int32
	slow := func(context.Context) error {
		current := inFlight.Add(1)
		for {
			seen := peak.Load()
			if current <= seen || peak.CompareAndSwap(seen, current) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}
	for _, name := range []string{"postgres", "amqp", "redis"} {
		handler.RegisterChecker(name, NewPingChecker(name, time.Second, slow))
	}

	checks := handler.runChecks()
	assert.Len(t, checks, 3)
	assert.Greater(t, peak.Load(), int32(1))
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name     string
		register func(h *Handler)
		wantCode int
		want     Readiness
	}{
		{
			name:     "no dependencies",
			register: func(*Handler) {},
			wantCode: http.StatusOK,
			want:     Readiness{Ready: true},
		},
		{
			name: "optional dependency down",
			register: func(h *Handler) {
				h.RegisterChecker("postgres", NewPingChecker("postgres", time.Second, okPing))
				h.RegisterChecker("redis", NewPingChecker("redis", time.Second, failPing("down")).Optional())
			},
			wantCode: http.StatusOK,
			want:     Readiness{Ready: true},
		},
		{
			name: "required dependencies down",
			register: func(h *Handler) {
				h.RegisterChecker("storage", NewPingChecker("postgres", time.Second, failPing("down")))
				h.RegisterChecker("broker", NewPingChecker("amqp", time.Second, failPing("down")))
			},
			wantCode: http.StatusServiceUnavailable,
			want:     Readiness{Ready: false, Failing: []string{"broker", "storage"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler("dev")
			tc.register(handler)

			w := httptest.NewRecorder()
			handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			require.Equal(t, tc.wantCode, w.Code)
			var got Readiness
			require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestOverall(t *testing.T) {
	assert.Equal(t, StatusHealthy, Overall(nil))
	assert.Equal(t, StatusDegraded, Overall(map[string]Check{
		"a": {Status: StatusHealthy},
		"b": {Status: StatusDegraded},
	}))
	assert.Equal(t, StatusUnhealthy, Overall(map[string]Check{
		"a": {Status: StatusDegraded},
		"b": {Status: StatusUnhealthy},
	}))
}

func TestPingChecker(t *testing.T) {
	healthy := NewPingChecker("postgres", time.Second, okPing).Check()
	assert.Equal(t, StatusHealthy, healthy.Status)
	assert.Empty(t, healthy.Message)

	required := NewPingChecker("postgres", time.Second, failPing("connection refused")).Check()
	assert.Equal(t, StatusUnhealthy, required.Status)
	assert.Equal(t, "connection refused", required.Message)

	optional := NewPingChecker("broker", time.Second, failPing("connection refused")).Optional().Check()
	assert.Equal(t, StatusDegraded, optional.Status)
}

func TestPingChecker_Timeout(t *testing.T) {
	check := NewPingChecker("redis", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}).Check()

	assert.Equal(t, StatusUnhealthy, check.Status)
	assert.Contains(t, check.Message, "deadline exceeded")
}
