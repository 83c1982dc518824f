package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mir00r/lb-simulator/internal/clock"
	"github.com/mir00r/lb-simulator/internal/config"
	"github.com/mir00r/lb-simulator/internal/domain"
	"github.com/mir00r/lb-simulator/internal/middleware"
	"github.com/mir00r/lb-simulator/internal/service"
	"github.com/mir00r/lb-simulator/pkg/logger"
)

type testEnv struct {
	sim     *service.Simulator
	clock   *clock.Fake
	handler http.Handler
}

func newTestEnv(t *testing.T, mutate func(*RouterOptions)) *testEnv {
	t.Helper()

	log := logger.Discard()
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	registry := prometheus.NewRegistry()
	sim := service.NewSimulator(service.Options{InitialServers: 3}, clk, service.NewSequenceSource(0), service.NewMetrics(registry), log)

	opts := RouterOptions{
		Admin:   NewAdminHandler(sim, log),
		Health:  NewHealthHandler("test", nil),
		Metrics: NewPrometheusHandler(registry, log),
		Logger:  log,
	}
	if mutate != nil {
		mutate(&opts)
	}

	return &testEnv{sim: sim, clock: clk, handler: NewRouter(opts)}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, code, body["code"])
	assert.NotEmpty(t, body["error"])
	assert.NotEmpty(t, body["timestamp"])
	assert.NotEmpty(t, body["request_id"])
}

func TestSnapshotHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snapshot domain.Snapshot
	decode(t, rec, &snapshot)
	require.Len(t, snapshot.Servers, 3)
	assert.Equal(t, "Server 1", snapshot.Servers[0].Name)
	assert.Equal(t, "excellent", snapshot.Servers[0].HealthClass)
	assert.Equal(t, 3, snapshot.Stats.HealthyServers)
	assert.Equal(t, domain.RoundRobin, snapshot.Stats.Algorithm)
}

func TestServerHandlers(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("add", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/servers", "")
		require.Equal(t, http.StatusCreated, rec.Code)

		var server domain.Server
		decode(t, rec, &server)
		assert.Equal(t, 4, server.ID)
		assert.Equal(t, 100.0, server.Health)
	})

	t.Run("list", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/servers", "")
		var servers []domain.ServerView
		decode(t, rec, &servers)
		assert.Len(t, servers, 4)
	})

	t.Run("remove down to the last server", func(t *testing.T) {
		for expected := 3; expected >= 1; expected-- {
			rec := env.do(t, http.MethodDelete, "/api/v1/servers", "")
			var body RemoveServerResponse
			decode(t, rec, &body)
			assert.True(t, body.Removed)
			assert.Equal(t, expected, body.TotalServers)
		}

		rec := env.do(t, http.MethodDelete, "/api/v1/servers", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		var body RemoveServerResponse
		decode(t, rec, &body)
		assert.False(t, body.Removed)
		assert.Equal(t, 1, body.TotalServers)
		assert.Equal(t, "Cannot remove the last server", env.sim.LogSnapshot()[0].Message)
	})
}

func TestServerCommandHandlers(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("toggle", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/servers/2/toggle", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var view domain.ServerView
		decode(t, rec, &view)
		assert.Equal(t, 2, view.ID)
		assert.Equal(t, domain.StatusOffline, view.Status)
		assert.Equal(t, "offline", view.HealthClass)
	})

	t.Run("restart", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/servers/1/restart", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var view domain.ServerView
		decode(t, rec, &view)
		assert.Equal(t, 80.0, view.Health)
		assert.Equal(t, 50.0, view.Latency)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/servers/abc/toggle", "")
		assertError(t, rec, http.StatusBadRequest, "INVALID_REQUEST")
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/servers/99/restart", "")
		assertError(t, rec, http.StatusNotFound, "SERVER_NOT_FOUND")
	})
}

func TestSetAlgorithmHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPut, "/api/v1/algorithm", `{"algorithm":"least_connections"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body AlgorithmResponse
	decode(t, rec, &body)
	assert.Equal(t, domain.LeastConnections, body.Algorithm)
	assert.True(t, body.Known)
	assert.Len(t, body.Available, 2)

	rec = env.do(t, http.MethodPut, "/api/v1/algorithm", `{"algorithm":"random"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, domain.Algorithm("random"), body.Algorithm)
	assert.False(t, body.Known)

	assertError(t, env.do(t, http.MethodPut, "/api/v1/algorithm", `{}`), http.StatusBadRequest, "INVALID_ALGORITHM")
	assertError(t, env.do(t, http.MethodPut, "/api/v1/algorithm", `not json`), http.StatusBadRequest, "INVALID_REQUEST")
}

func TestSetRateHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPut, "/api/v1/rate", `{"rate":12}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 12, env.sim.Snapshot().Stats.RequestRate)

	assertError(t, env.do(t, http.MethodPut, "/api/v1/rate", `{"rate":0}`), http.StatusBadRequest, "INVALID_REQUEST_RATE")
	assertError(t, env.do(t, http.MethodPut, "/api/v1/rate", `{"rate":2000000000}`), http.StatusBadRequest, "INVALID_REQUEST_RATE")
	assertError(t, env.do(t, http.MethodPut, "/api/v1/rate", `{}`), http.StatusBadRequest, "INVALID_REQUEST")
	assertError(t, env.do(t, http.MethodPut, "/api/v1/rate", `{"rate":"fast"}`), http.StatusBadRequest, "INVALID_REQUEST")
	assert.Equal(t, 12, env.sim.Snapshot().Stats.RequestRate)
}

func TestSimulationHandlers(t *testing.T) {
	env := newTestEnv(t, nil)

	var state SimulationStateResponse
	decode(t, env.do(t, http.MethodPost, "/api/v1/simulation/start", ""), &state)
	assert.True(t, state.Running)
	assert.True(t, env.sim.IsRunning())

	env.clock.Advance(time.Second)
	assert.Equal(t, int64(5), env.sim.Snapshot().Stats.TotalRequests)

	decode(t, env.do(t, http.MethodPost, "/api/v1/simulation/stop", ""), &state)
	assert.False(t, state.Running)
	assert.False(t, env.sim.IsRunning())

	decode(t, env.do(t, http.MethodPost, "/api/v1/simulation/toggle", ""), &state)
	assert.True(t, state.Running)
}

func TestLogHandlers(t *testing.T) {
	env := newTestEnv(t, nil)

	var body LogResponse
	decode(t, env.do(t, http.MethodGet, "/api/v1/log", ""), &body)
	assert.Equal(t, 3, body.Count)
	assert.Equal(t, "Server 3 added to the pool", body.Entries[0].Message)

	decode(t, env.do(t, http.MethodGet, "/api/v1/log?limit=1", ""), &body)
	assert.Equal(t, 1, body.Count)

	assertError(t, env.do(t, http.MethodGet, "/api/v1/log?limit=-1", ""), http.StatusBadRequest, "INVALID_REQUEST")

	decode(t, env.do(t, http.MethodDelete, "/api/v1/log", ""), &body)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "Log cleared", body.Entries[0].Message)
	assert.Equal(t, domain.SeverityWarning, body.Entries[0].Severity)
}

func TestStreamLogHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	server := httptest.NewServer(env.handler)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/log/stream", nil)
	require.NoError(t, err)
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	env.sim.AddServer()

	event, entry := readLogEvent(t, bufio.NewReader(resp.Body))
	assert.Equal(t, "log", event)
	assert.Equal(t, "Server 4 added to the pool", entry.Message)
	assert.Equal(t, domain.SeveritySuccess, entry.Severity)
}

// readLogEvent reads lines until one complete "data:" line of a log event
func readLogEvent(t *testing.T, reader *bufio.Reader) (string, domain.LogEntry) {
	t.Helper()

	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}

	var entry domain.LogEntry
	require.NoError(t, json.Unmarshal([]byte(data), &entry))
	return event, entry
}

func TestStreamLogHandler_OutlivesWriteTimeout(t *testing.T) {
	env := newTestEnv(t, nil)
	server := httptest.NewUnstartedServer(env.handler)
	server.Config.WriteTimeout = 300 * time.Millisecond
	server.Start()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/log/stream", nil)
	require.NoError(t, err)
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	time.Sleep(500 * time.Millisecond)
	env.sim.AddServer()

	event, entry := readLogEvent(t, bufio.NewReader(resp.Body))
	assert.Equal(t, "log", event)
	assert.Equal(t, "Server 4 added to the pool", entry.Message)
}

func TestStatsHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	var body StatsResponse
	decode(t, env.do(t, http.MethodGet, "/api/v1/stats", ""), &body)
	assert.NotEmpty(t, body.Uptime)
	assert.Contains(t, body.Simulation, "registry")
	assert.Contains(t, body.Simulation, "health_monitor")
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/rate", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	result := env.sim.Dispatch()
	require.True(t, result.Admitted)

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `lbsim_requests_dispatched_total{server="`+result.ServerName+`"} 1`)
	assert.Contains(t, body, "lbsim_server_health")
	assert.Contains(t, body, "lbsim_request_processing_seconds_count 1")
}

func TestMetricsEndpoint_LogsGatherErrors(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "debug", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	var buf bytes.Buffer
	log.SetOutput(&buf)

	gatherer := prometheus.GathererFunc(func() ([]*dto.MetricFamily, error) {
		return nil, errors.New("collector failed")
	})
	handler := NewPrometheusHandler(gatherer, log)

	rec := httptest.NewRecorder()
	handler.MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry), buf.String())
	assert.Equal(t, "metrics", entry["component"])
	assert.Contains(t, entry["msg"], "collector failed")
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/liveness", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "alive", body["status"])

	rec = env.do(t, http.MethodGet, "/readiness", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	notReady := newTestEnv(t, func(opts *RouterOptions) {
		opts.Health = NewHealthHandler("test", func() error { return errors.New("health monitor not running") })
	})
	rec = notReady.do(t, http.MethodGet, "/readiness", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, "not_ready", body["status"])
	assert.Equal(t, "health monitor not running", body["reason"])
}

func TestRateLimitOnlyGuardsAPI(t *testing.T) {
	env := newTestEnv(t, func(opts *RouterOptions) {
		opts.RateLimiter = middleware.NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, BurstSize: 1}, logger.Discard())
	})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/snapshot", "").Code)
	assertError(t, env.do(t, http.MethodGet, "/api/v1/snapshot", ""), http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED")

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/liveness", "").Code)
	}
}

type fakeReloader struct {
	current *config.Config
	applied []string
	checked int
	err     error
}

func (f *fakeReloader) GetCurrentConfig() *config.Config { return f.current }

func (f *fakeReloader) ReloadFromAPI(data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, string(data))
	return nil
}

func (f *fakeReloader) CheckForChanges() (bool, error) {
	f.checked++
	return false, f.err
}

func (f *fakeReloader) GetReloadStats() map[string]interface{} {
	return map[string]interface{}{"reloads": len(f.applied)}
}

func TestConfigHandler(t *testing.T) {
	reloader := &fakeReloader{current: config.DefaultConfig()}
	env := newTestEnv(t, func(opts *RouterOptions) {
		opts.Config = NewConfigHandler(reloader, logger.Discard())
	})

	rec := env.do(t, http.MethodGet, "/api/v1/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]map[string]interface{}
	decode(t, rec, &body)
	assert.Contains(t, body["config"], "simulation")

	rec = env.do(t, http.MethodPost, "/api/v1/config/reload", "simulation:\n  request_rate: 9\n")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"simulation:\n  request_rate: 9\n"}, reloader.applied)

	rec = env.do(t, http.MethodPost, "/api/v1/config/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, reloader.checked)

	reloader.err = errors.New("simulation.request_rate must be positive: 0")
	rec = env.do(t, http.MethodPost, "/api/v1/config/reload", "simulation:\n  request_rate: 0\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errBody map[string]interface{}
	decode(t, rec, &errBody)
	assert.Equal(t, "INVALID_CONFIG", errBody["code"])
	assert.Contains(t, errBody["details"], "request_rate")

	// the admin API is still reachable next to the config routes
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/snapshot", "").Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/servers/0/toggle", bytes.NewReader(nil))
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(middleware.RequestIDHeader))
	var body ErrorResponse
	decode(t, rec, &body)
	assert.Equal(t, "req-42", body.RequestID)
}
