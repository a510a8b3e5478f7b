package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/mto-simulator/core"
	"github.com/signalsfoundry/mto-simulator/internal/logging"
	"github.com/signalsfoundry/mto-simulator/internal/observability"
	sim "github.com/signalsfoundry/mto-simulator/internal/sim/state"
	"github.com/signalsfoundry/mto-simulator/internal/storage"
	"github.com/signalsfoundry/mto-simulator/kb"
	"github.com/signalsfoundry/mto-simulator/model"
)

func newTestSession(t *testing.T) *sim.Session {
	t.Helper()
	cfg := model.DefaultSessionConfig()
	cfg.Seed = "http-test"
	cfg.EventsEnabled = false
	cfg.ManualMode = true

	due := 10.0
	lvl := &core.Level{Name: "http", Orders: []core.LevelOrder{{Order: &model.Order{
		ID:             "O1",
		Priority:       model.PriorityHigh,
		Route:          []int{1, 2},
		DueGameMinutes: &due,
	}}}}
	s, err := sim.NewSession(cfg, kb.DefaultCatalog(), logging.Noop(), sim.WithLevel(lvl), sim.WithSessionID("http-session"))
	require.NoError(t, err)
	return s
}

type testAPI struct {
	e         *echo.Echo
	session   *sim.Session
	collector *observability.APICollector
	store     *storage.SnapshotStore
}

func newTestAPI(t *testing.T, cfg Config) *testAPI {
	t.Helper()
	collector, err := observability.NewAPICollector(prometheus.NewRegistry())
	require.NoError(t, err)
	s := newTestSession(t)
	store := storage.NewSnapshotStore(t.TempDir(), logging.Noop())
	e := NewHandler(cfg, logging.Noop(), Dependencies{Session: s, Collector: collector, Store: store})
	return &testAPI{e: e, session: s, collector: collector, store: store}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestDecisionFlow(t *testing.T) {
	api := newTestAPI(t, Config{})

	rec := api.do(t, http.MethodPost, "/api/control/resume", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/control/step", `{"delta_ms":1000}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[core.State](t, rec)
	require.Len(t, st.Pending, 1)
	assert.Equal(t, "O1", st.Pending[0].ID)

	rec = api.do(t, http.MethodPost, "/api/actions", `{"type":"assign","order_id":"O1","department_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[decisionResponse](t, rec)
	assert.Equal(t, "D-0001", res.Decision.ID)
	assert.Empty(t, res.State.Pending)

	rec = api.do(t, http.MethodGet, "/api/orders/O1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	order := decode[orderResponse](t, rec)
	assert.NotEqual(t, "pending", order.Location)
	assert.Equal(t, 1, order.DepartmentID)

	rec = api.do(t, http.MethodGet, "/api/decisions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[decisionsResponse](t, rec).Decisions, 1)

	rec = api.do(t, http.MethodPost, "/api/undo", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[decisionResponse](t, rec).State.Pending, 1)

	rec = api.do(t, http.MethodPost, "/api/undo", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/redo", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/history/clear", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[sim.View](t, rec)
	assert.Equal(t, "http-session", view.SessionID)
	assert.False(t, view.CanUndo)
	assert.False(t, view.CanRedo)
}

func TestErrorStatuses(t *testing.T) {
	api := newTestAPI(t, Config{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"step before start", http.MethodPost, "/api/control/step", `{"delta_ms":1000}`, http.StatusConflict},
		{"step zero", http.MethodPost, "/api/control/step", `{"delta_ms":0}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/actions", `{"type":`, http.StatusBadRequest},
		{"unknown action", http.MethodPost, "/api/actions", `{"type":"teleport"}`, http.StatusBadRequest},
		{"cancel missing", http.MethodPost, "/api/actions", `{"type":"cancel","order_id":"nope"}`, http.StatusNotFound},
		{"missing order", http.MethodGet, "/api/orders/nope", "", http.StatusNotFound},
		{"bad speed", http.MethodPut, "/api/control/speed", `{"speed":3}`, http.StatusBadRequest},
		{"nothing to redo", http.MethodPost, "/api/redo", "", http.StatusConflict},
		{"no snapshot", http.MethodPost, "/api/snapshot/restore", `{"session_id":"ghost"}`, http.StatusNotFound},
		{"unknown route", http.MethodGet, "/api/nowhere", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			resp := decode[errorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestSpeedAndPause(t *testing.T) {
	api := newTestAPI(t, Config{})

	rec := api.do(t, http.MethodPut, "/api/control/speed", `{"speed":4}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 4, decode[core.State](t, rec).Clock.Speed)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/control/resume", "").Code)
	rec = api.do(t, http.MethodPost, "/api/control/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.SessionPaused, decode[core.State](t, rec).Clock.Status)

	rec = api.do(t, http.MethodPost, "/api/control/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.SessionSetup, decode[core.State](t, rec).Clock.Status)
}

func TestSnapshotSaveAndRestore(t *testing.T) {
	api := newTestAPI(t, Config{})
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/control/resume", "").Code)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/control/step", `{"delta_ms":5000}`).Code)

	rec := api.do(t, http.MethodPost, "/api/snapshot", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	snap := decode[storage.Snapshot](t, rec)
	assert.Equal(t, "http-session", snap.SessionID)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/control/step", `{"delta_ms":5000}`).Code)
	assert.Equal(t, 10*model.Second, api.session.Snapshot().Clock.Elapsed)

	rec = api.do(t, http.MethodPost, "/api/snapshot/restore", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5*model.Second, decode[sim.View](t, rec).State.Clock.Elapsed)
}

func TestActionRateLimit(t *testing.T) {
	api := newTestAPI(t, Config{ActionRate: 0.001, ActionBurst: 1})

	body := `{"type":"teleport"}`
	first := api.do(t, http.MethodPost, "/api/actions", body)
	assert.Equal(t, http.StatusBadRequest, first.Code)
	second := api.do(t, http.MethodPost, "/api/actions", body)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// Other routes are not throttled.
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/state", "").Code)
}

func TestRequestHeadersAndMetrics(t *testing.T) {
	api := newTestAPI(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set(headerRequestID, "req-7")
	rec := httptest.NewRecorder()
	api.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-7", rec.Header().Get(headerRequestID))
	assert.Equal(t, "http-session", rec.Header().Get(headerSessionID))

	rec = api.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mto_http_requests_total{method="GET",route="/api/state",status="200"} 1`)

	rec = api.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebsocketFeed(t *testing.T) {
	api := newTestAPI(t, Config{})
	srv := httptest.NewServer(api.e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first feedMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "snapshot", first.Reason)
	assert.Equal(t, model.SessionSetup, first.State.Clock.Status)

	// The snapshot frame is written after the subscription is registered.
	resp, err := http.Post(srv.URL+"/api/control/resume", echo.MIMEApplicationJSON, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var next feedMessage
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "resume", next.Reason)
	assert.Equal(t, model.SessionRunning, next.State.Clock.Status)

	assert.Eventually(t, func() bool {
		return prometheusValue(api.collector.FeedSubscribers) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{storage.ErrSnapshotStale, http.StatusGone},
		{core.ErrCapacity, http.StatusConflict},
		{core.ErrRouting, http.StatusBadRequest},
		{kb.ErrDepartmentNotFound, http.StatusNotFound},
		{echo.ErrTooManyRequests, http.StatusTooManyRequests},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func prometheusValue(g prometheus.Gauge) float64 {
	return testutil.ToFloat64(g)
}
