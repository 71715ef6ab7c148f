package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/garaged/internal/door"
	"github.com/dokzlo13/garaged/internal/ledger"
	"github.com/dokzlo13/garaged/internal/reconcile"
)

type fakeController struct {
	snap    reconcile.Snapshot
	targets []door.State
	err     error
	ctxErr  error
}

func (f *fakeController) Snapshot() reconcile.Snapshot { return f.snap }

func (f *fakeController) SetTargetState(ctx context.Context, target door.State, done func(error)) {
	f.targets = append(f.targets, target)
	f.ctxErr = ctx.Err()
	done(f.err)
}

type fakeHistory struct {
	entries []*ledger.Entry
	err     error
	limit   int
}

func (f *fakeHistory) Recent(limit int) ([]*ledger.Entry, error) {
	f.limit = limit
	return f.entries, f.err
}

func newTestServer(c *fakeController, h History) *Server {
	return NewServer("127.0.0.1", 0, c, h, 100, 100)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeController{}, nil)
	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestReady(t *testing.T) {
	c := &fakeController{}
	s := newTestServer(c, nil)

	rec := do(t, s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c.snap.Known = true
	rec = do(t, s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestState(t *testing.T) {
	observed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := &fakeController{snap: reconcile.Snapshot{
		State:          door.Open,
		Known:          true,
		ObservedAt:     observed,
		AutoCloseArmed: true,
		AutoCloseAt:    observed.Add(10 * time.Minute),
	}}
	s := newTestServer(c, nil)

	rec := do(t, s, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "open", body["state"])
	assert.Equal(t, true, body["known"])
	assert.Equal(t, true, body["auto_close_armed"])
	assert.Equal(t, "2026-01-01T12:10:00Z", body["auto_close_at"])
}

func TestState_Unknown(t *testing.T) {
	s := newTestServer(&fakeController{}, nil)
	body := decode(t, do(t, s, http.MethodGet, "/state", ""))
	assert.Equal(t, "unknown", body["state"])
	assert.NotContains(t, body, "observed_at")
}

func TestTarget(t *testing.T) {
	tests := []struct {
		name string
		body string
		want door.State
	}{
		{"plain open", "open", door.Open},
		{"plain close", "close\n", door.Closed},
		{"json closed", `{"target":"closed"}`, door.Closed},
		{"json open upper", `{"target":"OPEN"}`, door.Open},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeController{}
			s := newTestServer(c, nil)
			rec := do(t, s, http.MethodPost, "/target", tt.body)
			assert.Equal(t, http.StatusOK, rec.Code)
			require.Len(t, c.targets, 1)
			assert.Equal(t, tt.want, c.targets[0])
		})
	}
}

func TestTarget_BadRequest(t *testing.T) {
	for _, body := range []string{"", "sideways", "opening", `{"target":`, `{"target":"closing"}`} {
		c := &fakeController{}
		s := newTestServer(c, nil)
		rec := do(t, s, http.MethodPost, "/target", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Empty(t, c.targets)
	}
}

func TestTarget_ToggleFailure(t *testing.T) {
	c := &fakeController{err: errors.New("network failure")}
	s := newTestServer(c, nil)
	rec := do(t, s, http.MethodPost, "/target", "open")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "network failure")
}

func TestTarget_ClientDisconnectDoesNotCancelToggle(t *testing.T) {
	c := &fakeController{}
	s := newTestServer(c, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/target", strings.NewReader("open")).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, c.targets, 1)
	assert.NoError(t, c.ctxErr)
}

func TestTarget_RateLimited(t *testing.T) {
	c := &fakeController{}
	s := NewServer("127.0.0.1", 0, c, nil, 0.001, 1)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/target", "open").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodPost, "/target", "open").Code)
	assert.Len(t, c.targets, 1)
}

func TestTarget_MethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakeController{}, nil)
	rec := do(t, s, http.MethodGet, "/target", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEvents(t *testing.T) {
	h := &fakeHistory{entries: []*ledger.Entry{
		{ID: 2, EventID: "b", EventType: "toggle", Source: "command"},
		{ID: 1, EventID: "a", EventType: "state_changed"},
	}}
	s := newTestServer(&fakeController{}, h)

	rec := do(t, s, http.MethodGet, "/events?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, h.limit)

	var entries []ledger.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].EventID)
}

func TestEvents_Limits(t *testing.T) {
	h := &fakeHistory{}
	s := newTestServer(&fakeController{}, h)

	rec := do(t, s, http.MethodGet, "/events", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultEventsLimit, h.limit)
	assert.Equal(t, "[]\n", rec.Body.String())

	do(t, s, http.MethodGet, "/events?limit=100000", "")
	assert.Equal(t, maxEventsLimit, h.limit)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/events?limit=x", "").Code)
}

func TestEvents_Disabled(t *testing.T) {
	s := newTestServer(&fakeController{}, nil)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/events", "").Code)
}

func TestEvents_Error(t *testing.T) {
	s := newTestServer(&fakeController{}, &fakeHistory{err: errors.New("db closed")})
	assert.Equal(t, http.StatusInternalServerError, do(t, s, http.MethodGet, "/events", "").Code)
}
