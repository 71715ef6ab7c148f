package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/garaged/internal/door"
)

// doorServer is a fake door controller recording toggle requests.
type doorServer struct {
	mu          sync.Mutex
	status      string
	statusCode  int
	toggles     int
	authHeaders []string
}

func (d *doorServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.statusCode != 0 {
			w.WriteHeader(d.statusCode)
			return
		}
		w.Write([]byte(d.status))
	})
	mux.HandleFunc("/toggle", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		d.toggles++
		d.authHeaders = append(d.authHeaders, r.Header.Get("Authorization"))
		w.Write([]byte("ok"))
	})
	return mux
}

func newTestServer(t *testing.T, d *doorServer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(d.handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchStatus(t *testing.T) {
	d := &doorServer{status: "open"}
	srv := newTestServer(t, d)

	c := NewClient(srv.URL+"/status", srv.URL+"/toggle", "")
	raw, err := c.FetchStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "open", raw)
}

func TestFetchStatus_NonSuccess(t *testing.T) {
	d := &doorServer{statusCode: http.StatusInternalServerError}
	srv := newTestServer(t, d)

	c := NewClient(srv.URL+"/status", srv.URL+"/toggle", "")
	_, err := c.FetchStatus(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, door.ErrNetwork)
}

func TestFetchStatus_EmptyURL(t *testing.T) {
	c := NewClient("", "", "")
	_, err := c.FetchStatus(context.Background())
	assert.ErrorIs(t, err, door.ErrNetwork)

	err = c.SendToggle(context.Background())
	assert.ErrorIs(t, err, door.ErrNetwork)
}

func TestSendToggle_BearerToken(t *testing.T) {
	d := &doorServer{}
	srv := newTestServer(t, d)

	c := NewClient(srv.URL+"/status", srv.URL+"/toggle", "s3cret")
	require.NoError(t, c.SendToggle(context.Background()))

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, 1, d.toggles)
	assert.Equal(t, []string{"Bearer s3cret"}, d.authHeaders)
}

func TestSendToggle_NoToken(t *testing.T) {
	d := &doorServer{}
	srv := newTestServer(t, d)

	c := NewClient(srv.URL+"/status", srv.URL+"/toggle", "")
	require.NoError(t, c.SendToggle(context.Background()))

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, []string{""}, d.authHeaders)
}

func TestFetchStatus_NoAuthHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Write([]byte("close"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "s3cret")
	raw, err := c.FetchStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "close", raw)
	assert.Empty(t, got)
}
