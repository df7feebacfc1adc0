package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/guidoenr/soundcircle/internal/engine"
	"github.com/guidoenr/soundcircle/internal/params"
)

type fixture struct {
	store  *params.Store
	server *Server
	http   *httptest.Server

	mu      sync.Mutex
	palette string
}

func (f *fixture) currentPalette() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.palette
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: params.NewStore(params.Defaults()), palette: "default"}

	srv, err := NewServer(Config{
		Store: f.store,
		Status: func() Status {
			return Status{
				Snapshot: engine.Snapshot{
					Points:    3,
					Radii:     []float64{140, 60, 100},
					Peak:      0.4,
					PhaseName: "approaching",
				},
				FPS:     60,
				Source:  "synthetic",
				Palette: f.currentPalette(),
			}
		},
		SetPalette: func(name string) error {
			if name != "box" {
				return errors.New("unknown palette")
			}
			f.mu.Lock()
			f.palette = name
			f.mu.Unlock()
			return nil
		},
		Interval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	f.server = srv

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.Start(ctx)

	f.http = httptest.NewServer(srv.Handler())
	t.Cleanup(f.http.Close)
	return f
}

func (f *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.http.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestNewServerRequiresCollaborators(t *testing.T) {
	_, err := NewServer(Config{})
	require.Error(t, err)
	_, err = NewServer(Config{Store: params.NewStore(params.Defaults())})
	require.Error(t, err)
}

func TestGetParams(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/api/params")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var p params.Parameters
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	require.Equal(t, params.Defaults(), p)
}

func TestPartialUpdate(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/api/params", `{"baseRadius": 120, "fill": true, "pointCount": 8}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var p params.Parameters
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	require.Equal(t, 120.0, p.BaseRadius)
	require.True(t, p.Fill)
	require.Equal(t, 8, p.PointCount)
	require.Equal(t, params.Defaults().MaxDistortion, p.MaxDistortion)
	require.Equal(t, p, f.store.Params())
}

func TestUpdateIsSanitized(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/api/params", `{"baseRadius": 1e9, "pointCount": 1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	p := f.store.Params()
	require.Equal(t, 200.0, p.BaseRadius)
	require.Equal(t, 2, p.PointCount)
}

func TestUpdateRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusBadRequest, f.post(t, "/api/params", `{"bogus": 1}`).StatusCode)
	require.Equal(t, http.StatusBadRequest, f.post(t, "/api/params", `not json`).StatusCode)
	require.Equal(t, http.StatusBadRequest, f.post(t, "/api/params", `{"color": "green"}`).StatusCode)
	require.Equal(t, params.Defaults(), f.store.Params())
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodDelete, f.http.URL+"/api/params", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestOptions(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/api/options")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body OptionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Options, len(params.Options()))
	require.Contains(t, body.Palettes, "braille")
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var st StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	require.Equal(t, StatusResponse{
		Phase:   "approaching",
		Peak:    0.4,
		Points:  3,
		FPS:     60,
		Source:  "synthetic",
		Palette: "default",
	}, st)
}

func TestPalette(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusOK, f.post(t, "/api/palette", `{"palette": "box"}`).StatusCode)
	require.Equal(t, "box", f.currentPalette())
	require.Equal(t, http.StatusBadRequest, f.post(t, "/api/palette", `{"palette": "nope"}`).StatusCode)
}

func TestWebSocketPushesStatus(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg statusMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, []float64{140, 60, 100}, msg.Radii)
	require.Equal(t, "approaching", msg.Phase)
	require.Equal(t, 1, f.server.Clients())
}

func TestWebSocketClosedOnShutdown(t *testing.T) {
	store := params.NewStore(params.Defaults())
	srv, err := NewServer(Config{
		Store:    store,
		Status:   func() Status { return Status{} },
		Interval: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv.Start(ctx)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, time.Millisecond)
	cancel()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}

func TestWebSocketRequiresStart(t *testing.T) {
	srv, err := NewServer(Config{
		Store:  params.NewStore(params.Defaults()),
		Status: func() Status { return Status{} },
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunShutsDown(t *testing.T) {
	srv, err := NewServer(Config{
		Addr:   "127.0.0.1:0",
		Store:  params.NewStore(params.Defaults()),
		Status: func() Status { return Status{} },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
