package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/captainplanet9000/Agent9001/internal/supervisor"
	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

// stubState is a settable StateSource for gateway tests.
type stubState struct {
	mu sync.Mutex
	s  supervisor.State
}

func (st *stubState) set(s supervisor.State) {
	st.mu.Lock()
	st.s = s
	st.mu.Unlock()
}

func (st *stubState) State() supervisor.State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}

func (st *stubState) Snapshot() supervisor.View {
	return supervisor.View{State: st.State().String(), PID: 1234}
}

// proxyRecorder adds CloseNotify so httputil.ReverseProxy (reached through
// gin's response writer) can run against an httptest recorder.
type proxyRecorder struct {
	*httptest.ResponseRecorder
}

func (r *proxyRecorder) CloseNotify() <-chan bool { return make(chan bool, 1) }

func newProxyRecorder() *proxyRecorder {
	return &proxyRecorder{ResponseRecorder: httptest.NewRecorder()}
}

func newTestGateway(t *testing.T, backendURL string, st StateSource) http.Handler {
	t.Helper()
	g, err := New(Config{ListenAddr: ":0", HealthPath: "/health", BackendURL: backendURL}, st)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	return g.Handler()
}

func TestHealthAlwaysOKInEveryState(t *testing.T) {
	st := &stubState{}
	h := newTestGateway(t, "http://127.0.0.1:1", st)

	states := []supervisor.State{
		supervisor.StateStarting, supervisor.StateInitializing, supervisor.StateReady,
		supervisor.StateDegraded, supervisor.StateCrashed, supervisor.StateRestarting,
		supervisor.StateStopped,
	}
	for _, s := range states {
		st.set(s)
		for _, path := range []string{"/health", "/api/health"} {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("%s during %s: status %d, want 200", path, s, w.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("%s body not JSON: %v", path, err)
			}
			if body["status"] != "ok" || body["service"] != "Agent9001" {
				t.Fatalf("%s body = %v", path, body)
			}
		}
	}
}

// The platform hammers the health path from process start while the backend
// cold-starts; every request must succeed.
func TestHealthSurvivesColdStartBurst(t *testing.T) {
	st := &stubState{s: supervisor.StateStarting}
	h := newTestGateway(t, "http://127.0.0.1:1", st)

	for i := 0; i < 500; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d, want 200", i, w.Code)
		}
	}
}

func TestForwardUnavailableBeforeReady(t *testing.T) {
	st := &stubState{}
	h := newTestGateway(t, "http://127.0.0.1:1", st)

	for _, s := range []supervisor.State{
		supervisor.StateStarting, supervisor.StateInitializing,
		supervisor.StateCrashed, supervisor.StateRestarting, supervisor.StateStopped,
	} {
		st.set(s)
		start := time.Now()
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("during %s: status %d, want 503", s, w.Code)
		}
		if w.Header().Get("Retry-After") == "" {
			t.Fatalf("during %s: missing Retry-After", s)
		}
		if time.Since(start) > time.Second {
			t.Fatalf("during %s: unavailable response took %s, must be immediate", s, time.Since(start))
		}
	}
}

func TestForwardRoundTripFidelity(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Backend-Header", "kept")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(r.Method + " " + r.URL.Path + " " + string(body)))
	}))
	defer backend.Close()

	st := &stubState{s: supervisor.StateReady}
	h := newTestGateway(t, backend.URL, st)

	w := newProxyRecorder()
	req := httptest.NewRequest(http.MethodPost, "/message", bytes.NewBufferString("hello backend"))
	h.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want backend's 418", w.Code)
	}
	if got := w.Body.String(); got != "POST /message hello backend" {
		t.Fatalf("body = %q", got)
	}
	if w.Header().Get("X-Backend-Header") != "kept" {
		t.Fatalf("backend header not preserved")
	}
}

// Degraded keeps forwarding; only process exit drives restarts.
func TestForwardContinuesWhileDegraded(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	st := &stubState{s: supervisor.StateDegraded}
	h := newTestGateway(t, backend.URL, st)

	w := newProxyRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anything", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 while degraded", w.Code)
	}
}

func TestDeadUpstreamIsPerRequestError(t *testing.T) {
	st := &stubState{s: supervisor.StateReady}
	h := newTestGateway(t, "http://127.0.0.1:1", st)

	w := newProxyRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anything", nil))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	// State is owned by the supervisor; the forwarder must not have touched it.
	if st.State() != supervisor.StateReady {
		t.Fatalf("forwarder mutated state to %s", st.State())
	}
}

func TestStatusEndpoint(t *testing.T) {
	st := &stubState{s: supervisor.StateReady}
	h := newTestGateway(t, "http://127.0.0.1:1", st)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var v supervisor.View
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if v.State != "ready" || v.PID != 1234 {
		t.Fatalf("view = %+v", v)
	}
}

func TestCustomHealthPath(t *testing.T) {
	st := &stubState{s: supervisor.StateStarting}
	g, err := New(Config{ListenAddr: ":0", HealthPath: "/api/health", BackendURL: "http://127.0.0.1:1"}, st)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	h := g.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("custom health path: status %d", w.Code)
	}
}
