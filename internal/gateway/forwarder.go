package gateway

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/captainplanet9000/Agent9001/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Forwarder proxies requests byte-for-byte to the single backend upstream
// once it is reachable, and answers 503 immediately otherwise. One upstream
// failure mid-forward surfaces to that caller only; it never feeds back into
// lifecycle state.
type Forwarder struct {
	tracker StateSource
	proxy   *httputil.ReverseProxy
}

func NewForwarder(backendURL string, tracker StateSource) (*Forwarder, error) {
	target, err := url.Parse(backendURL)
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host
	}
	proxy.Transport = &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: 30 * time.Second,
		MaxIdleConns:          32,
		IdleConnTimeout:       90 * time.Second,
	}
	proxy.FlushInterval = 100 * time.Millisecond
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		metrics.IncProxyRequest(metrics.OutcomeUpstreamError)
		slog.Warn("upstream request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream request failed"}`))
	}

	return &Forwarder{tracker: tracker, proxy: proxy}, nil
}

// Handle answers one inbound request. It reads the shared lifecycle state
// exactly once; Ready and Degraded both forward (restart is exit-driven, a
// degraded backend may still serve).
func (f *Forwarder) Handle(c *gin.Context) {
	state := f.tracker.State()
	if !state.Reachable() {
		metrics.IncProxyRequest(metrics.OutcomeUnavailable)
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "backend is " + state.String() + ", retry shortly",
			"state": state.String(),
		})
		return
	}
	metrics.IncProxyRequest(metrics.OutcomeForwarded)
	f.proxy.ServeHTTP(c.Writer, c.Request)
}
