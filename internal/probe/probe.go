// Package probe periodically tests whether the backend's internal port
// accepts connections and serves a response. Results are reported to the
// supervisor; the prober never touches lifecycle state itself.
package probe

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/captainplanet9000/Agent9001/internal/metrics"
)

// Result is the outcome of one probe attempt.
type Result struct {
	OK      bool
	Err     error
	Elapsed time.Duration
}

// Prober polls the backend URL at a fixed interval with a bounded per-attempt
// timeout. A probe exceeding the timeout counts as a failure, not a hang.
type Prober struct {
	url      string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	report   func(Result)
}

// New builds a Prober targeting backendURL. report is invoked once per
// attempt from the prober goroutine.
func New(backendURL string, interval, timeout time.Duration, report func(Result)) *Prober {
	return &Prober{
		url:      backendURL,
		interval: interval,
		timeout:  timeout,
		client:   &http.Client{},
		report:   report,
	}
}

// Run loops until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.report(p.Once(ctx))
		}
	}
}

// Once performs a single probe attempt. Any HTTP response counts as success:
// readiness means the backend is answering on its port, not that it is
// healthy by its own standards.
func (p *Prober) Once(ctx context.Context) Result {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Result{Err: err}
	}
	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		metrics.IncProbeFailure()
		return Result{Err: err, Elapsed: elapsed}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
	_ = resp.Body.Close()
	metrics.ObserveProbeDuration(elapsed.Seconds())
	return Result{OK: true, Elapsed: elapsed}
}
