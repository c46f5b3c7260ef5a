package supervisor

import (
	"errors"
	"time"
)

// ErrGiveUp is reported by the supervisor when the restart ceiling is
// exceeded and no further launches will be attempted.
var ErrGiveUp = errors.New("backend restart ceiling exceeded")

// Decision is the restart policy's verdict for one backend exit.
type Decision struct {
	GiveUp bool
	Delay  time.Duration // wait before relaunching; zero means immediately
}

// Policy decides whether and when to relaunch the backend after an exit.
// Backoff grows exponentially from Base and is capped at Max; once attempt
// exceeds MaxRestarts the policy gives up.
type Policy struct {
	MaxRestarts int
	Base        time.Duration
	Max         time.Duration
}

// Decide returns the decision for the attempt-th consecutive failure since
// the last Ready. attempt starts at 1. exitCode is recorded by callers but
// does not influence the verdict: every exit below the ceiling is retried.
func (p Policy) Decide(exitCode, attempt int) Decision {
	_ = exitCode
	if attempt > p.MaxRestarts {
		return Decision{GiveUp: true}
	}
	return Decision{Delay: p.backoff(attempt)}
}

func (p Policy) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}
