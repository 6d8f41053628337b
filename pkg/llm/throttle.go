package llm

import (
	"context"

	"github.com/SweetPickAI/sweetpick/pkg/resilience"
)

// Throttled wraps a Completer with a client-side token bucket so batch
// workloads stay under provider rate limits. Complete blocks until a token is
// available or ctx is cancelled.
type Throttled struct {
	inner   Completer
	limiter *resilience.Limiter
}

func NewThrottled(inner Completer, rps float64, burst int) *Throttled {
	return &Throttled{
		inner:   inner,
		limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: rps, Burst: burst}),
	}
}

func (t *Throttled) Complete(ctx context.Context, system, user string) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.inner.Complete(ctx, system, user)
}
