package resilience

import (
	"strings"
	"time"
)

// LLMOperationPrefix marks operations that call an analysis provider.
// Everything else is treated as a broker call.
const LLMOperationPrefix = "llm."

// RetryPolicy shapes the retries of one class of remote call.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Budget caps attempts plus waits for a single Execute; zero leaves only
	// the caller's deadline in charge.
	Budget time.Duration
}

type BreakerPolicy struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

// Config holds separate retry policies for analysis calls, which take
// seconds and are rate limited upstream, and for broker publishes, which
// should fail fast so an upload request is not held open.
type Config struct {
	LLM     RetryPolicy
	Publish RetryPolicy
	Breaker BreakerPolicy
}

func DefaultConfig() Config {
	return Config{
		LLM: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     15 * time.Second,
			Multiplier:     2.5,
		},
		Publish: RetryPolicy{
			MaxAttempts:    4,
			InitialBackoff: 50 * time.Millisecond,
			MaxBackoff:     500 * time.Millisecond,
			Multiplier:     2,
			Budget:         2 * time.Second,
		},
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      6,
			FailureRatio:     0.6,
			OpenTimeout:      time.Minute,
			HalfOpenMaxCalls: 1,
		},
	}
}

func (c Config) policyFor(operation string) RetryPolicy {
	if strings.HasPrefix(operation, LLMOperationPrefix) {
		return c.LLM
	}
	return c.Publish
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	out := c
	out.LLM = out.LLM.normalize(def.LLM)
	out.Publish = out.Publish.normalize(def.Publish)

	if out.Breaker.MinRequests == 0 {
		out.Breaker.MinRequests = def.Breaker.MinRequests
	}
	if out.Breaker.FailureRatio <= 0 || out.Breaker.FailureRatio > 1 {
		out.Breaker.FailureRatio = def.Breaker.FailureRatio
	}
	if out.Breaker.OpenTimeout <= 0 {
		out.Breaker.OpenTimeout = def.Breaker.OpenTimeout
	}
	if out.Breaker.HalfOpenMaxCalls == 0 {
		out.Breaker.HalfOpenMaxCalls = def.Breaker.HalfOpenMaxCalls
	}
	return out
}

func (p RetryPolicy) normalize(def RetryPolicy) RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.Budget < 0 {
		p.Budget = 0
	}
	return p
}

// backoff returns the wait before retry number attempt (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	wait := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		wait *= p.Multiplier
		if wait >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	return time.Duration(wait)
}
