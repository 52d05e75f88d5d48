package http

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// BackoffCooldownPeriod is how long after the last rate limit before the
	// original rate is restored.
	BackoffCooldownPeriod = 5 * time.Minute
	// MinRPSMultiplier is the floor for rate reduction (25% of original).
	MinRPSMultiplier = 0.25
)

// RateLimiterConfig defines per-host pacing.
type RateLimiterConfig struct {
	// DefaultRPS applies to hosts without an entry in HostRates. 0 disables limiting.
	DefaultRPS float64
	// HostRates maps hostnames to requests per second.
	HostRates map[string]float64
	// EnableDynamicBackoff halves a host's rate on every rate limit response.
	EnableDynamicBackoff bool
}

// DefaultRateLimiterConfig returns conservative rates for YouTube hosts.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		DefaultRPS: 2.5,
		HostRates: map[string]float64{
			"www.googleapis.com":    1.0,
			"youtube.googleapis.com": 1.0,
		},
		EnableDynamicBackoff: true,
	}
}

// hostState tracks the reduced rate of one host.
type hostState struct {
	originalRPS float64
	currentRPS  float64
	lastLimited time.Time
}

// RateLimiter manages one token bucket per host.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	states   map[string]*hostState
	config   RateLimiterConfig
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.HostRates == nil {
		cfg.HostRates = make(map[string]float64)
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		states:   make(map[string]*hostState),
		config:   cfg,
		now:      time.Now,
	}
}

// Wait blocks until host may send another request or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl == nil {
		return nil
	}
	limiter := rl.limiter(host)
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

func (rl *RateLimiter) rps(host string) float64 {
	if rps, ok := rl.config.HostRates[host]; ok {
		return rps
	}
	return rl.config.DefaultRPS
}

func (rl *RateLimiter) limiter(host string) *rate.Limiter {
	rps := rl.rps(host)
	if rps <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(rps), 1)
	rl.limiters[host] = l
	return l
}

// RecordRateLimit halves the host's rate, never below MinRPSMultiplier of the original.
func (rl *RateLimiter) RecordRateLimit(host string) {
	if rl == nil || !rl.config.EnableDynamicBackoff {
		return
	}
	original := rl.rps(host)
	if original <= 0 {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	st, ok := rl.states[host]
	if !ok {
		st = &hostState{originalRPS: original, currentRPS: original}
		rl.states[host] = st
	}
	st.lastLimited = rl.now()
	st.currentRPS /= 2
	if floor := st.originalRPS * MinRPSMultiplier; st.currentRPS < floor {
		st.currentRPS = floor
	}
	if l, ok := rl.limiters[host]; ok {
		l.SetLimit(rate.Limit(st.currentRPS))
	}
}

// RecordSuccess restores the original rate once the cool-down has elapsed.
func (rl *RateLimiter) RecordSuccess(host string) {
	if rl == nil || !rl.config.EnableDynamicBackoff {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	st, ok := rl.states[host]
	if !ok || rl.now().Sub(st.lastLimited) < BackoffCooldownPeriod {
		return
	}
	if l, ok := rl.limiters[host]; ok {
		l.SetLimit(rate.Limit(st.originalRPS))
	}
	delete(rl.states, host)
}

// CurrentRPS returns the effective rate for host.
func (rl *RateLimiter) CurrentRPS(host string) float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if st, ok := rl.states[host]; ok {
		return st.currentRPS
	}
	return rl.rps(host)
}
