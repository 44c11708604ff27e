package ratelimit

import "slidewin/ratelimit/internal/localguard"

// WithLocalGuard attaches a local, in-process token-bucket pre-filter to
// an already-constructed Limiter: Check and Incr will consult it before
// ever making a network round trip, and a denial there short-circuits
// without touching the store. It does not participate in the sliding-
// window algorithm and is never consulted by ViolatedRules; see package
// internal/localguard for why this is kept strictly separate from the
// core decision.
func WithLocalGuard(l *Limiter, cfg localguard.Config) *Limiter {
	l.guard = localguard.New(cfg)
	return l
}
