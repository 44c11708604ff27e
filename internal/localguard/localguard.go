// Package localguard is an optional, strictly separate pre-filter in
// front of the distributed limiter. It is adapted from a plain in-memory
// per-client token bucket and deliberately does not implement the
// bucketed sliding-window algorithm in package script. It exists only to
// shed pathological traffic before it reaches the store, and its limits
// are never consulted when reporting violated rules.
//
// A denial here short-circuits to "denied" without a network round trip.
// An allow always falls through to the real atomic script. Disabled by
// default, so the documented testable properties of the core algorithm
// hold whether or not a guard is attached.
package localguard

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures the local guard.
type Config struct {
	// RequestsPerSecond is the sustained rate allowed per identifier.
	RequestsPerSecond float64
	// Burst is the maximum burst size per identifier.
	Burst int
	// CleanupInterval controls how often the whole per-identifier bucket
	// map is cleared, so it doesn't grow without bound. Every identifier's
	// bucket is dropped at once, not only idle ones.
	CleanupInterval time.Duration
	// Exempt lists identifiers that bypass the guard entirely.
	Exempt []string
}

// DefaultConfig returns a permissive guard suitable as a first line of
// defense rather than a primary limiting mechanism.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 1000,
		Burst:             2000,
		CleanupInterval:   5 * time.Minute,
	}
}

// Guard is a per-identifier token bucket limiter: one map of buckets
// guarded by a single mutex.
type Guard struct {
	mu              sync.Mutex
	limiters        map[string]*rate.Limiter
	rps             rate.Limit
	burst           int
	cleanupInterval time.Duration
	lastCleanup     time.Time
	exempt          map[string]struct{}
}

// New builds a Guard from cfg, applying DefaultConfig's zero-value
// fallbacks.
func New(cfg Config) *Guard {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultConfig().Burst
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}
	exempt := make(map[string]struct{}, len(cfg.Exempt))
	for _, e := range cfg.Exempt {
		exempt[e] = struct{}{}
	}
	return &Guard{
		limiters:        make(map[string]*rate.Limiter),
		rps:             rate.Limit(cfg.RequestsPerSecond),
		burst:           cfg.Burst,
		cleanupInterval: cfg.CleanupInterval,
		lastCleanup:     time.Now(),
		exempt:          exempt,
	}
}

// Allow reports whether an action for key is permitted by the local
// bucket. It never touches the store.
func (g *Guard) Allow(key string) bool {
	if _, ok := g.exempt[key]; ok {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if time.Since(g.lastCleanup) > g.cleanupInterval {
		g.limiters = make(map[string]*rate.Limiter)
		g.lastCleanup = time.Now()
	}

	limiter, ok := g.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(g.rps, g.burst)
		g.limiters[key] = limiter
	}
	return limiter.Allow()
}

// TrackedIdentifiers returns how many identifiers currently have a bucket.
func (g *Guard) TrackedIdentifiers() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.limiters)
}
