// Package ratelimit implements an atomic sliding-window rate limiter
// backed by a remote key-value store with server-side scripting.
//
// The decision-plus-mutation for any single identifier always runs as one
// script on the store (package script), so multiple Limiter instances, in
// one process or across machines, observe sequentially consistent
// behavior for that identifier without any client-side locking. A Limiter
// itself is a stateless facade: it keeps no per-call mutable state beyond
// method-local values and is safe for concurrent use by multiple
// goroutines as long as the injected store.Store is.
package ratelimit

import (
	"context"
	"fmt"

	"slidewin/ratelimit/rules"
	"slidewin/ratelimit/script"
	"slidewin/ratelimit/store"
)

// decision codes returned by both atomic scripts.
const (
	decisionAllow     = 0
	decisionLimited   = 1
	decisionBlacklist = 2
)

// ViolatedRule identifies a rule whose current-bucket count has already
// reached its limit.
type ViolatedRule struct {
	Interval int64
	Limit    int64
}

// Limiter is the public surface callers construct via New and call
// Check/Incr and the inspection/list-management methods against.
type Limiter struct {
	store store.Store
	rules *rules.RuleSet
	cache *script.Cache
	clock func() int64

	guard localGuard
}

// localGuard is the seam internal/localguard hooks into via
// WithLocalGuard. Nil means no local pre-filter: every call goes straight
// to the store, matching the documented behavior of the core algorithm.
type localGuard interface {
	Allow(key string) bool
}

func (l *Limiter) runDecision(ctx context.Context, op, name string, keys []string, weight int64) (bool, error) {
	if weight < 1 {
		weight = 1
	}

	normalized, err := l.rules.NormalizeKeys(keys)
	if err != nil {
		return false, err
	}

	if l.guard != nil {
		for _, k := range keys {
			if k == "" {
				continue
			}
			if !l.guard.Allow(k) {
				return true, nil
			}
		}
	}

	rulesJSON, err := l.rules.MarshalArgs()
	if err != nil {
		return false, err
	}

	args := []string{
		rulesJSON,
		fmt.Sprintf("%d", l.clock()),
		fmt.Sprintf("%d", weight),
		l.rules.WhitelistSetKey(),
		l.rules.BlacklistSetKey(),
	}

	result, err := l.cache.Exec(ctx, l.store, name, normalized, args)
	if err != nil {
		return false, &StoreError{Op: op, Err: err}
	}

	switch result {
	case decisionAllow:
		return false, nil
	case decisionLimited, decisionBlacklist:
		return true, nil
	default:
		return false, &ScriptError{Op: op, Got: result}
	}
}

// Check evaluates the ruleset against keys without mutating any counters.
// It returns true iff the decision is "rate-limited" or "blacklisted".
func (l *Limiter) Check(ctx context.Context, keys ...string) (bool, error) {
	return l.runDecision(ctx, "check", script.NameCheckRateLimit, keys, 1)
}

// Incr evaluates the ruleset and, if allowed, increments every applicable
// rule counter for every key by weight, all within the same atomic script
// invocation. It returns true iff denied; on denial no counter is
// mutated. weight below 1 is floored to 1.
func (l *Limiter) Incr(ctx context.Context, weight int64, keys ...string) (bool, error) {
	return l.runDecision(ctx, "incr", script.NameCheckLimitIncr, keys, weight)
}

// ViolatedRules reports, for each (key, rule) pair in order, every rule
// whose current-bucket count has already reached its limit. This is a
// read-only inspection against hash fields, not an atomic script call:
// it cannot observe a blacklist/whitelist override and a field that is
// missing (no traffic yet, or evicted) is treated as -1 and never
// reported.
//
// Changing a rule's Precision for an existing identifier without flushing
// its counter keys will make this read stale or empty data, since the
// field name this method computes is derived from the *current*
// configuration, not whatever precision the stored fields were last
// written under.
func (l *Limiter) ViolatedRules(ctx context.Context, keys ...string) ([]ViolatedRule, error) {
	normalized, err := l.rules.NormalizeKeys(keys)
	if err != nil {
		return nil, err
	}

	var out []ViolatedRule
	for _, hashKey := range normalized {
		for _, r := range l.rules.Rules() {
			precision := r.Precision()
			if precision <= 0 || precision > r.Interval() {
				precision = r.Interval()
			}
			field := fmt.Sprintf("%d:%d:", r.Interval(), precision)
			count, ok, err := l.store.HGet(ctx, hashKey, field)
			if err != nil {
				return nil, &StoreError{Op: "violated_rules", Err: err}
			}
			if !ok {
				continue // missing field reads as -1, never reported
			}
			if count >= r.Limit() {
				out = append(out, ViolatedRule{Interval: r.Interval(), Limit: r.Limit()})
			}
		}
	}
	return out, nil
}

// LimitedKeys filters keys down to those Check reports as denied, one
// store round trip per key. Documented, not optimized.
func (l *Limiter) LimitedKeys(ctx context.Context, keys ...string) ([]string, error) {
	var attempted int
	var out []string
	for _, k := range keys {
		if k == "" {
			continue
		}
		attempted++
		limited, err := l.Check(ctx, k)
		if err != nil {
			return nil, err
		}
		if limited {
			out = append(out, k)
		}
	}
	if attempted == 0 {
		return nil, rules.ErrNoValidKeys
	}
	return out, nil
}

// Keys returns every key under this Limiter's prefix, with the prefix
// stripped. Whitelist/blacklist set keys appear in this list alongside
// identifier hashes, so callers that care must filter them out themselves
// (e.g. by comparing against "whitelist"/"blacklist").
func (l *Limiter) Keys(ctx context.Context) ([]string, error) {
	raw, err := l.store.Keys(ctx, l.rules.GlobPattern())
	if err != nil {
		return nil, &StoreError{Op: "keys", Err: err}
	}
	out := make([]string, len(raw))
	for i, k := range raw {
		out[i] = l.rules.StripPrefix(k)
	}
	return out, nil
}

// Whitelist adds each key to the whitelist set and removes it from the
// blacklist set, one key at a time. This is not grouped into a single
// atomic unit across the list: a failure partway through leaves a partial
// result in place.
func (l *Limiter) Whitelist(ctx context.Context, keys ...string) error {
	return l.mutateSets(ctx, keys, l.rules.BlacklistSetKey(), l.rules.WhitelistSetKey())
}

// Unwhitelist removes each key from the whitelist set only.
func (l *Limiter) Unwhitelist(ctx context.Context, keys ...string) error {
	return l.removeFromSet(ctx, keys, l.rules.WhitelistSetKey())
}

// Blacklist adds each key to the blacklist set and removes it from the
// whitelist set, one key at a time.
func (l *Limiter) Blacklist(ctx context.Context, keys ...string) error {
	return l.mutateSets(ctx, keys, l.rules.WhitelistSetKey(), l.rules.BlacklistSetKey())
}

// Unblacklist removes each key from the blacklist set only.
func (l *Limiter) Unblacklist(ctx context.Context, keys ...string) error {
	return l.removeFromSet(ctx, keys, l.rules.BlacklistSetKey())
}

func (l *Limiter) mutateSets(ctx context.Context, keys []string, removeFrom, addTo string) error {
	normalized, err := l.rules.NormalizeKeys(keys)
	if err != nil {
		return err
	}
	for _, member := range normalized {
		if err := l.store.SRem(ctx, removeFrom, member); err != nil {
			return &StoreError{Op: "whitelist/blacklist", Err: err}
		}
		if err := l.store.SAdd(ctx, addTo, member); err != nil {
			return &StoreError{Op: "whitelist/blacklist", Err: err}
		}
	}
	return nil
}

func (l *Limiter) removeFromSet(ctx context.Context, keys []string, set string) error {
	normalized, err := l.rules.NormalizeKeys(keys)
	if err != nil {
		return err
	}
	for _, member := range normalized {
		if err := l.store.SRem(ctx, set, member); err != nil {
			return &StoreError{Op: "unwhitelist/unblacklist", Err: err}
		}
	}
	return nil
}
