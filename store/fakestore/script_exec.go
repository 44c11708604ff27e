package fakestore

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"slidewin/ratelimit/script"
)

func sha1Hex(body string) string {
	sum := sha1.Sum([]byte(body))
	return hex.EncodeToString(sum[:])
}

// ruleSpec mirrors what unpack_args produces: precision already clamped
// to min(precision or interval, interval).
type ruleSpec struct {
	interval  int64
	limit     int64
	precision int64
}

type parsedArgs struct {
	rules        []ruleSpec
	now          int64
	weight       int64
	whitelistKey string
	blacklistKey string
}

func parseArgs(args []string) (parsedArgs, error) {
	if len(args) != 5 {
		return parsedArgs{}, fmt.Errorf("fakestore: expected 5 args, got %d", len(args))
	}

	var raw [][]int64
	if err := json.Unmarshal([]byte(args[0]), &raw); err != nil {
		return parsedArgs{}, fmt.Errorf("fakestore: decoding rules: %w", err)
	}

	rulesOut := make([]ruleSpec, len(raw))
	for i, r := range raw {
		if len(r) < 2 {
			return parsedArgs{}, fmt.Errorf("fakestore: rule %d missing interval/limit", i)
		}
		interval, limit := r[0], r[1]
		precision := interval
		if len(r) >= 3 {
			precision = r[2]
			if precision > interval {
				precision = interval
			}
		}
		rulesOut[i] = ruleSpec{interval: interval, limit: limit, precision: precision}
	}

	now, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return parsedArgs{}, fmt.Errorf("fakestore: decoding now: %w", err)
	}
	weight, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return parsedArgs{}, fmt.Errorf("fakestore: decoding weight: %w", err)
	}

	return parsedArgs{
		rules:        rulesOut,
		now:          now,
		weight:       weight,
		whitelistKey: args[3],
		blacklistKey: args[4],
	}, nil
}

// floorDiv is Lua's math.floor(a/b) for integers, including negative a.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func countField(interval, precision int64) string {
	return fmt.Sprintf("%d:%d:", interval, precision)
}

// effectiveCount reproduces rl_effective_count from fragments.go: the
// stored cumulative count minus the weight of any bucket whose index has
// aged out of the window. It never mutates state.
func (f *FakeStore) effectiveCount(hashKey string, r ruleSpec, now int64) int64 {
	field := countField(r.interval, r.precision)
	h := f.hashes[hashKey]
	count := h[field]

	windowStart := floorDiv(now-r.interval, r.precision)
	var expired int64
	prefix := field
	for k, v := range h {
		if len(k) <= len(prefix) || k[:len(prefix)] != prefix {
			continue
		}
		bucketStr := k[len(prefix):]
		bucket, err := strconv.ParseInt(bucketStr, 10, 64)
		if err != nil {
			continue
		}
		if bucket < windowStart {
			expired += v
		}
	}
	return count - expired
}

// checkLimit reproduces the shared check_limit fragment: true if any
// (key, rule) pair has already reached its limit.
func (f *FakeStore) checkLimit(keys []string, rules []ruleSpec, now int64) bool {
	for _, key := range keys {
		for _, r := range rules {
			if f.effectiveCount(key, r, now) >= r.limit {
				return true
			}
		}
	}
	return false
}

// checkWhitelistBlacklist reproduces the per-key, whitelist-first
// short-circuit. ok is false when neither list short-circuited.
func (f *FakeStore) checkWhitelistBlacklist(keys []string, whitelistKey, blacklistKey string) (decision int64, ok bool) {
	for _, key := range keys {
		if _, in := f.sets[whitelistKey][key]; in {
			return 0, true
		}
		if _, in := f.sets[blacklistKey][key]; in {
			return 2, true
		}
	}
	return 0, false
}

func (f *FakeStore) runCheckRateLimit(keys []string, pa parsedArgs) int64 {
	if d, short := f.checkWhitelistBlacklist(keys, pa.whitelistKey, pa.blacklistKey); short {
		return d
	}
	if f.checkLimit(keys, pa.rules, pa.now) {
		return 1
	}
	return 0
}

func (f *FakeStore) runCheckLimitIncr(keys []string, pa parsedArgs) int64 {
	if d, short := f.checkWhitelistBlacklist(keys, pa.whitelistKey, pa.blacklistKey); short {
		return d
	}
	if f.checkLimit(keys, pa.rules, pa.now) {
		return 1
	}

	// Weighted pre-check: read-only, so a denial here leaves every
	// counter untouched.
	for _, key := range keys {
		for _, r := range pa.rules {
			if f.effectiveCount(key, r, pa.now)+pa.weight > r.limit {
				return 1
			}
		}
	}

	var maxInterval int64
	for _, r := range pa.rules {
		if r.interval > maxInterval {
			maxInterval = r.interval
		}
	}

	for _, key := range keys {
		h, ok := f.hashes[key]
		if !ok {
			h = make(map[string]int64)
			f.hashes[key] = h
		}
		for _, r := range pa.rules {
			field := countField(r.interval, r.precision)
			nowBucket := floorDiv(pa.now, r.precision)
			windowStart := floorDiv(pa.now-r.interval, r.precision)

			var expired int64
			for k, v := range h {
				if len(k) <= len(field) || k[:len(field)] != field {
					continue
				}
				bucket, err := strconv.ParseInt(k[len(field):], 10, 64)
				if err != nil {
					continue
				}
				if bucket < windowStart {
					expired += v
					delete(h, k)
				}
			}
			if expired > 0 {
				h[field] -= expired
			}

			bucketField := field + strconv.FormatInt(nowBucket, 10)
			h[bucketField] += pa.weight
			h[field] += pa.weight
		}
		// TTL/expiry on the hash key itself has no observable effect in
		// this in-memory double, since nothing in the test suite asserts
		// on wall-clock eviction of an otherwise-untouched key.
	}
	return 0
}

func (f *FakeStore) run(body string, keys []string, args []string) (int64, error) {
	pa, err := parseArgs(args)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch body {
	case script.CheckRateLimit:
		return f.runCheckRateLimit(keys, pa), nil
	case script.CheckLimitIncr:
		return f.runCheckLimitIncr(keys, pa), nil
	default:
		return 0, fmt.Errorf("fakestore: unrecognized script body")
	}
}
