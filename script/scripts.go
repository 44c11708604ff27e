// Package script owns the two atomic programs the limiter sends to the
// store, and the digest-cached evaluation protocol that runs them.
//
// The three-valued return code is deliberate: {0=allow, 1=rate-limited,
// 2=blacklisted}. Callers currently collapse {1,2} to "denied", but the
// richer signal is kept so a future caller can tell the two apart without
// a protocol change.
package script

// Names under which the two programs are registered with NewCache.
const (
	NameCheckRateLimit = "check_rate_limit"
	NameCheckLimitIncr = "check_limit_incr"
)

// CheckRateLimit is the check-only script: unpack_args, whitelist/blacklist
// short-circuit, then check_limit. It never writes to the store.
const CheckRateLimit = unpackArgs + checkWhitelistBlacklist + checkLimit + "\nreturn 0\n"

// CheckLimitIncr is the check-and-increment script: the same read-only
// prefix as CheckRateLimit, followed by the weighted mutation pass.
const CheckLimitIncr = unpackArgs + checkWhitelistBlacklist + checkLimit + checkIncrLimit

// Default returns the name -> body mapping a Cache is constructed from.
func Default() map[string]string {
	return map[string]string{
		NameCheckRateLimit: CheckRateLimit,
		NameCheckLimitIncr: CheckLimitIncr,
	}
}
