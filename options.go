package ratelimit

import (
	"time"

	"slidewin/ratelimit/rules"
	"slidewin/ratelimit/script"
	"slidewin/ratelimit/store"
)

const defaultPrefix = "ratelimit"

// Prefix returns a pointer to s for use as Config.Prefix, including the
// empty string, which is otherwise indistinguishable from "not set" on a
// plain string field. Most callers leave Config.Prefix nil and get the
// "ratelimit" default; pass Prefix("") to explicitly request no prefix.
func Prefix(s string) *string { return &s }

// Config is the constructor configuration for a Limiter.
type Config struct {
	// Store is the backend. Required.
	Store store.Store

	// Rules is the ordered ruleset. Required, non-empty.
	Rules []rules.RuleDef

	// Prefix overrides the default "ratelimit" prefix. Nil means
	// "ratelimit"; use Prefix("") to request no prefix at all.
	Prefix *string

	// ClientPrefixMode, when true, passes identifier keys to the store
	// unprefixed. The store client is assumed to prepend the prefix
	// transparently on the wire. Whitelist/blacklist set names are always
	// fully qualified regardless.
	ClientPrefixMode bool

	// Clock returns the current time in seconds. Defaults to
	// time.Now().Unix. Exposed so callers can test deterministic window
	// boundaries without a real clock.
	Clock func() int64

	// Scripts overrides the registered script bodies by name. Defaults to
	// script.Default(). Tests that want to exercise the digest-then-body
	// fallback against store/fakestore normally leave this unset.
	Scripts map[string]string
}

// New validates cfg and constructs a Limiter. ConfigError surfaces here;
// every other error in this package surfaces from a method call.
func New(cfg Config) (*Limiter, error) {
	if cfg.Store == nil {
		return nil, &ConfigError{Reason: "store is required"}
	}

	prefix := defaultPrefix
	if cfg.Prefix != nil {
		prefix = *cfg.Prefix
	}

	rs, err := rules.New(cfg.Rules, prefix, cfg.ClientPrefixMode)
	if err != nil {
		return nil, err
	}

	scripts := cfg.Scripts
	if scripts == nil {
		scripts = script.Default()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = func() int64 { return time.Now().Unix() }
	}

	return &Limiter{
		store: cfg.Store,
		rules: rs,
		cache: script.NewCache(scripts),
		clock: clock,
	}, nil
}
