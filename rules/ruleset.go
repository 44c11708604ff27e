// Package rules holds the limiter's ruleset and its identifier-prefixing
// policy: the things that must agree on the wire between the client and
// the atomic scripts in package script.
package rules

import (
	"encoding/json"
	"fmt"
)

// RuleDef is the constructor-facing shape of a rule: Interval and Limit
// are required and must be positive; Precision is optional. Clamping
// Precision to min(Precision, Interval) happens script-side, so a RuleDef
// round-trips through MarshalArgs verbatim: New does not mutate the
// caller's values.
type RuleDef struct {
	Interval  int64
	Limit     int64
	Precision int64 // 0 means "unset", defaults to Interval script-side
}

// Rule is a validated, immutable RuleDef.
type Rule struct {
	def RuleDef
}

func (r Rule) Interval() int64  { return r.def.Interval }
func (r Rule) Limit() int64     { return r.def.Limit }
func (r Rule) Precision() int64 { return r.def.Precision }

// ConfigError reports a malformed rule or ruleset supplied at construction.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "ratelimit: config error: " + e.Reason }

// RuleSet holds the ordered, validated rule list plus the prefixing policy
// applied to every identifier and to the whitelist/blacklist set names.
type RuleSet struct {
	rules            []Rule
	prefix           string
	clientPrefixMode bool
}

// New validates defs and stores them unchanged. Order is preserved: ViolatedRules
// walks rules in rule-set order, so reordering defs changes the order its
// results come back in.
func New(defs []RuleDef, prefix string, clientPrefixMode bool) (*RuleSet, error) {
	if len(defs) == 0 {
		return nil, &ConfigError{Reason: "rules: at least one rule is required"}
	}
	rules := make([]Rule, 0, len(defs))
	for i, d := range defs {
		if d.Interval <= 0 {
			return nil, &ConfigError{Reason: fmt.Sprintf("rule %d: interval must be positive", i)}
		}
		if d.Limit <= 0 {
			return nil, &ConfigError{Reason: fmt.Sprintf("rule %d: limit must be positive", i)}
		}
		if d.Precision < 0 {
			return nil, &ConfigError{Reason: fmt.Sprintf("rule %d: precision must not be negative", i)}
		}
		rules = append(rules, Rule{def: d})
	}
	return &RuleSet{rules: rules, prefix: prefix, clientPrefixMode: clientPrefixMode}, nil
}

// Rules returns the ordered, validated rule list.
func (rs *RuleSet) Rules() []Rule { return rs.rules }

// MaxInterval returns the widest configured interval. The atomic scripts
// compute the same value themselves when setting the counter hash's
// expiry; they do not receive it from this method.
func (rs *RuleSet) MaxInterval() int64 {
	var max int64
	for _, r := range rs.rules {
		if r.Interval() > max {
			max = r.Interval()
		}
	}
	return max
}

// MarshalArgs serializes the ruleset as the JSON array-of-arrays wire
// format the atomic scripts expect: [[interval, limit, precision?], ...],
// numeric, never quoted.
func (rs *RuleSet) MarshalArgs() (string, error) {
	out := make([][]int64, len(rs.rules))
	for i, r := range rs.rules {
		if r.Precision() > 0 {
			out[i] = []int64{r.Interval(), r.Limit(), r.Precision()}
		} else {
			out[i] = []int64{r.Interval(), r.Limit()}
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Prefix applies the configured prefix policy to key.
//
// If client_prefix_mode is true and force is false, key is returned
// unchanged: the store client is assumed to prepend the prefix
// transparently on the wire. Otherwise the configured prefix is prepended,
// eliding the delimiter when the prefix is empty. Whitelist/blacklist set
// names are always computed with force=true so they are fully qualified
// regardless of client mode; identifier keys passed to the scripts use
// force=false.
func (rs *RuleSet) Prefix(key string, force bool) string {
	if rs.clientPrefixMode && !force {
		return key
	}
	if rs.prefix == "" {
		return key
	}
	return rs.prefix + ":" + key
}

// WhitelistSetKey and BlacklistSetKey are always fully prefixed.
func (rs *RuleSet) WhitelistSetKey() string { return rs.Prefix("whitelist", true) }
func (rs *RuleSet) BlacklistSetKey() string { return rs.Prefix("blacklist", true) }

// GlobPattern returns the pattern Keys() should list against: the literal
// configured prefix followed by ":*", regardless of client_prefix_mode.
// That flag only affects what the caller has to pass in when naming an
// identifier, not the namespace the keys actually live under.
func (rs *RuleSet) GlobPattern() string {
	if rs.prefix == "" {
		return "*"
	}
	return rs.prefix + ":*"
}

// StripPrefix removes the configured "<prefix>:" from key if present, for
// presenting Keys() results to the caller with the prefix stripped.
func (rs *RuleSet) StripPrefix(key string) string {
	if rs.prefix == "" {
		return key
	}
	p := rs.prefix + ":"
	if len(key) > len(p) && key[:len(p)] == p {
		return key[len(p):]
	}
	return key
}

// ErrNoValidKeys is returned by NormalizeKeys when every supplied
// identifier was empty.
var ErrNoValidKeys = fmt.Errorf("rules: no valid keys")

// NormalizeKeys drops empty identifiers and prefixes the rest with
// force=false. It fails with ErrNoValidKeys if nothing survives.
func (rs *RuleSet) NormalizeKeys(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		if k == "" {
			continue
		}
		out = append(out, rs.Prefix(k, false))
	}
	if len(out) == 0 {
		return nil, ErrNoValidKeys
	}
	return out, nil
}
