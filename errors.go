package ratelimit

import (
	"fmt"

	"slidewin/ratelimit/rules"
	"slidewin/ratelimit/script"
)

// ConfigError reports a malformed rule or ruleset supplied at construction.
// It is the same type rules.New returns, re-exported here since it is the
// error constructing a Limiter surfaces.
type ConfigError = rules.ConfigError

// ErrNoValidKeys is returned when every identifier passed to a method was
// empty after normalization.
var ErrNoValidKeys = rules.ErrNoValidKeys

// ErrUnknownScriptName signals a programmer error: Exec was asked to run a
// script name the Cache never registered. It never originates from the
// store.
var ErrUnknownScriptName = script.ErrUnknownName

// StoreError wraps any store-side failure other than the "unknown script"
// signal the Cache already recovers from. Op identifies which limiter
// operation triggered it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("ratelimit: %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// ScriptError reports that a script returned an integer outside the
// documented {0, 1, 2} protocol. Treated as fatal: there is no recovery
// path, since it means the script body and this client have drifted.
type ScriptError struct {
	Op  string
	Got int64
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("ratelimit: %s: script returned unexpected value %d (want 0, 1, or 2)", e.Op, e.Got)
}
