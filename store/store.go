// Package store defines the contract a remote key-value store with
// server-side scripting must satisfy for the limiter to use it.
//
// Connection construction, pooling, authentication, and TLS are
// collaborator concerns and live outside this package: Store
// implementations accept an already-constructed client.
package store

import "context"

// Store abstracts the backend primitives the limiter's atomic scripts and
// inspection methods need. Implementations must be safe for concurrent use.
type Store interface {
	// EvalByHash runs the script identified by its SHA-1 hex digest against
	// keys and args, returning the script's integer result. If the backend
	// has never seen this digest (or has evicted it), EvalByHash returns
	// ErrUnknownScript and callers fall back to EvalByBody.
	EvalByHash(ctx context.Context, sha1Hex string, keys []string, args []string) (int64, error)

	// EvalByBody runs the given script source against keys and args. The
	// backend is expected to retain the script under its SHA-1 digest as a
	// side effect, so a subsequent EvalByHash with that digest succeeds.
	EvalByBody(ctx context.Context, body string, keys []string, args []string) (int64, error)

	// HGet reads a single hash field. The bool is false if the field (or
	// the hash itself) does not exist.
	HGet(ctx context.Context, hashKey, field string) (int64, bool, error)

	// Keys lists keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// SAdd adds a member to a set, creating the set if needed.
	SAdd(ctx context.Context, set, member string) error

	// SRem removes a member from a set. Removing a member that isn't
	// present is not an error.
	SRem(ctx context.Context, set, member string) error
}

// unknownScriptError is a sentinel distinguished from every other store
// failure. Callers use errors.Is(err, ErrUnknownScript).
type unknownScriptError struct{}

func (unknownScriptError) Error() string { return "store: unknown script" }

// ErrUnknownScript is the single discriminant a Store implementation must
// surface when an EvalByHash call names a digest the backend doesn't have
// cached. Every other store failure propagates unchanged.
var ErrUnknownScript error = unknownScriptError{}
