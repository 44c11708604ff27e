package script

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"

	"slidewin/ratelimit/store"
)

// ErrUnknownName is returned by Exec when asked to run a script name that
// wasn't registered with NewCache. It signals a programming error in the
// caller, never a store failure.
var ErrUnknownName = errors.New("script: unknown script name")

type entry struct {
	sha1Hex string
	body    string
}

// Cache holds the SHA-1 digest of each named script body, computed once.
// It never invalidates client-side: the digest-then-body fallback in Exec
// is what handles the store evicting its own script cache.
type Cache struct {
	entries map[string]entry
}

// NewCache computes the SHA-1 digest of every script body once and returns
// a Cache ready to Exec against any store.Store.
func NewCache(scripts map[string]string) *Cache {
	entries := make(map[string]entry, len(scripts))
	for name, body := range scripts {
		sum := sha1.Sum([]byte(body))
		entries[name] = entry{sha1Hex: hex.EncodeToString(sum[:]), body: body}
	}
	return &Cache{entries: entries}
}

// Exec runs the named script: by digest first, falling back to sending the
// full body once if the store reports it doesn't recognize the digest. Any
// other store error propagates unchanged.
func (c *Cache) Exec(ctx context.Context, st store.Store, name string, keys, args []string) (int64, error) {
	e, ok := c.entries[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownName, name)
	}

	n, err := st.EvalByHash(ctx, e.sha1Hex, keys, args)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, store.ErrUnknownScript) {
		return 0, err
	}
	return st.EvalByBody(ctx, e.body, keys, args)
}
