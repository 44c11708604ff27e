// Package fakestore is an in-process test double for store.Store. It does
// not shell out to Lua or Redis; instead it reproduces, in Go, the exact
// arithmetic of the two scripts in package script, so the scenario tests
// in the package ratelimit test suite can run without a real
// Redis server. It is only ever imported from _test.go files.
package fakestore

import (
	"context"
	"strings"
	"sync"

	"slidewin/ratelimit/store"
)

// FakeStore implements store.Store entirely in memory.
type FakeStore struct {
	mu     sync.Mutex
	hashes map[string]map[string]int64
	sets   map[string]map[string]struct{}

	// digests maps a cached SHA-1 hex digest to its script body, modeling
	// the store's server-side script cache. ForgetScript removes an
	// entry to force the digest-then-body fallback in script.Cache.Exec.
	digests map[string]string
}

// New returns an empty FakeStore.
func New() *FakeStore {
	return &FakeStore{
		hashes:  make(map[string]map[string]int64),
		sets:    make(map[string]map[string]struct{}),
		digests: make(map[string]string),
	}
}

var _ store.Store = (*FakeStore)(nil)

// ForgetScript simulates the store evicting a cached script, forcing the
// next EvalByHash for that digest to return store.ErrUnknownScript.
func (f *FakeStore) ForgetScript(sha1Hex string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.digests, sha1Hex)
}

func (f *FakeStore) EvalByHash(ctx context.Context, sha1Hex string, keys []string, args []string) (int64, error) {
	f.mu.Lock()
	body, ok := f.digests[sha1Hex]
	f.mu.Unlock()
	if !ok {
		return 0, store.ErrUnknownScript
	}
	return f.run(body, keys, args)
}

func (f *FakeStore) EvalByBody(ctx context.Context, body string, keys []string, args []string) (int64, error) {
	sha1Hex := sha1Hex(body)
	f.mu.Lock()
	f.digests[sha1Hex] = body
	f.mu.Unlock()
	return f.run(body, keys, args)
}

func (f *FakeStore) HGet(ctx context.Context, hashKey, field string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[hashKey]
	if !ok {
		return 0, false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

func (f *FakeStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	match := globToPrefixMatcher(pattern)
	var out []string
	for k := range f.hashes {
		if match(k) {
			out = append(out, k)
		}
	}
	for k := range f.sets {
		if match(k) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *FakeStore) SAdd(ctx context.Context, set, member string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sets[set]
	if !ok {
		s = make(map[string]struct{})
		f.sets[set] = s
	}
	s[member] = struct{}{}
	return nil
}

func (f *FakeStore) SRem(ctx context.Context, set, member string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sets[set]; ok {
		delete(s, member)
	}
	return nil
}

// globToPrefixMatcher supports exactly the patterns this codebase ever
// issues: "*" or "<literal>:*".
func globToPrefixMatcher(pattern string) func(string) bool {
	if pattern == "*" {
		return func(string) bool { return true }
	}
	prefix := strings.TrimSuffix(pattern, "*")
	return func(k string) bool { return strings.HasPrefix(k, prefix) }
}
