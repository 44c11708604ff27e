package script

import (
	"context"
	"errors"
	"testing"

	"slidewin/ratelimit/store"
)

// memStore is a minimal store.Store double that only implements the
// digest-cache contract, for exercising script.Cache in isolation from
// store/fakestore's full rate-limiting arithmetic.
type memStore struct {
	bodies          map[string]string // sha1 -> body
	evalByHashCalls int
	evalByBodyCalls int
}

func newMemStore() *memStore {
	return &memStore{bodies: make(map[string]string)}
}

func (m *memStore) EvalByHash(ctx context.Context, sha1Hex string, keys, args []string) (int64, error) {
	m.evalByHashCalls++
	if _, ok := m.bodies[sha1Hex]; !ok {
		return 0, store.ErrUnknownScript
	}
	return 0, nil
}

func (m *memStore) EvalByBody(ctx context.Context, body string, keys, args []string) (int64, error) {
	m.evalByBodyCalls++
	sum := sha1Hex(body)
	m.bodies[sum] = body
	return 0, nil
}

func (m *memStore) HGet(ctx context.Context, hashKey, field string) (int64, bool, error) {
	return 0, false, nil
}
func (m *memStore) Keys(ctx context.Context, pattern string) ([]string, error) { return nil, nil }
func (m *memStore) SAdd(ctx context.Context, set, member string) error         { return nil }
func (m *memStore) SRem(ctx context.Context, set, member string) error        { return nil }

var _ store.Store = (*memStore)(nil)

func TestExec_FallsBackToBodyWhenDigestUnknown(t *testing.T) {
	c := NewCache(map[string]string{"greet": "return 0"})
	st := newMemStore()

	if _, err := c.Exec(context.Background(), st, "greet", nil, nil); err != nil {
		t.Fatal(err)
	}
	if st.evalByHashCalls != 1 || st.evalByBodyCalls != 1 {
		t.Errorf("first call: evalByHash=%d evalByBody=%d, want 1 and 1", st.evalByHashCalls, st.evalByBodyCalls)
	}

	if _, err := c.Exec(context.Background(), st, "greet", nil, nil); err != nil {
		t.Fatal(err)
	}
	if st.evalByHashCalls != 2 || st.evalByBodyCalls != 1 {
		t.Errorf("second call should hit the cached digest: evalByHash=%d evalByBody=%d, want 2 and 1", st.evalByHashCalls, st.evalByBodyCalls)
	}
}

func TestExec_UnknownNameIsError(t *testing.T) {
	c := NewCache(map[string]string{"greet": "return 0"})
	_, err := c.Exec(context.Background(), newMemStore(), "nope", nil, nil)
	if !errors.Is(err, ErrUnknownName) {
		t.Errorf("Exec() error = %v, want ErrUnknownName", err)
	}
}

func TestExec_PropagatesOtherStoreErrors(t *testing.T) {
	boom := errors.New("boom")
	c := NewCache(map[string]string{"greet": "return 0"})
	st := &failingStore{err: boom}

	_, err := c.Exec(context.Background(), st, "greet", nil, nil)
	if !errors.Is(err, boom) {
		t.Errorf("Exec() error = %v, want wrapping %v", err, boom)
	}
}

type failingStore struct{ err error }

func (f *failingStore) EvalByHash(ctx context.Context, sha1Hex string, keys, args []string) (int64, error) {
	return 0, f.err
}
func (f *failingStore) EvalByBody(ctx context.Context, body string, keys, args []string) (int64, error) {
	return 0, f.err
}
func (f *failingStore) HGet(ctx context.Context, hashKey, field string) (int64, bool, error) {
	return 0, false, nil
}
func (f *failingStore) Keys(ctx context.Context, pattern string) ([]string, error) { return nil, nil }
func (f *failingStore) SAdd(ctx context.Context, set, member string) error         { return nil }
func (f *failingStore) SRem(ctx context.Context, set, member string) error        { return nil }

var _ store.Store = (*failingStore)(nil)

func TestDefault_RegistersBothScripts(t *testing.T) {
	d := Default()
	if _, ok := d[NameCheckRateLimit]; !ok {
		t.Error("Default() missing check_rate_limit")
	}
	if _, ok := d[NameCheckLimitIncr]; !ok {
		t.Error("Default() missing check_limit_incr")
	}
}

func sha1Hex(body string) string {
	c := NewCache(map[string]string{"x": body})
	return c.entries["x"].sha1Hex
}
