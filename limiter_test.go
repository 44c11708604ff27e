package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidewin/ratelimit/rules"
	"slidewin/ratelimit/store/fakestore"
)

func newTestLimiter(t *testing.T, now *int64, defs ...rules.RuleDef) *Limiter {
	t.Helper()
	l, err := New(Config{
		Store: fakestore.New(),
		Rules: defs,
		Clock: func() int64 { return *now },
	})
	require.NoError(t, err)
	return l
}

func TestCheck_AllowsUnderLimit(t *testing.T) {
	now := int64(1000)
	l := newTestLimiter(t, &now, rules.RuleDef{Interval: 60, Limit: 3})
	ctx := context.Background()

	denied, err := l.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, denied)
}

func TestIncr_DeniesAtLimitAndLeavesCountersUntouched(t *testing.T) {
	now := int64(1000)
	l := newTestLimiter(t, &now, rules.RuleDef{Interval: 60, Limit: 2})
	ctx := context.Background()

	denied, err := l.Incr(ctx, 1, "client-a")
	require.NoError(t, err)
	assert.False(t, denied)

	denied, err = l.Incr(ctx, 1, "client-a")
	require.NoError(t, err)
	assert.False(t, denied)

	// Third request exceeds limit=2; must be denied and must not mutate.
	denied, err = l.Incr(ctx, 1, "client-a")
	require.NoError(t, err)
	assert.True(t, denied)

	vr, err := l.ViolatedRules(ctx, "client-a")
	require.NoError(t, err)
	require.Len(t, vr, 1)
	assert.Equal(t, int64(60), vr[0].Interval)

	count, ok, err := l.store.HGet(ctx, "ratelimit:client-a", "60:60:")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), count, "the denied request must not have incremented the counter")
}

func TestIncr_WeightedRequestDeniedInOneShotLeavesNoPartialIncrement(t *testing.T) {
	now := int64(1000)
	l := newTestLimiter(t, &now, rules.RuleDef{Interval: 60, Limit: 5})
	ctx := context.Background()

	denied, err := l.Incr(ctx, 10, "client-a")
	require.NoError(t, err)
	assert.True(t, denied)

	// Nothing was ever incremented: a normal weight=1 request should still
	// see a fully empty window.
	for i := 0; i < 5; i++ {
		denied, err := l.Incr(ctx, 1, "client-a")
		require.NoError(t, err)
		assert.False(t, denied, "request %d should still be within the untouched limit", i)
	}
}

func TestIncr_WindowSlidesPastExpiredBuckets(t *testing.T) {
	now := int64(1000)
	l := newTestLimiter(t, &now, rules.RuleDef{Interval: 10, Limit: 1, Precision: 10})
	ctx := context.Background()

	denied, err := l.Incr(ctx, 1, "client-a")
	require.NoError(t, err)
	assert.False(t, denied)

	denied, err = l.Incr(ctx, 1, "client-a")
	require.NoError(t, err)
	assert.True(t, denied, "second request within the same window must be denied")

	now += 21
	denied, err = l.Incr(ctx, 1, "client-a")
	require.NoError(t, err)
	assert.False(t, denied, "request after the window elapsed must be allowed again")
}

func TestCheck_WhitelistOverridesBlacklist(t *testing.T) {
	now := int64(1000)
	l := newTestLimiter(t, &now, rules.RuleDef{Interval: 60, Limit: 1})
	ctx := context.Background()

	require.NoError(t, l.Blacklist(ctx, "client-a"))
	denied, err := l.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, denied)

	require.NoError(t, l.Whitelist(ctx, "client-a"))
	denied, err = l.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, denied, "whitelisting a blacklisted key must make Check allow it")
}

func TestCheck_BlacklistDeniesEvenUnderLimit(t *testing.T) {
	now := int64(1000)
	l := newTestLimiter(t, &now, rules.RuleDef{Interval: 60, Limit: 1000})
	ctx := context.Background()

	require.NoError(t, l.Blacklist(ctx, "client-a"))
	denied, err := l.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, denied)
}

func TestUnblacklist_RestoresNormalEvaluation(t *testing.T) {
	now := int64(1000)
	l := newTestLimiter(t, &now, rules.RuleDef{Interval: 60, Limit: 1000})
	ctx := context.Background()

	require.NoError(t, l.Blacklist(ctx, "client-a"))
	require.NoError(t, l.Unblacklist(ctx, "client-a"))

	denied, err := l.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, denied)
}

func TestCheck_MultipleKeysMostRestrictiveWins(t *testing.T) {
	now := int64(1000)
	l := newTestLimiter(t, &now, rules.RuleDef{Interval: 60, Limit: 1})
	ctx := context.Background()

	require.NoError(t, l.Blacklist(ctx, "device-1"))

	denied, err := l.Check(ctx, "user-1", "device-1")
	require.NoError(t, err)
	assert.True(t, denied, "one blacklisted key in the set must deny the whole request")
}

func TestLimitedKeys_FiltersToDeniedOnly(t *testing.T) {
	now := int64(1000)
	l := newTestLimiter(t, &now, rules.RuleDef{Interval: 60, Limit: 1})
	ctx := context.Background()

	require.NoError(t, l.Blacklist(ctx, "bad-actor"))

	out, err := l.LimitedKeys(ctx, "good-actor", "bad-actor")
	require.NoError(t, err)
	assert.Equal(t, []string{"bad-actor"}, out)
}

func TestLimitedKeys_AllEmptyReturnsErrNoValidKeys(t *testing.T) {
	now := int64(1000)
	l := newTestLimiter(t, &now, rules.RuleDef{Interval: 60, Limit: 1})
	ctx := context.Background()

	_, err := l.LimitedKeys(ctx, "", "")
	assert.ErrorIs(t, err, ErrNoValidKeys)
}

func TestKeys_ListsAndStripsPrefix(t *testing.T) {
	now := int64(1000)
	l := newTestLimiter(t, &now, rules.RuleDef{Interval: 60, Limit: 5})
	ctx := context.Background()

	_, err := l.Incr(ctx, 1, "client-a")
	require.NoError(t, err)

	keys, err := l.Keys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, "client-a")
}

func TestNew_RejectsNilStore(t *testing.T) {
	_, err := New(Config{Rules: []rules.RuleDef{{Interval: 60, Limit: 1}}})
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNew_RejectsEmptyRules(t *testing.T) {
	_, err := New(Config{Store: fakestore.New()})
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestCheck_DoesNotMutateCounters(t *testing.T) {
	now := int64(1000)
	l := newTestLimiter(t, &now, rules.RuleDef{Interval: 60, Limit: 1})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		denied, err := l.Check(ctx, "client-a")
		require.NoError(t, err)
		assert.False(t, denied)
	}

	// Check never mutates, so Incr should still see an empty window.
	denied, err := l.Incr(ctx, 1, "client-a")
	require.NoError(t, err)
	assert.False(t, denied)
}

func TestCheck_EmptyKeysError(t *testing.T) {
	now := int64(1000)
	l := newTestLimiter(t, &now, rules.RuleDef{Interval: 60, Limit: 1})
	ctx := context.Background()

	_, err := l.Check(ctx, "")
	assert.ErrorIs(t, err, ErrNoValidKeys)
}
