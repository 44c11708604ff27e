package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidewin/ratelimit/internal/localguard"
	"slidewin/ratelimit/rules"
	"slidewin/ratelimit/store/fakestore"
)

func TestWithLocalGuard_ShortCircuitsBeforeTheStore(t *testing.T) {
	now := int64(1000)
	l, err := New(Config{
		Store: fakestore.New(),
		Rules: []rules.RuleDef{{Interval: 60, Limit: 1000}},
		Clock: func() int64 { return now },
	})
	require.NoError(t, err)
	l = WithLocalGuard(l, localguard.Config{RequestsPerSecond: 1, Burst: 1, CleanupInterval: 0})

	ctx := context.Background()

	denied, err := l.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, denied)

	// Second call exceeds the guard's burst of 1, well under the rule
	// limit of 1000, so the guard, not the store, must be what denies it.
	denied, err = l.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, denied)
}
