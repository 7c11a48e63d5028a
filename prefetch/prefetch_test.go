package prefetch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutDeliveredThenGet(t *testing.T) {
	c, err := NewCaches[string](4)
	require.NoError(t, err)

	c.PutDelivered(10, "hello")
	v, ok := c.Get(10)
	require.True(t, ok)
	require.Equal(t, "hello", v)

	_, ok = c.Get(99)
	require.False(t, ok)
}

func TestPrefetchedHitPromotesToMain(t *testing.T) {
	c, err := NewCaches[string](4)
	require.NoError(t, err)

	c.PutPrefetched(20, "world")
	v, ok := c.Get(20)
	require.True(t, ok)
	require.Equal(t, "world", v)

	c.ClearMain()
	// A prior prefetch hit should have been promoted into main and then
	// purged by ClearMain; it must not still answer from the prefetch
	// cache a second time in a way that hides the purge.
	_, ok = c.Get(20)
	require.False(t, ok)
}

func TestFailedRecording(t *testing.T) {
	c, err := NewCaches[int](4)
	require.NoError(t, err)

	require.False(t, c.Failed(7))
	c.PutFailed(7)
	require.True(t, c.Failed(7))
}

func TestInflightTracking(t *testing.T) {
	c, err := NewCaches[int](4)
	require.NoError(t, err)

	require.True(t, c.TryMarkInflight(1))
	require.False(t, c.TryMarkInflight(1), "second claim of the same offset must fail")
	require.True(t, c.IsInflight(1))

	c.ClearInflight(1)
	require.False(t, c.IsInflight(1))
	require.True(t, c.TryMarkInflight(1), "offset must be claimable again after clearing")
}

func TestClassifierDetectsSequentialAccess(t *testing.T) {
	c := NewClassifier()
	require.Equal(t, Random, c.Pattern())

	for i := int64(0); i < AccessHistorySize; i++ {
		c.Record(i)
	}
	require.Equal(t, Sequential, c.Pattern())
}

func TestClassifierDetectsRandomAccess(t *testing.T) {
	c := NewClassifier()
	c.Record(0)
	c.Record(100)
	c.Record(5)
	require.Equal(t, Random, c.Pattern())
}

func TestClassifierHistoryWindowSlides(t *testing.T) {
	c := NewClassifier()
	// Push a random entry, then enough sequential entries to push it out
	// of the fixed-size history window.
	c.Record(1000)
	for i := int64(0); i < AccessHistorySize; i++ {
		c.Record(i)
	}
	require.Equal(t, Sequential, c.Pattern())
}

func TestIsCachedOrInflightOrFailed(t *testing.T) {
	c, err := NewCaches[string](4)
	require.NoError(t, err)

	require.False(t, c.IsCachedOrInflightOrFailed(1))

	c.PutDelivered(1, "a")
	require.True(t, c.IsCachedOrInflightOrFailed(1))

	c.PutPrefetched(2, "b")
	require.True(t, c.IsCachedOrInflightOrFailed(2))

	c.PutFailed(3)
	require.True(t, c.IsCachedOrInflightOrFailed(3))

	require.True(t, c.TryMarkInflight(4))
	require.True(t, c.IsCachedOrInflightOrFailed(4))
	c.ClearInflight(4)
	require.False(t, c.IsCachedOrInflightOrFailed(4))
}

func TestPrefetchOldestKey(t *testing.T) {
	c, err := NewCaches[string](4)
	require.NoError(t, err)

	_, ok := c.PrefetchOldestKey()
	require.False(t, ok)

	c.PutPrefetched(10, "a")
	c.PutPrefetched(20, "b")

	oldest, ok := c.PrefetchOldestKey()
	require.True(t, ok)
	require.Equal(t, int64(10), oldest)
}

func TestEvictionSafe(t *testing.T) {
	pending := []int64{1, 2, 3}
	require.False(t, EvictionSafe(2, pending))
	require.True(t, EvictionSafe(99, pending))
}
