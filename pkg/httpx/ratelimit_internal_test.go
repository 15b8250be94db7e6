package httpx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBucketsRefillAndSweep(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b := newBuckets(RateLimit{Requests: 60, Window: time.Minute, Burst: 1}, start)

	ok, _ := b.take("a", start)
	require.True(t, ok)

	ok, wait := b.take("a", start)
	require.False(t, ok)
	require.Equal(t, time.Second, wait)

	ok, _ = b.take("a", start.Add(time.Second))
	require.True(t, ok)

	ok, _ = b.take("b", start.Add(time.Second))
	require.True(t, ok)
	require.Equal(t, 2, b.size())

	// Only b is touched again; a goes idle and is dropped.
	ok, _ = b.take("b", start.Add(4*time.Minute))
	require.True(t, ok)
	ok, _ = b.take("b", start.Add(5*time.Minute+2*time.Second))
	require.True(t, ok)
	require.Equal(t, 1, b.size())
}
