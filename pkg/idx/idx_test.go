package idx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/passport/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewIsParseable(t *testing.T) {
	id := idx.New()
	require.False(t, id.IsZero())

	parsed, err := idx.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestNewAtOrdering(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	a := idx.NewAt(base)
	b := idx.NewAt(base.Add(time.Millisecond))
	require.Less(t, a.String(), b.String())
	require.Equal(t, base.UnixMilli(), a.Time().UnixMilli())
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "   ", "not-a-ulid", "01J!!!"} {
		_, err := idx.Parse(s)
		require.ErrorIs(t, err, idx.ErrInvalid, s)
	}
}

func TestPrefixed(t *testing.T) {
	s := idx.Prefixed("sia")
	require.Contains(t, s, "sia_")

	id, err := idx.ParsePrefixed("sia", s)
	require.NoError(t, err)
	require.False(t, id.IsZero())

	_, err = idx.ParsePrefixed("otl", s)
	require.ErrorIs(t, err, idx.ErrInvalid)
}

func TestZeroTime(t *testing.T) {
	require.True(t, idx.Zero.Time().IsZero())
	require.True(t, idx.ID("garbage").Time().IsZero())
}
