package idx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/opsdesk/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewIsOrdered(t *testing.T) {
	t.Parallel()

	// Epoch comparison relies on ULIDs minted back-to-back still sorting
	// in mint order, even within one millisecond.
	prev := idx.New()
	for range 100 {
		next := idx.New()
		require.Less(t, prev.String(), next.String())
		prev = next
	}
}

func TestNewAt(t *testing.T) {
	t.Parallel()

	a := idx.NewAt(time.Unix(1_700_000_000, 0))
	b := idx.NewAt(time.Unix(1_700_000_100, 0))
	require.Less(t, a.String(), b.String())
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		id := idx.New()
		parsed, err := idx.Parse(id.String())
		require.NoError(t, err)
		require.Equal(t, id, parsed)
	})

	t.Run("rejects junk", func(t *testing.T) {
		for _, s := range []string{"", "   ", "not-a-ulid", "01ARZ3NDEKTSV4RRFFQ69G5FA!"} {
			_, err := idx.Parse(s)
			require.ErrorIs(t, err, idx.ErrInvalid)
		}
	})

	t.Run("zero id", func(t *testing.T) {
		require.True(t, idx.Zero.IsZero())
		require.False(t, idx.New().IsZero())
	})
}
