package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoints(t *testing.T) {
	ctx := context.Background()

	t.Run("missing checkpoint reads as zero", func(t *testing.T) {
		c := New()
		got, err := c.GetNewestCursor(ctx, "conv-1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), got)
	})

	t.Run("cursor is monotonic", func(t *testing.T) {
		c := New()
		require.NoError(t, c.SetNewestCursor(ctx, "conv-1", 500))
		require.NoError(t, c.SetNewestCursor(ctx, "conv-1", 300))

		got, err := c.GetNewestCursor(ctx, "conv-1")
		require.NoError(t, err)
		assert.Equal(t, int64(500), got, "меньший курсор не откатывает больший")

		require.NoError(t, c.SetNewestCursor(ctx, "conv-1", 700))
		got, _ = c.GetNewestCursor(ctx, "conv-1")
		assert.Equal(t, int64(700), got)
	})

	t.Run("conversations are independent", func(t *testing.T) {
		c := New()
		require.NoError(t, c.SetNewestCursor(ctx, "conv-1", 100))

		got, err := c.GetNewestCursor(ctx, "conv-2")
		require.NoError(t, err)
		assert.Equal(t, int64(0), got)
	})
}
