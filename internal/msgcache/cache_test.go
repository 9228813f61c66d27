package msgcache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoclient/internal/model"
)

func msg(id string, nanos int64) model.Message {
	return model.Message{
		ID:          id,
		SenderID:    "alice",
		SentAtNanos: nanos,
		Status:      model.StatusSent,
		Type:        model.TypeText,
		Content:     model.TextContent{Text: "m " + id},
	}
}

func TestMerge(t *testing.T) {
	t.Run("batch lands newest first", func(t *testing.T) {
		c := New(0)
		c.Merge([]model.Message{msg("a", 100), msg("c", 300), msg("b", 200)}, Append)

		assert.Equal(t, []string{"c", "b", "a"}, c.OrderedIDs())
		assert.Equal(t, int64(300), c.NewestNanos())
		assert.Equal(t, int64(100), c.OldestNanos())
	})

	t.Run("merge is idempotent", func(t *testing.T) {
		c := New(0)
		batch := []model.Message{msg("a", 100), msg("b", 200)}
		c.Merge(batch, Append)
		c.Merge(batch, Append)

		assert.Equal(t, 2, c.Len())
		assert.Equal(t, []string{"b", "a"}, c.OrderedIDs())
	})

	t.Run("redelivery replaces record but keeps position", func(t *testing.T) {
		c := New(0)
		c.Merge([]model.Message{msg("a", 100), msg("b", 200), msg("c", 300)}, Append)

		// Повторная доставка b с другим содержимым (сервер побеждает)
		updated := msg("b", 200)
		updated.Content = model.TextContent{Text: "updated"}
		c.Merge([]model.Message{updated}, Append)

		assert.Equal(t, []string{"c", "b", "a"}, c.OrderedIDs())
		got, ok := c.Get("b")
		require.True(t, ok)
		assert.Equal(t, model.TextContent{Text: "updated"}, got.Content)
	})

	t.Run("prepend older page goes to the tail", func(t *testing.T) {
		c := New(0)
		c.Merge([]model.Message{msg("new1", 500), msg("new2", 600)}, Append)
		c.Merge([]model.Message{msg("old1", 100), msg("old2", 200)}, Prepend)

		assert.Equal(t, []string{"new2", "new1", "old2", "old1"}, c.OrderedIDs())
	})

	t.Run("interleaved batch keeps timestamp order", func(t *testing.T) {
		c := New(0)
		c.Merge([]model.Message{msg("a", 100), msg("c", 300)}, Append)
		c.Merge([]model.Message{msg("b", 200), msg("d", 400)}, Append)

		assert.Equal(t, []string{"d", "c", "b", "a"}, c.OrderedIDs())
	})

	t.Run("eviction drops oldest beyond limit", func(t *testing.T) {
		c := New(3)
		c.Merge([]model.Message{msg("a", 100), msg("b", 200), msg("c", 300)}, Append)
		evicted := c.Merge([]model.Message{msg("d", 400), msg("e", 500)}, Append)

		assert.ElementsMatch(t, []string{"a", "b"}, evicted)
		assert.Equal(t, []string{"e", "d", "c"}, c.OrderedIDs())
		_, ok := c.Get("a")
		assert.False(t, ok)
	})

	t.Run("large backfill stays bounded", func(t *testing.T) {
		c := New(50)
		for page := 0; page < 10; page++ {
			batch := make([]model.Message, 0, 20)
			for i := 0; i < 20; i++ {
				n := int64(10000 - page*20 - i)
				batch = append(batch, msg(fmt.Sprintf("m%d-%d", page, i), n))
			}
			c.Merge(batch, Prepend)
		}
		assert.Equal(t, 50, c.Len())
	})

	t.Run("empty and id-less records are skipped", func(t *testing.T) {
		c := New(0)
		assert.Nil(t, c.Merge(nil, Append))
		c.Merge([]model.Message{{SentAtNanos: 100}}, Append)
		assert.Equal(t, 0, c.Len())
	})
}

func TestRewrite(t *testing.T) {
	t.Run("temp id becomes permanent in place", func(t *testing.T) {
		c := New(0)
		c.Merge([]model.Message{msg("a", 100), msg("tmp-1", 200), msg("b", 300)}, Append)

		require.True(t, c.Rewrite("tmp-1", "real-42"))

		assert.Equal(t, []string{"b", "real-42", "a"}, c.OrderedIDs())
		_, ok := c.Get("tmp-1")
		assert.False(t, ok)
		got, ok := c.Get("real-42")
		require.True(t, ok)
		assert.Equal(t, int64(200), got.SentAtNanos, "метка времени записи не меняется")
	})

	t.Run("collapses into server copy on clash", func(t *testing.T) {
		c := New(0)
		c.Merge([]model.Message{msg("tmp-1", 200)}, Append)
		// Поток успел доставить серверную копию раньше реконсиляции
		server := msg("real-42", 250)
		c.Merge([]model.Message{server}, Append)

		require.True(t, c.Rewrite("tmp-1", "real-42"))

		assert.Equal(t, []string{"real-42"}, c.OrderedIDs())
		got, _ := c.Get("real-42")
		assert.Equal(t, int64(250), got.SentAtNanos)
	})

	t.Run("unknown temp id returns false", func(t *testing.T) {
		c := New(0)
		assert.False(t, c.Rewrite("tmp-nope", "real-1"))
	})
}

func TestSetStatus(t *testing.T) {
	c := New(0)
	m := msg("tmp-1", 100)
	m.Status = model.StatusSending
	c.Merge([]model.Message{m}, Append)

	c.SetStatus("tmp-1", model.StatusError)

	got, ok := c.Get("tmp-1")
	require.True(t, ok)
	assert.Equal(t, model.StatusError, got.Status)
	assert.Equal(t, model.TextContent{Text: "m tmp-1"}, got.Content, "содержимое не трогается")
}

func TestSnapshot(t *testing.T) {
	c := New(0)
	c.Merge([]model.Message{msg("a", 100)}, Append)

	snap := c.Snapshot()
	c.Merge([]model.Message{msg("b", 200)}, Append)

	assert.Len(t, snap, 1, "снапшот не видит последующих слияний")
	assert.Equal(t, "a", snap[0].ID)
}
