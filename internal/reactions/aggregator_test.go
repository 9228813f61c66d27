package reactions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoclient/internal/model"
)

func reaction(id, sender string, nanos int64, action model.ReactionAction, emoji string) model.Message {
	return model.Message{
		ID:          id,
		SenderID:    sender,
		SentAtNanos: nanos,
		Type:        model.TypeReaction,
		Content: model.ReactionContent{
			Reference: "msg-1",
			Action:    action,
			Schema:    "unicode",
			Content:   emoji,
		},
	}
}

func TestFold(t *testing.T) {
	t.Run("added appears in both maps", func(t *testing.T) {
		idx := Fold(model.NewReactionIndex(), []model.Message{
			reaction("r1", "alice", 100, model.ReactionAdded, "❤️"),
		})

		require.True(t, idx.Has("alice", "❤️"))
		assert.Equal(t, []string{"alice"}, idx.ByContent["❤️"])
		assert.Len(t, idx.BySender["alice"], 1)
	})

	t.Run("added then removed cancels out", func(t *testing.T) {
		idx := Fold(model.NewReactionIndex(), []model.Message{
			reaction("r1", "alice", 100, model.ReactionAdded, "❤️"),
			reaction("r2", "alice", 200, model.ReactionRemoved, "❤️"),
		})

		assert.True(t, idx.IsEmpty())
	})

	t.Run("out of order delivery folds by send time", func(t *testing.T) {
		// removed доставлен раньше added, но отправлен позже
		idx := Fold(model.NewReactionIndex(), []model.Message{
			reaction("r2", "alice", 200, model.ReactionRemoved, "❤️"),
			reaction("r1", "alice", 100, model.ReactionAdded, "❤️"),
		})

		assert.True(t, idx.IsEmpty())
	})

	t.Run("duplicate added is idempotent", func(t *testing.T) {
		idx := Fold(model.NewReactionIndex(), []model.Message{
			reaction("r1", "alice", 100, model.ReactionAdded, "❤️"),
			reaction("r1-again", "alice", 150, model.ReactionAdded, "❤️"),
		})

		assert.Len(t, idx.BySender["alice"], 1)
		assert.Equal(t, []string{"alice"}, idx.ByContent["❤️"])
	})

	t.Run("removed without prior added is a no-op", func(t *testing.T) {
		idx := Fold(model.NewReactionIndex(), []model.Message{
			reaction("r1", "alice", 100, model.ReactionRemoved, "❤️"),
		})

		assert.True(t, idx.IsEmpty())
	})

	t.Run("unknown action is ignored", func(t *testing.T) {
		idx := Fold(model.NewReactionIndex(), []model.Message{
			reaction("r1", "alice", 100, model.ReactionAdded, "❤️"),
			reaction("r2", "alice", 200, model.ReactionUnknown, "❤️"),
		})

		assert.True(t, idx.Has("alice", "❤️"))
	})

	t.Run("different senders same emoji", func(t *testing.T) {
		idx := Fold(model.NewReactionIndex(), []model.Message{
			reaction("r1", "alice", 100, model.ReactionAdded, "👍"),
			reaction("r2", "bob", 200, model.ReactionAdded, "👍"),
			reaction("r3", "alice", 300, model.ReactionRemoved, "👍"),
		})

		assert.False(t, idx.Has("alice", "👍"))
		assert.True(t, idx.Has("bob", "👍"))
		assert.Equal(t, []string{"bob"}, idx.ByContent["👍"])
	})

	t.Run("input index is not mutated", func(t *testing.T) {
		base := Fold(model.NewReactionIndex(), []model.Message{
			reaction("r1", "alice", 100, model.ReactionAdded, "❤️"),
		})

		_ = Fold(base, []model.Message{
			reaction("r2", "alice", 200, model.ReactionRemoved, "❤️"),
		})

		assert.True(t, base.Has("alice", "❤️"), "Fold должен возвращать новый индекс")
	})
}

func TestExtractAndFold(t *testing.T) {
	t.Run("groups reactions by target", func(t *testing.T) {
		r1 := reaction("r1", "alice", 100, model.ReactionAdded, "❤️")
		r2 := reaction("r2", "bob", 200, model.ReactionAdded, "👍")
		rc := r2.Content.(model.ReactionContent)
		rc.Reference = "msg-2"
		r2.Content = rc

		text := model.Message{
			ID:          "m1",
			SenderID:    "carol",
			SentAtNanos: 300,
			Type:        model.TypeText,
			Content:     model.TextContent{Text: "hi"},
		}

		byTarget := ExtractAndFold([]model.Message{r1, r2, text})

		require.Len(t, byTarget, 2)
		assert.True(t, byTarget["msg-1"].Has("alice", "❤️"))
		assert.True(t, byTarget["msg-2"].Has("bob", "👍"))
	})

	t.Run("reaction without reference is skipped", func(t *testing.T) {
		r := reaction("r1", "alice", 100, model.ReactionAdded, "❤️")
		rc := r.Content.(model.ReactionContent)
		rc.Reference = ""
		r.Content = rc

		byTarget := ExtractAndFold([]model.Message{r})
		assert.Empty(t, byTarget)
	})
}
