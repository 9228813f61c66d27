package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoclient/internal/model"
	"github.com/convoclient/internal/protocol"
)

func raw(id, contentType string, body any) protocol.RawMessage {
	data, _ := json.Marshal(body)
	return protocol.RawMessage{
		ID:             id,
		ConversationID: "conv-1",
		SenderID:       "alice",
		SentAtNanos:    1000,
		ContentType:    contentType,
		Body:           data,
	}
}

func TestMessage(t *testing.T) {
	t.Run("text message", func(t *testing.T) {
		msg, err := Message(raw("m1", "text", model.TextContent{Text: "hi"}))

		require.NoError(t, err)
		assert.Equal(t, "m1", msg.ID)
		assert.Equal(t, "conv-1", msg.ConversationID)
		assert.Equal(t, model.TypeText, msg.Type)
		assert.Equal(t, model.StatusSent, msg.Status)
		assert.Equal(t, model.TextContent{Text: "hi"}, msg.Content)
	})

	t.Run("missing id is the only fatal defect", func(t *testing.T) {
		_, err := Message(protocol.RawMessage{ContentType: "text"})
		assert.ErrorIs(t, err, ErrMissingID)
	})

	t.Run("reaction with valid action", func(t *testing.T) {
		msg, err := Message(raw("r1", "reaction", model.ReactionContent{
			Reference: "m1",
			Action:    model.ReactionAdded,
			Schema:    "unicode",
			Content:   "❤️",
		}))

		require.NoError(t, err)
		require.Equal(t, model.TypeReaction, msg.Type)
		assert.True(t, IsReaction(msg))
		rc := msg.Content.(model.ReactionContent)
		assert.Equal(t, model.ReactionAdded, rc.Action)
	})

	t.Run("reaction with foreign action becomes unknown", func(t *testing.T) {
		msg, err := Message(raw("r1", "reaction", map[string]string{
			"reference": "m1",
			"action":    "superlike",
			"content":   "❤️",
		}))

		require.NoError(t, err)
		rc := msg.Content.(model.ReactionContent)
		assert.Equal(t, model.ReactionUnknown, rc.Action)
	})

	t.Run("reply without reference degrades to fallback text", func(t *testing.T) {
		r := raw("m1", "reply", map[string]string{})
		r.Fallback = "replied to a message"
		msg, err := Message(r)

		require.NoError(t, err)
		assert.Equal(t, model.TypeText, msg.Type)
		assert.Equal(t, model.TextContent{Text: "replied to a message"}, msg.Content)
	})

	t.Run("unknown content type uses protocol fallback", func(t *testing.T) {
		r := raw("m1", "hologram", map[string]string{"shape": "cube"})
		r.Fallback = "sent a hologram"
		msg, err := Message(r)

		require.NoError(t, err)
		assert.Equal(t, model.TypeText, msg.Type)
		assert.Equal(t, model.TextContent{Text: "sent a hologram"}, msg.Content)
	})

	t.Run("undecodable body without fallback gets placeholder", func(t *testing.T) {
		r := protocol.RawMessage{
			ID:          "m1",
			ContentType: "text",
			Body:        json.RawMessage(`{broken`),
		}
		msg, err := Message(r)

		require.NoError(t, err)
		tc := msg.Content.(model.TextContent)
		assert.NotEmpty(t, tc.Text)
	})

	t.Run("attachment content", func(t *testing.T) {
		msg, err := Message(raw("m1", "remote_attachment", model.RemoteAttachmentContent{
			URL:      "https://cdn.example/a.png",
			Filename: "a.png",
		}))

		require.NoError(t, err)
		assert.Equal(t, model.TypeRemoteAttachment, msg.Type)
		assert.True(t, model.IsAttachment(msg.Content))
	})
}
