package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoclient/internal/model"
	"github.com/convoclient/internal/protocol"
)

func newTestRouter() (*chi.Mux, *MemoryStore) {
	store := NewMemoryStore()
	h := NewHandler(store, NewHub(10), "*")
	r := chi.NewRouter()
	h.Routes(r)
	return r, store
}

func postMessage(t *testing.T, r http.Handler, convID string, req publishRequest) protocol.RawMessage {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/conversations/"+convID+"/messages", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var msg protocol.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	return msg
}

func TestPublishMessage(t *testing.T) {
	t.Run("assigns id and server timestamp", func(t *testing.T) {
		r, _ := newTestRouter()
		body, _ := json.Marshal(model.TextContent{Text: "hi"})

		msg := postMessage(t, r, "conv-1", publishRequest{
			SenderID:    "alice",
			ContentType: "text",
			Body:        body,
		})

		assert.NotEmpty(t, msg.ID)
		assert.False(t, model.IsTemporary(msg.ID))
		assert.Equal(t, "conv-1", msg.ConversationID)
		assert.Positive(t, msg.SentAtNanos)
	})

	t.Run("rejects message without sender", func(t *testing.T) {
		r, _ := newTestRouter()
		body, _ := json.Marshal(publishRequest{ContentType: "text"})

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/conversations/conv-1/messages", bytes.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reaction updates server projection", func(t *testing.T) {
		r, store := newTestRouter()
		body, _ := json.Marshal(model.ReactionContent{
			Reference: "m1",
			Action:    model.ReactionAdded,
			Schema:    "unicode",
			Content:   "❤️",
		})

		postMessage(t, r, "conv-1", publishRequest{
			SenderID:    "alice",
			ContentType: "reaction",
			Body:        body,
		})

		reacts, err := store.GetReactions(context.Background(), "m1")
		require.NoError(t, err)
		require.Len(t, reacts, 1)
		assert.Equal(t, "alice", reacts[0].SenderID)
		assert.Equal(t, "❤️", reacts[0].Content)
	})
}

func TestGetMessages(t *testing.T) {
	t.Run("pages backwards by cursor", func(t *testing.T) {
		r, _ := newTestRouter()
		textBody, _ := json.Marshal(model.TextContent{Text: "hi"})
		for i := 0; i < 5; i++ {
			postMessage(t, r, "conv-1", publishRequest{SenderID: "alice", ContentType: "text", Body: textBody})
		}

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversations/conv-1/messages?limit=3", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var page []protocol.RawMessage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		require.Len(t, page, 3)
		assert.Greater(t, page[0].SentAtNanos, page[2].SentAtNanos, "страница по убыванию времени")

		// Следующая страница строго раньше
		cursor := page[2].SentAtNanos
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/api/conversations/conv-1/messages?limit=3&before="+strconv.FormatInt(cursor, 10), nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var next []protocol.RawMessage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
		require.Len(t, next, 2, "короткая страница — история исчерпана")
		for _, m := range next {
			assert.Less(t, m.SentAtNanos, cursor)
		}
	})

	t.Run("before and after are mutually exclusive", func(t *testing.T) {
		r, _ := newTestRouter()
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/api/conversations/conv-1/messages?before=5&after=3", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("after pages forward ascending", func(t *testing.T) {
		r, _ := newTestRouter()
		textBody, _ := json.Marshal(model.TextContent{Text: "hi"})
		first := postMessage(t, r, "conv-1", publishRequest{SenderID: "alice", ContentType: "text", Body: textBody})
		postMessage(t, r, "conv-1", publishRequest{SenderID: "alice", ContentType: "text", Body: textBody})

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/api/conversations/conv-1/messages?after="+strconv.FormatInt(first.SentAtNanos, 10), nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var page []protocol.RawMessage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		require.Len(t, page, 1)
		assert.Greater(t, page[0].SentAtNanos, first.SentAtNanos)
	})
}
