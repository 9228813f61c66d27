package protocol_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoclient/internal/model"
	"github.com/convoclient/internal/protocol"
	"github.com/convoclient/internal/relay"
)

// Клиент и relay проверяются друг против друга: один проводной формат
// описан в двух местах, и этот тест ловит их расхождение.
func newRelayServer(t *testing.T) *httptest.Server {
	t.Helper()
	h := relay.NewHandler(relay.NewMemoryStore(), relay.NewHub(10), "*")
	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClientAgainstRelay(t *testing.T) {
	t.Run("send optimistic is local only", func(t *testing.T) {
		// baseURL намеренно нерабочий: до публикации сети быть не должно
		c := protocol.NewHTTPClient("http://127.0.0.1:1")

		localID, err := c.SendOptimistic(context.Background(), "conv-1", "alice", model.TextContent{Text: "hi"})
		require.NoError(t, err)
		assert.True(t, model.IsTemporary(localID))
	})

	t.Run("publish then fetch round trip", func(t *testing.T) {
		srv := newRelayServer(t)
		c := protocol.NewHTTPClient(srv.URL)
		ctx := context.Background()

		localID, err := c.SendOptimistic(ctx, "conv-1", "alice", model.TextContent{Text: "hello"})
		require.NoError(t, err)

		results, err := c.PublishPending(ctx, "conv-1")
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.NoError(t, results[0].Err)
		assert.Equal(t, localID, results[0].LocalID)
		assert.False(t, model.IsTemporary(results[0].RemoteID))
		assert.Positive(t, results[0].SentAtNanos)

		msgs, err := c.FetchMessages(ctx, "conv-1", protocol.FetchOptions{Limit: 10})
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, results[0].RemoteID, msgs[0].ID)
		assert.Equal(t, "text", msgs[0].ContentType)
	})

	t.Run("publish queue drains per conversation", func(t *testing.T) {
		srv := newRelayServer(t)
		c := protocol.NewHTTPClient(srv.URL)
		ctx := context.Background()

		_, err := c.SendOptimistic(ctx, "conv-1", "alice", model.TextContent{Text: "one"})
		require.NoError(t, err)
		_, err = c.SendOptimistic(ctx, "conv-2", "alice", model.TextContent{Text: "other"})
		require.NoError(t, err)

		results, err := c.PublishPending(ctx, "conv-1")
		require.NoError(t, err)
		assert.Len(t, results, 1)

		// Повторная публикация той же беседы — очередь уже пуста
		results, err = c.PublishPending(ctx, "conv-1")
		require.NoError(t, err)
		assert.Empty(t, results)

		// Чужая беседа не затронута
		results, err = c.PublishPending(ctx, "conv-2")
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("cursor pagination against relay", func(t *testing.T) {
		srv := newRelayServer(t)
		c := protocol.NewHTTPClient(srv.URL)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			_, err := c.SendOptimistic(ctx, "conv-1", "alice", model.TextContent{Text: "m"})
			require.NoError(t, err)
		}
		_, err := c.PublishPending(ctx, "conv-1")
		require.NoError(t, err)

		page, err := c.FetchMessages(ctx, "conv-1", protocol.FetchOptions{Limit: 3})
		require.NoError(t, err)
		require.Len(t, page, 3)

		older, err := c.FetchMessages(ctx, "conv-1", protocol.FetchOptions{
			Limit:       3,
			BeforeNanos: page[2].SentAtNanos,
		})
		require.NoError(t, err)
		require.Len(t, older, 2)
		for _, m := range older {
			assert.Less(t, m.SentAtNanos, page[2].SentAtNanos)
		}
	})
}
