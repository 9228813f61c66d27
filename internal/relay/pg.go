package relay

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convoclient/internal/logger"
	"github.com/convoclient/internal/protocol"
)

// PGStore — журнал сообщений в Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PGStore) Append(ctx context.Context, m protocol.RawMessage) error {
	defer logger.DeferLogDuration("relay.Append", time.Now())()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, sent_at_ns, content_type, body, fallback)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		m.ID, m.ConversationID, m.SenderID, m.SentAtNanos, m.ContentType, []byte(m.Body), m.Fallback,
	)
	if err != nil {
		return fmt.Errorf("relayStore.Append: %w", err)
	}
	return nil
}

func (s *PGStore) ListBefore(ctx context.Context, conversationID string, beforeNanos int64, limit int) ([]protocol.RawMessage, error) {
	defer logger.DeferLogDuration("relay.ListBefore", time.Now())()
	if beforeNanos <= 0 {
		beforeNanos = math.MaxInt64
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, sender_id, sent_at_ns, content_type, body, fallback
		 FROM messages
		 WHERE conversation_id = $1 AND sent_at_ns < $2
		 ORDER BY sent_at_ns DESC
		 LIMIT $3`, conversationID, beforeNanos, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("relayStore.ListBefore query: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows, limit)
}

func (s *PGStore) ListAfter(ctx context.Context, conversationID string, afterNanos int64, limit int) ([]protocol.RawMessage, error) {
	defer logger.DeferLogDuration("relay.ListAfter", time.Now())()
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, sender_id, sent_at_ns, content_type, body, fallback
		 FROM messages
		 WHERE conversation_id = $1 AND sent_at_ns > $2
		 ORDER BY sent_at_ns ASC
		 LIMIT $3`, conversationID, afterNanos, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("relayStore.ListAfter query: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows, limit)
}

type pgRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanMessages(rows pgRows, limit int) ([]protocol.RawMessage, error) {
	msgs := make([]protocol.RawMessage, 0, limit)
	for rows.Next() {
		var m protocol.RawMessage
		var body []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SentAtNanos, &m.ContentType, &body, &m.Fallback); err != nil {
			return nil, fmt.Errorf("relayStore scan: %w", err)
		}
		m.Body = body
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("relayStore rows: %w", err)
	}
	return msgs, nil
}

// AddReaction — идемпотентная вставка: повторная реакция того же
// отправителя тем же содержимым не ошибка.
func (s *PGStore) AddReaction(ctx context.Context, messageID, senderID, content string) error {
	defer logger.DeferLogDuration("relay.AddReaction", time.Now())()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO message_reactions (message_id, sender_id, content)
		 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		messageID, senderID, content,
	)
	if err != nil {
		return fmt.Errorf("relayStore.AddReaction: %w", err)
	}
	return nil
}

func (s *PGStore) RemoveReaction(ctx context.Context, messageID, senderID, content string) error {
	defer logger.DeferLogDuration("relay.RemoveReaction", time.Now())()
	_, err := s.pool.Exec(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND sender_id = $2 AND content = $3`,
		messageID, senderID, content,
	)
	if err != nil {
		return fmt.Errorf("relayStore.RemoveReaction: %w", err)
	}
	return nil
}

func (s *PGStore) GetReactions(ctx context.Context, messageID string) ([]Reaction, error) {
	defer logger.DeferLogDuration("relay.GetReactions", time.Now())()
	rows, err := s.pool.Query(ctx,
		`SELECT message_id, sender_id, content, created_at
		 FROM message_reactions
		 WHERE message_id = $1
		 ORDER BY created_at`, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("relayStore.GetReactions query: %w", err)
	}
	defer rows.Close()

	reacts := make([]Reaction, 0, 8)
	for rows.Next() {
		var r Reaction
		if err := rows.Scan(&r.MessageID, &r.SenderID, &r.Content, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("relayStore.GetReactions scan: %w", err)
		}
		reacts = append(reacts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("relayStore.GetReactions rows: %w", err)
	}
	return reacts, nil
}
