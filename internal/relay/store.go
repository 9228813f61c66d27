// Package relay — эталонный сервер протокола: хранит журнал сообщений
// бесед, отдаёт его страницами по курсору времени отправки и вещает новые
// сообщения подписчикам WebSocket.
package relay

import (
	"context"
	"time"

	"github.com/convoclient/internal/protocol"
)

// Reaction — серверная проекция реакции (для GET .../reactions).
type Reaction struct {
	MessageID string    `json:"message_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageStore — журнал сообщений relay. Контракт пагинации: ListBefore
// отдаёт по убыванию времени отправки, ListAfter — по возрастанию; границы
// строгие; короткая страница означает исчерпание (клиент на это опирается).
// Реализации: PGStore (pgx) и MemoryStore (для -dev и тестов).
type MessageStore interface {
	Append(ctx context.Context, msg protocol.RawMessage) error
	ListBefore(ctx context.Context, conversationID string, beforeNanos int64, limit int) ([]protocol.RawMessage, error)
	ListAfter(ctx context.Context, conversationID string, afterNanos int64, limit int) ([]protocol.RawMessage, error)
	AddReaction(ctx context.Context, messageID, senderID, content string) error
	RemoveReaction(ctx context.Context, messageID, senderID, content string) error
	GetReactions(ctx context.Context, messageID string) ([]Reaction, error)
	Close() error
}
