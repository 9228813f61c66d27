// Package model содержит каноническую модель сообщений и реакций,
// общую для клиентского кеша и протокольного слоя.
package model

type MessageType string

const (
	TypeText                  MessageType = "text"
	TypeReaction              MessageType = "reaction"
	TypeReply                 MessageType = "reply"
	TypeGroupUpdate           MessageType = "group_update"
	TypeRemoteAttachment      MessageType = "remote_attachment"
	TypeStaticAttachment      MessageType = "static_attachment"
	TypeMultiRemoteAttachment MessageType = "multi_remote_attachment"
)

type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusError   MessageStatus = "error"
)

// Message — каноническая запись сообщения в кеше беседы.
// Пока отправка не подтверждена, ID содержит временный идентификатор
// (префикс "tmp-"); после подтверждения запись перезаписывается на
// постоянный id без смены позиции в ленте.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	SentAtNanos    int64         `json:"sent_at_ns"`
	Status         MessageStatus `json:"status"`
	Type           MessageType   `json:"type"`
	Content        Content       `json:"content"`
}

// SentAtMillis выводится из SentAtNanos усечением до миллисекунд.
// Отдельного поля нет намеренно: значение не может разойтись с наносекундами.
func (m Message) SentAtMillis() int64 {
	return m.SentAtNanos / 1e6
}

// IsTemporary сообщает, что id сообщения ещё не подтверждён сетью.
func IsTemporary(id string) bool {
	return len(id) > 4 && id[:4] == "tmp-"
}
