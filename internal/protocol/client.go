// Package protocol определяет интерфейс протокольного клиента, который
// потребляет ядро синхронизации, и его эталонную реализацию поверх
// HTTP + WebSocket (relay-сервис из этого же репозитория).
package protocol

import (
	"context"
	"encoding/json"

	"github.com/convoclient/internal/model"
)

// RawMessage — сообщение в проводном формате протокола. ContentType на
// проводе — открытая строка: нормализатор сводит её к закрытому перечню
// типов, а незнакомые типы превращает в текст с Fallback.
type RawMessage struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	SenderID       string          `json:"sender_id"`
	SentAtNanos    int64           `json:"sent_at_ns"`
	ContentType    string          `json:"content_type"`
	Body           json.RawMessage `json:"body,omitempty"`
	Fallback       string          `json:"fallback,omitempty"`
}

// FetchOptions — окно выборки. Нулевой курсор означает "без границы".
// BeforeNanos и AfterNanos взаимоисключающие: relay отвечает по убыванию
// времени при выборке назад и по возрастанию при выборке вперёд.
type FetchOptions struct {
	Limit       int
	BeforeNanos int64
	AfterNanos  int64
}

const DefaultFetchLimit = 20

// PublishResult — исход публикации одного отложенного сообщения.
// Err не прерывает публикацию остальных: частичный успех — валидный исход.
type PublishResult struct {
	LocalID     string
	RemoteID    string
	SentAtNanos int64
	Err         error
}

// Client — опаковый протокольный клиент.
// SendOptimistic завершается после локального сохранения, не после
// подтверждения сетью; PublishPending возвращает соответствие
// локальных и постоянных идентификаторов для реконсиляции.
type Client interface {
	FetchMessages(ctx context.Context, conversationID string, opts FetchOptions) ([]RawMessage, error)
	SendOptimistic(ctx context.Context, conversationID, senderID string, content model.Content) (string, error)
	PublishPending(ctx context.Context, conversationID string) ([]PublishResult, error)
	StreamMessages(ctx context.Context, onMessage func(RawMessage)) (func(), error)
}

// EncodeContent сериализует содержимое в проводной формат (тип + тело).
func EncodeContent(c model.Content) (contentType string, body []byte, err error) {
	body, err = json.Marshal(c)
	if err != nil {
		return "", nil, err
	}
	return string(c.ContentType()), body, nil
}
