// Package normalize переводит проводные сообщения протокола в каноническую
// модель. Чистая функция без I/O: один и тот же вход всегда даёт один и
// тот же выход.
package normalize

import (
	"encoding/json"
	"errors"

	"github.com/convoclient/internal/model"
	"github.com/convoclient/internal/protocol"
)

// ErrMissingID возвращается для сообщения без идентификатора. Это
// единственный неустранимый дефект: такую запись некуда класть в кеш.
var ErrMissingID = errors.New("normalize: message without id")

// Message превращает проводное сообщение в каноническую запись.
// Незнакомый тип содержимого или нечитаемое тело не являются ошибкой:
// результатом становится текстовое сообщение с fallback-строкой протокола,
// так клиент остаётся совместим с более новыми типами содержимого.
func Message(raw protocol.RawMessage) (model.Message, error) {
	if raw.ID == "" {
		return model.Message{}, ErrMissingID
	}

	msg := model.Message{
		ID:             raw.ID,
		ConversationID: raw.ConversationID,
		SenderID:       raw.SenderID,
		SentAtNanos:    raw.SentAtNanos,
		Status:         model.StatusSent,
	}
	msg.Type, msg.Content = decodeContent(raw)
	return msg, nil
}

// IsReaction — сообщение-реакция: в ленту не попадает, сворачивается
// в индекс целевого сообщения.
func IsReaction(m model.Message) bool {
	return m.Type == model.TypeReaction
}

func decodeContent(raw protocol.RawMessage) (model.MessageType, model.Content) {
	switch model.MessageType(raw.ContentType) {
	case model.TypeText:
		var c model.TextContent
		if json.Unmarshal(raw.Body, &c) == nil {
			return model.TypeText, c
		}
	case model.TypeReply:
		var c model.ReplyContent
		if json.Unmarshal(raw.Body, &c) == nil && c.Reference != "" {
			return model.TypeReply, c
		}
	case model.TypeReaction:
		var c model.ReactionContent
		if json.Unmarshal(raw.Body, &c) == nil && c.Reference != "" {
			if c.Action != model.ReactionAdded && c.Action != model.ReactionRemoved {
				c.Action = model.ReactionUnknown
			}
			return model.TypeReaction, c
		}
	case model.TypeGroupUpdate:
		var c model.GroupUpdateContent
		if json.Unmarshal(raw.Body, &c) == nil {
			return model.TypeGroupUpdate, c
		}
	case model.TypeRemoteAttachment:
		var c model.RemoteAttachmentContent
		if json.Unmarshal(raw.Body, &c) == nil {
			return model.TypeRemoteAttachment, c
		}
	case model.TypeStaticAttachment:
		var c model.StaticAttachmentContent
		if json.Unmarshal(raw.Body, &c) == nil {
			return model.TypeStaticAttachment, c
		}
	case model.TypeMultiRemoteAttachment:
		var c model.MultiRemoteAttachmentContent
		if json.Unmarshal(raw.Body, &c) == nil {
			return model.TypeMultiRemoteAttachment, c
		}
	}
	return model.TypeText, model.TextContent{Text: fallbackText(raw)}
}

func fallbackText(raw protocol.RawMessage) string {
	if raw.Fallback != "" {
		return raw.Fallback
	}
	// Протокол не дал fallback — показываем хоть что-то осмысленное
	var c model.TextContent
	if json.Unmarshal(raw.Body, &c) == nil && c.Text != "" {
		return c.Text
	}
	return "[неподдерживаемое сообщение]"
}
