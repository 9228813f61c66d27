// Package reactions сворачивает сообщения-реакции в индекс по целевым
// сообщениям. Чистые функции: вход не мутируется, результат — новый индекс.
package reactions

import (
	"sort"

	"github.com/convoclient/internal/model"
)

// Fold применяет пакет реакций к существующему индексу одного целевого
// сообщения и возвращает новый индекс. Пакет предварительно сортируется по
// возрастанию sentAtNanos, чтобы пары added/removed от одного отправителя
// сворачивались правильно даже при доставке вразнобой внутри пакета.
// Повторный added для уже существующей пары (sender, content) — no-op,
// removed для отсутствующей — тоже no-op, а не ошибка.
func Fold(idx model.ReactionIndex, batch []model.Message) model.ReactionIndex {
	if len(batch) == 0 {
		return idx.Clone()
	}

	sorted := make([]model.Message, len(batch))
	copy(sorted, batch)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SentAtNanos < sorted[j].SentAtNanos
	})

	out := idx.Clone()
	for _, m := range sorted {
		rc, ok := m.Content.(model.ReactionContent)
		if !ok {
			continue
		}
		switch rc.Action {
		case model.ReactionAdded:
			apply(&out, m.SenderID, rc)
		case model.ReactionRemoved:
			revoke(&out, m.SenderID, rc.Content)
		case model.ReactionUnknown:
			// Незнакомое действие безопасно игнорируем
		}
	}
	return out
}

// ExtractAndFold выбирает реакции из смешанного пакета сообщений и строит
// индексы по целевым сообщениям. Цель не обязана существовать в кеше:
// при backfill реакция может прийти раньше своего сообщения, индекс
// ключуется только по reference.
func ExtractAndFold(batch []model.Message) map[string]model.ReactionIndex {
	byTarget := make(map[string][]model.Message)
	for _, m := range batch {
		rc, ok := m.Content.(model.ReactionContent)
		if !ok || rc.Reference == "" {
			continue
		}
		byTarget[rc.Reference] = append(byTarget[rc.Reference], m)
	}

	out := make(map[string]model.ReactionIndex, len(byTarget))
	for target, events := range byTarget {
		out[target] = Fold(model.NewReactionIndex(), events)
	}
	return out
}

// apply — идемпотентная вставка пары (sender, content) в оба отображения.
func apply(idx *model.ReactionIndex, senderID string, rc model.ReactionContent) {
	if idx.Has(senderID, rc.Content) {
		return
	}
	idx.BySender[senderID] = append(idx.BySender[senderID], rc)
	idx.ByContent[rc.Content] = append(idx.ByContent[rc.Content], senderID)
}

// revoke — идемпотентное удаление пары из обоих отображений.
func revoke(idx *model.ReactionIndex, senderID, content string) {
	kept := idx.BySender[senderID][:0]
	for _, rc := range idx.BySender[senderID] {
		if rc.Content != content {
			kept = append(kept, rc)
		}
	}
	if len(kept) == 0 {
		delete(idx.BySender, senderID)
	} else {
		idx.BySender[senderID] = kept
	}

	senders := idx.ByContent[content][:0]
	for _, s := range idx.ByContent[content] {
		if s != senderID {
			senders = append(senders, s)
		}
	}
	if len(senders) == 0 {
		delete(idx.ByContent, content)
	} else {
		idx.ByContent[content] = senders
	}
}
