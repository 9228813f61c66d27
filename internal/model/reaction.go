package model

// ReactionIndex — производный индекс реакций одного целевого сообщения.
// Инвариант: пара (sender, content) есть в BySender тогда и только тогда,
// когда sender есть в ByContent[content]. Оба представления обновляются
// только агрегатором, поэтому рассинхронизация исключена.
type ReactionIndex struct {
	BySender  map[string][]ReactionContent `json:"by_sender"`
	ByContent map[string][]string          `json:"by_content"`
}

func NewReactionIndex() ReactionIndex {
	return ReactionIndex{
		BySender:  make(map[string][]ReactionContent),
		ByContent: make(map[string][]string),
	}
}

// IsEmpty — индекс без единой реакции (удаляется из кеша беседы).
func (ri ReactionIndex) IsEmpty() bool {
	return len(ri.BySender) == 0 && len(ri.ByContent) == 0
}

// Clone возвращает глубокую копию для снапшотов читателям.
func (ri ReactionIndex) Clone() ReactionIndex {
	out := NewReactionIndex()
	for sender, rcs := range ri.BySender {
		cp := make([]ReactionContent, len(rcs))
		copy(cp, rcs)
		out.BySender[sender] = cp
	}
	for content, senders := range ri.ByContent {
		cp := make([]string, len(senders))
		copy(cp, senders)
		out.ByContent[content] = cp
	}
	return out
}

// Has проверяет наличие пары (sender, content).
func (ri ReactionIndex) Has(senderID, content string) bool {
	for _, rc := range ri.BySender[senderID] {
		if rc.Content == content {
			return true
		}
	}
	return false
}
