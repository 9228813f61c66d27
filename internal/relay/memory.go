package relay

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/convoclient/internal/protocol"
)

// MemoryStore — журнал сообщений в памяти процесса: режим -dev и тесты.
// Семантика пагинации идентична PGStore.
type MemoryStore struct {
	mu        sync.RWMutex
	messages  map[string][]protocol.RawMessage // conversationID -> по возрастанию sent_at_ns
	reactions map[string][]Reaction            // messageID -> в порядке добавления
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:  make(map[string][]protocol.RawMessage),
		reactions: make(map[string][]Reaction),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Append(ctx context.Context, m protocol.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.messages[m.ConversationID]
	for _, existing := range log {
		if existing.ID == m.ID {
			return nil // идемпотентно, как ON CONFLICT DO NOTHING
		}
	}
	log = append(log, m)
	sort.SliceStable(log, func(i, j int) bool {
		return log[i].SentAtNanos < log[j].SentAtNanos
	})
	s.messages[m.ConversationID] = log
	return nil
}

func (s *MemoryStore) ListBefore(ctx context.Context, conversationID string, beforeNanos int64, limit int) ([]protocol.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.messages[conversationID]
	out := make([]protocol.RawMessage, 0, limit)
	for i := len(log) - 1; i >= 0 && len(out) < limit; i-- {
		if beforeNanos > 0 && log[i].SentAtNanos >= beforeNanos {
			continue
		}
		out = append(out, log[i])
	}
	return out, nil
}

func (s *MemoryStore) ListAfter(ctx context.Context, conversationID string, afterNanos int64, limit int) ([]protocol.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.messages[conversationID]
	out := make([]protocol.RawMessage, 0, limit)
	for _, m := range log {
		if m.SentAtNanos <= afterNanos {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) AddReaction(ctx context.Context, messageID, senderID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reactions[messageID] {
		if r.SenderID == senderID && r.Content == content {
			return nil
		}
	}
	s.reactions[messageID] = append(s.reactions[messageID], Reaction{
		MessageID: messageID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *MemoryStore) RemoveReaction(ctx context.Context, messageID, senderID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.reactions[messageID][:0]
	for _, r := range s.reactions[messageID] {
		if r.SenderID != senderID || r.Content != content {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(s.reactions, messageID)
	} else {
		s.reactions[messageID] = kept
	}
	return nil
}

func (s *MemoryStore) GetReactions(ctx context.Context, messageID string) ([]Reaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Reaction, len(s.reactions[messageID]))
	copy(out, s.reactions[messageID])
	return out, nil
}
