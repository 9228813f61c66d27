package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/convoclient/internal/msgcache"
	"github.com/convoclient/internal/outbox"
	"github.com/convoclient/internal/protocol"
	"github.com/convoclient/internal/storage"
)

// Options — настройки клиента бесед.
type Options struct {
	// SenderID — текущий пользователь (нужен для отправки и реакций).
	SenderID string
	// PageSize — размер страницы пагинации (по умолчанию protocol.DefaultFetchLimit).
	PageSize int
	// MaxCached — максимум записей в кеше одной беседы.
	MaxCached int
	// GraceWindow — окно, в течение которого catch-up не перезаписывает
	// свежие закешированные сообщения. 0 — отключено.
	GraceWindow time.Duration
}

// Manager — верхнеуровневый контекст клиента: владеет протокольным
// клиентом, общей таблицей реконсиляции и Store каждой открытой беседы.
// Явный объект вместо глобальных реестров: teardown и тесты детерминированы.
type Manager struct {
	client      protocol.Client
	resolved    *outbox.Table
	checkpoints storage.CheckpointStore
	opts        Options

	mu          sync.RWMutex
	stores      map[string]*Store
	unsubscribe func()
}

func NewManager(client protocol.Client, checkpoints storage.CheckpointStore, opts Options) *Manager {
	if opts.PageSize <= 0 {
		opts.PageSize = protocol.DefaultFetchLimit
	}
	if opts.MaxCached <= 0 {
		opts.MaxCached = msgcache.DefaultMaxMessages
	}
	return &Manager{
		client:      client,
		resolved:    outbox.NewTable(),
		checkpoints: checkpoints,
		opts:        opts,
		stores:      make(map[string]*Store),
	}
}

// Conversation возвращает Store беседы, лениво создавая его: первая
// загрузка — нормальный случай, а не ошибка.
func (m *Manager) Conversation(conversationID string) *Store {
	m.mu.RLock()
	s, ok := m.stores[conversationID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stores[conversationID]; ok {
		return s
	}
	s = newStore(conversationID, m.client, m.resolved, m.checkpoints, m.opts)
	m.stores[conversationID] = s
	return s
}

// Start подписывается на живой поток и маршрутизирует события в Store
// соответствующих бесед. События в порядке получения; упорядочивание по
// времени — забота движка слияния.
func (m *Manager) Start(ctx context.Context) error {
	unsubscribe, err := m.client.StreamMessages(ctx, func(raw protocol.RawMessage) {
		if raw.ConversationID == "" {
			return
		}
		m.Conversation(raw.ConversationID).ApplyStreamEvent(raw)
	})
	if err != nil {
		return fmt.Errorf("store.Manager.Start: %w", err)
	}

	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
	return nil
}

// Stop закрывает подписку и помечает все беседы закрытыми: запоздавшие
// ответы выборок после этого отбрасываются.
func (m *Manager) Stop() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	stores := make([]*Store, 0, len(m.stores))
	for _, s := range m.stores {
		stores = append(stores, s)
	}
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	for _, s := range stores {
		s.Close()
	}
}
