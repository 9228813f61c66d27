// Package cursor — машина состояний пагинации одной беседы: какие курсоры
// известны, что запрашивать дальше и как схлопывать повторные запросы в
// уже летящий.
package cursor

import (
	"context"
	"sync"

	"github.com/convoclient/internal/model"
	"github.com/convoclient/internal/protocol"
)

type State int

const (
	StateIdle State = iota
	StateFetchingOlder
	StateFetchingNewer
	StateError
)

// Flight — один сетевой запрос в полёте. Повторные вызовы loadOlder/catchUp
// получают тот же Flight и ждут его завершения вместо второго запроса —
// это и гасит шторм запросов при быстром скролле.
type Flight struct {
	done chan struct{}
	err  error
}

// Wait блокируется до завершения запроса или отмены контекста.
func (f *Flight) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Manager отслеживает курсоры одной беседы. Старая и новая стороны летают
// независимо, но каждая — не более одного запроса одновременно.
type Manager struct {
	mu           sync.Mutex
	state        State
	pageSize     int
	oldestKnown  int64 // 0 — ещё ничего не выбиралось
	hasMoreOlder bool
	olderFlight  *Flight
	newerFlight  *Flight
}

func NewManager(pageSize int) *Manager {
	if pageSize <= 0 {
		pageSize = protocol.DefaultFetchLimit
	}
	return &Manager{
		state:        StateIdle,
		pageSize:     pageSize,
		hasMoreOlder: true,
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) HasMoreOlder() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasMoreOlder
}

func (m *Manager) OldestKnown() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.oldestKnown
}

// StartOlder начинает выборку старой истории. Возвращает:
//   - started=true и опции запроса — вызывающий делает fetch и обязан
//     завершить его FinishOlder с тем же Flight;
//   - started=false и ненулевой Flight — запрос уже в полёте, нужно ждать;
//   - started=false и nil Flight — история исчерпана, no-op.
//
// Запрос всегда строго раньше текущего oldestKnown (backfill не
// перечитывает уже полученное).
func (m *Manager) StartOlder() (opts protocol.FetchOptions, flight *Flight, started bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.olderFlight != nil {
		return protocol.FetchOptions{}, m.olderFlight, false
	}
	if !m.hasMoreOlder {
		return protocol.FetchOptions{}, nil, false
	}

	m.state = StateFetchingOlder
	m.olderFlight = &Flight{done: make(chan struct{})}
	return protocol.FetchOptions{
		Limit:       m.pageSize,
		BeforeNanos: m.oldestKnown,
	}, m.olderFlight, true
}

// FinishOlder фиксирует результат backfill-запроса: oldestKnown сдвигается
// на минимальный sentAtNanos пакета, короткая страница трактуется как
// доказательство исчерпания истории (контракт адаптера).
func (m *Manager) FinishOlder(flight *Flight, batch []model.Message, err error) {
	m.mu.Lock()
	if err != nil {
		m.state = StateError
	} else {
		m.state = StateIdle
		m.hasMoreOlder = len(batch) == m.pageSize
		for _, msg := range batch {
			if m.oldestKnown == 0 || msg.SentAtNanos < m.oldestKnown {
				m.oldestKnown = msg.SentAtNanos
			}
		}
	}
	m.olderFlight = nil
	m.mu.Unlock()

	flight.err = err
	close(flight.done)
}

// StartNewer начинает catch-up: строго после самого нового закешированного
// сообщения, либо неограниченную выборку при холодном старте
// (newestCachedNanos == 0).
func (m *Manager) StartNewer(newestCachedNanos int64) (opts protocol.FetchOptions, flight *Flight, started bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.newerFlight != nil {
		return protocol.FetchOptions{}, m.newerFlight, false
	}

	m.state = StateFetchingNewer
	m.newerFlight = &Flight{done: make(chan struct{})}
	return protocol.FetchOptions{
		Limit:      m.pageSize,
		AfterNanos: newestCachedNanos,
	}, m.newerFlight, true
}

// FinishNewer завершает catch-up. При холодном старте (oldestKnown ещё не
// установлен) пакет задаёт и нижнюю границу, чтобы следующий loadOlder
// продолжил с правильного места.
func (m *Manager) FinishNewer(flight *Flight, batch []model.Message, err error) {
	m.mu.Lock()
	if err != nil {
		m.state = StateError
	} else {
		m.state = StateIdle
		if m.oldestKnown == 0 {
			for _, msg := range batch {
				if m.oldestKnown == 0 || msg.SentAtNanos < m.oldestKnown {
					m.oldestKnown = msg.SentAtNanos
				}
			}
		}
	}
	m.newerFlight = nil
	m.mu.Unlock()

	flight.err = err
	close(flight.done)
}
