// Package outbox — таблица реконсиляции временных и постоянных
// идентификаторов сообщений. Таблица одна на процесс, принадлежит
// верхнеуровневому клиенту и внедряется в Store каждой беседы:
// скрытого глобального состояния нет, teardown детерминирован.
package outbox

import "sync"

// Table — отображение временный id → постоянный id. Записи только
// добавляются (ограничено временем жизни процесса); временные id глобально
// уникальны, поэтому конкурентные писатели не пересекаются.
type Table struct {
	mu       sync.RWMutex
	resolved map[string]string
}

func NewTable() *Table {
	return &Table{resolved: make(map[string]string)}
}

// Resolve фиксирует соответствие после успешной публикации.
func (t *Table) Resolve(tempID, permanentID string) {
	if tempID == "" || permanentID == "" {
		return
	}
	t.mu.Lock()
	t.resolved[tempID] = permanentID
	t.mu.Unlock()
}

// Redirect возвращает постоянный id для уже разрешённого временного,
// иначе вход без изменений. Используется для устаревших ссылок —
// например reply на ещё не опубликованное сообщение.
func (t *Table) Redirect(id string) string {
	t.mu.RLock()
	perm, ok := t.resolved[id]
	t.mu.RUnlock()
	if ok {
		return perm
	}
	return id
}

// Resolved сообщает, был ли временный id уже разрешён.
func (t *Table) Resolved(tempID string) bool {
	t.mu.RLock()
	_, ok := t.resolved[tempID]
	t.mu.RUnlock()
	return ok
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.resolved)
}
