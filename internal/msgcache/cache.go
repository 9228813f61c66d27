// Package msgcache — кеш сообщений одной беседы: упорядоченная лента id
// (новые первыми), таблица записей и движок слияния пакетов.
package msgcache

import (
	"sort"

	"github.com/convoclient/internal/model"
)

// Mode — направление слияния: Prepend для backfill (старые страницы),
// Append для catch-up и живого потока. Вставка в любом случае идёт по
// меткам времени: пакеты обоих направлений могут перемежаться с тем,
// что уже доставил поток.
type Mode int

const (
	Prepend Mode = iota
	Append
)

const DefaultMaxMessages = 500

// Cache — кеш одной беседы. Не потокобезопасен: владеет им ровно один
// Store, который сериализует слияния.
type Cache struct {
	maxSize    int
	orderedIDs []string // новые первыми
	byID       map[string]model.Message
}

func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessages
	}
	return &Cache{
		maxSize: maxSize,
		byID:    make(map[string]model.Message),
	}
}

func (c *Cache) Len() int { return len(c.orderedIDs) }

func (c *Cache) Get(id string) (model.Message, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// NewestNanos — метка времени самого нового закешированного сообщения,
// 0 для пустого кеша.
func (c *Cache) NewestNanos() int64 {
	if len(c.orderedIDs) == 0 {
		return 0
	}
	return c.byID[c.orderedIDs[0]].SentAtNanos
}

// OldestNanos — метка времени самого старого закешированного сообщения.
func (c *Cache) OldestNanos() int64 {
	if len(c.orderedIDs) == 0 {
		return 0
	}
	return c.byID[c.orderedIDs[len(c.orderedIDs)-1]].SentAtNanos
}

// Merge вливает пакет в кеш и возвращает id записей, вытесненных по
// ограничению размера. Дедупликация по id: запись повторно доставленного
// сообщения заменяется (данные сервера всегда побеждают раннюю
// спекулятивную копию), но позиция в ленте сохраняется — повторная
// доставка никогда не переупорядочивает уже размещённые сообщения.
// Новые id вставляются по убыванию sentAtNanos одним проходом слияния,
// итого O(n log n) по сумме размеров.
func (c *Cache) Merge(batch []model.Message, mode Mode) (evicted []string) {
	if len(batch) == 0 {
		return nil
	}

	fresh := make([]model.Message, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))
	for _, m := range batch {
		if m.ID == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		if _, exists := c.byID[m.ID]; exists {
			c.byID[m.ID] = m
			continue
		}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return nil
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].SentAtNanos > fresh[j].SentAtNanos
	})

	// Типичный случай: backfill целиком старше кеша, catch-up целиком новее.
	// Тогда слияние — простая конкатенация без общего прохода.
	if mode == Prepend && len(c.orderedIDs) > 0 && fresh[0].SentAtNanos <= c.OldestNanos() {
		for _, m := range fresh {
			c.orderedIDs = append(c.orderedIDs, m.ID)
			c.byID[m.ID] = m
		}
		return c.evictOverflow()
	}
	if mode == Append && len(c.orderedIDs) > 0 && fresh[len(fresh)-1].SentAtNanos >= c.NewestNanos() {
		ids := make([]string, 0, len(fresh)+len(c.orderedIDs))
		for _, m := range fresh {
			ids = append(ids, m.ID)
			c.byID[m.ID] = m
		}
		c.orderedIDs = append(ids, c.orderedIDs...)
		return c.evictOverflow()
	}

	merged := make([]string, 0, len(c.orderedIDs)+len(fresh))
	i, j := 0, 0
	for i < len(c.orderedIDs) && j < len(fresh) {
		existing := c.byID[c.orderedIDs[i]]
		if fresh[j].SentAtNanos > existing.SentAtNanos {
			merged = append(merged, fresh[j].ID)
			c.byID[fresh[j].ID] = fresh[j]
			j++
		} else {
			merged = append(merged, c.orderedIDs[i])
			i++
		}
	}
	for ; i < len(c.orderedIDs); i++ {
		merged = append(merged, c.orderedIDs[i])
	}
	for ; j < len(fresh); j++ {
		merged = append(merged, fresh[j].ID)
		c.byID[fresh[j].ID] = fresh[j]
	}
	c.orderedIDs = merged

	return c.evictOverflow()
}

// evictOverflow вытесняет самые старые записи сверх лимита.
// Курсоры пагинации при этом не трогаются: oldestKnownCursor отражает
// самое старое когда-либо полученное сообщение, и вытеснение не делает
// исчерпанную историю снова "неисчерпанной".
func (c *Cache) evictOverflow() []string {
	if len(c.orderedIDs) <= c.maxSize {
		return nil
	}
	cut := c.orderedIDs[c.maxSize:]
	evicted := make([]string, len(cut))
	copy(evicted, cut)
	for _, id := range evicted {
		delete(c.byID, id)
	}
	c.orderedIDs = c.orderedIDs[:c.maxSize]
	return evicted
}

// Rewrite заменяет временный id на постоянный на месте: позиция в ленте
// не меняется. Так UI-списки, ключованные по id сообщения, не видят
// пары удаление+вставка. Если постоянный id уже есть в кеше (сервер успел
// доставить запись потоком), временная запись схлопывается в серверную.
func (c *Cache) Rewrite(tempID, permanentID string) bool {
	old, ok := c.byID[tempID]
	if !ok {
		return false
	}

	if _, clash := c.byID[permanentID]; clash {
		// Серверная копия уже в ленте — временную просто убираем.
		c.removeID(tempID)
		delete(c.byID, tempID)
		return true
	}

	for i, id := range c.orderedIDs {
		if id == tempID {
			c.orderedIDs[i] = permanentID
			break
		}
	}
	delete(c.byID, tempID)
	old.ID = permanentID
	c.byID[permanentID] = old
	return true
}

// SetStatus обновляет статус записи, не трогая остальные поля.
func (c *Cache) SetStatus(id string, status model.MessageStatus) {
	if m, ok := c.byID[id]; ok {
		m.Status = status
		c.byID[id] = m
	}
}

func (c *Cache) removeID(id string) {
	for i, cur := range c.orderedIDs {
		if cur == id {
			c.orderedIDs = append(c.orderedIDs[:i], c.orderedIDs[i+1:]...)
			return
		}
	}
}

// Snapshot возвращает копию ленты: читатели не видят последующих слияний.
func (c *Cache) Snapshot() []model.Message {
	out := make([]model.Message, 0, len(c.orderedIDs))
	for _, id := range c.orderedIDs {
		out = append(out, c.byID[id])
	}
	return out
}

// OrderedIDs возвращает копию упорядоченного списка id.
func (c *Cache) OrderedIDs() []string {
	out := make([]string, len(c.orderedIDs))
	copy(out, c.orderedIDs)
	return out
}
