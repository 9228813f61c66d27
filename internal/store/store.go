// Package store — оркестратор синхронизации одной беседы: связывает
// протокольный клиент, нормализатор, движок слияния, агрегатор реакций,
// менеджер курсоров и таблицу реконсиляции в единый читаемый кеш.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/convoclient/internal/cursor"
	"github.com/convoclient/internal/logger"
	"github.com/convoclient/internal/model"
	"github.com/convoclient/internal/msgcache"
	"github.com/convoclient/internal/normalize"
	"github.com/convoclient/internal/outbox"
	"github.com/convoclient/internal/protocol"
	"github.com/convoclient/internal/reactions"
	"github.com/convoclient/internal/storage"
)

// ErrNoSender возвращается из React/Unreact, когда клиенту не задан
// текущий пользователь. Ошибка одной операции, процесс не падает.
var ErrNoSender = errors.New("store: sender id is not configured")

// SendResult — исход отправки одного элемента составного сообщения.
// Частичный успех — валидный исход: неудача позднего элемента не
// откатывает уже опубликованные ранние.
type SendResult struct {
	LocalID   string
	MessageID string
	Err       error
}

// Store — состояние синхронизации одной беседы. Кешем владеет эксклюзивно:
// все слияния сериализуются внутренним мьютексом, поэтому итоговое
// состояние кеша — детерминированная функция множества применённых
// событий независимо от их чередования.
type Store struct {
	conversationID string
	senderID       string
	client         protocol.Client
	cursors        *cursor.Manager
	resolved       *outbox.Table
	checkpoints    storage.CheckpointStore
	graceWindow    time.Duration

	mu              sync.Mutex
	cache           *msgcache.Cache
	reactionIdx     map[string]model.ReactionIndex
	serverReactions map[string][]model.Message
	seenReactions   map[string]struct{}
	lastMessage     *model.Message
	live            bool
}

func newStore(conversationID string, client protocol.Client, resolved *outbox.Table, checkpoints storage.CheckpointStore, opts Options) *Store {
	return &Store{
		conversationID:  conversationID,
		senderID:        opts.SenderID,
		client:          client,
		cursors:         cursor.NewManager(opts.PageSize),
		resolved:        resolved,
		checkpoints:     checkpoints,
		graceWindow:     opts.GraceWindow,
		cache:           msgcache.New(opts.MaxCached),
		reactionIdx:     make(map[string]model.ReactionIndex),
		serverReactions: make(map[string][]model.Message),
		seenReactions:   make(map[string]struct{}),
		live:            true,
	}
}

// Messages возвращает упорядоченный снапшот ленты (новые первыми).
// Не блокируется на сети; ссылки reply перенаправляются на постоянные id.
func (s *Store) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.cache.Snapshot()
	for i := range msgs {
		if rc, ok := msgs[i].Content.(model.ReplyContent); ok {
			rc.Reference = s.resolved.Redirect(rc.Reference)
			msgs[i].Content = rc
		}
	}
	return msgs
}

// Reactions возвращает копию индекса реакций сообщения.
func (s *Store) Reactions(messageID string) model.ReactionIndex {
	id := s.resolved.Redirect(messageID)
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.reactionIdx[id]
	if !ok {
		return model.NewReactionIndex()
	}
	return idx.Clone()
}

// LastMessage — указатель "последнего сообщения" беседы (для превью в
// списке бесед). Обновляется строго монотонно: backfill старых данных
// никогда не откатывает превью назад.
func (s *Store) LastMessage() *model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastMessage == nil {
		return nil
	}
	cp := *s.lastMessage
	return &cp
}

func (s *Store) HasMoreOlder() bool { return s.cursors.HasMoreOlder() }

// Close помечает беседу закрытой: запоздавшие ответы выборок после этого
// отбрасываются без слияния.
func (s *Store) Close() {
	s.mu.Lock()
	s.live = false
	s.mu.Unlock()
}

// LoadOlder подгружает страницу старой истории. Повторный вызов при уже
// летящем запросе не делает второй fetch, а ждёт тот же результат.
// No-op, если история исчерпана.
func (s *Store) LoadOlder(ctx context.Context) error {
	defer logger.DeferLogDuration("store.LoadOlder", time.Now())()

	opts, flight, started := s.cursors.StartOlder()
	if flight == nil {
		return nil
	}
	if !started {
		return flight.Wait(ctx)
	}

	raws, err := s.client.FetchMessages(ctx, s.conversationID, opts)
	if err != nil {
		s.cursors.FinishOlder(flight, nil, err)
		return fmt.Errorf("store.LoadOlder: %w", err)
	}

	batch := s.normalizeBatch(raws)
	s.mu.Lock()
	if s.live {
		s.applyBatchLocked(batch, msgcache.Prepend)
	}
	s.mu.Unlock()
	s.cursors.FinishOlder(flight, batch, nil)
	return nil
}

// CatchUp выбирает сообщения строго новее самого свежего закешированного
// (или сохранённой контрольной точки при холодном старте) и вливает их в
// кеш. При ошибке выборки кеш остаётся нетронутым.
func (s *Store) CatchUp(ctx context.Context) error {
	defer logger.DeferLogDuration("store.CatchUp", time.Now())()

	s.mu.Lock()
	newest := s.cache.NewestNanos()
	s.mu.Unlock()
	if newest == 0 && s.checkpoints != nil {
		cp, err := s.checkpoints.GetNewestCursor(ctx, s.conversationID)
		if err != nil {
			logger.Errorf("store.CatchUp checkpoint conv=%s: %v", s.conversationID, err)
		} else {
			newest = cp
		}
	}

	opts, flight, started := s.cursors.StartNewer(newest)
	if !started {
		return flight.Wait(ctx)
	}

	raws, err := s.client.FetchMessages(ctx, s.conversationID, opts)
	if err != nil {
		s.cursors.FinishNewer(flight, nil, err)
		return fmt.Errorf("store.CatchUp: %w", err)
	}

	batch := s.normalizeBatch(raws)
	s.mu.Lock()
	if s.live {
		s.applyBatchLocked(s.filterGraceLocked(batch), msgcache.Append)
	}
	s.mu.Unlock()
	s.cursors.FinishNewer(flight, batch, nil)

	s.saveCheckpoint(ctx)
	return nil
}

// ApplyStreamEvent вливает событие живого потока. Реакции и обычные
// сообщения идут той же дорогой нормализации и слияния, что и pull-выборки,
// поэтому оба пути дают идентичное состояние кеша на одинаковом входе.
func (s *Store) ApplyStreamEvent(raw protocol.RawMessage) {
	msg, err := normalize.Message(raw)
	if err != nil {
		// Дефект одного сообщения изолируется, поток не прерывается
		logger.Errorf("store.ApplyStreamEvent conv=%s: %v", s.conversationID, err)
		return
	}

	s.mu.Lock()
	if s.live {
		s.applyBatchLocked([]model.Message{msg}, msgcache.Append)
	}
	s.mu.Unlock()

	s.saveCheckpoint(context.Background())
}

// normalizeBatch нормализует пакет, изолируя дефекты: одно кривое
// сообщение не прерывает остальные.
func (s *Store) normalizeBatch(raws []protocol.RawMessage) []model.Message {
	out := make([]model.Message, 0, len(raws))
	for _, raw := range raws {
		msg, err := normalize.Message(raw)
		if err != nil {
			logger.Errorf("store.normalizeBatch conv=%s: %v", s.conversationID, err)
			continue
		}
		out = append(out, msg)
	}
	return out
}

// filterGraceLocked отбрасывает из catch-up-пакета записи, которые
// перезаписали бы совсем свежие закешированные сообщения: окно задаётся
// настройкой (эвристика для исчезающих сообщений, константа настраиваемая).
func (s *Store) filterGraceLocked(batch []model.Message) []model.Message {
	if s.graceWindow <= 0 {
		return batch
	}
	cutoff := time.Now().Add(-s.graceWindow).UnixNano()
	out := batch[:0]
	for _, m := range batch {
		if existing, ok := s.cache.Get(m.ID); ok && existing.SentAtNanos > cutoff {
			continue
		}
		out = append(out, m)
	}
	return out
}

// applyBatchLocked — единая точка слияния для pull-выборок и живого потока.
// Реакции отделяются от обычных сообщений, сворачиваются в индексы своих
// целей и в ленту не попадают.
func (s *Store) applyBatchLocked(batch []model.Message, mode msgcache.Mode) {
	regular := make([]model.Message, 0, len(batch))
	var touched map[string]struct{}
	for _, m := range batch {
		rc, ok := m.Content.(model.ReactionContent)
		if !ok {
			regular = append(regular, m)
			continue
		}
		if rc.Reference == "" {
			continue // кривую реакцию тихо пропускаем
		}
		if _, dup := s.seenReactions[m.ID]; dup {
			continue
		}
		s.seenReactions[m.ID] = struct{}{}
		target := s.resolved.Redirect(rc.Reference)
		s.serverReactions[target] = append(s.serverReactions[target], m)
		if touched == nil {
			touched = make(map[string]struct{})
		}
		touched[target] = struct{}{}
	}

	// Индекс цели всегда перестраивается из полного набора серверных
	// событий: повторная доставка и любой порядок прихода дают один итог.
	for target := range touched {
		s.rebuildReactionsLocked(target)
	}

	if len(regular) > 0 {
		evicted := s.cache.Merge(regular, mode)
		for _, id := range evicted {
			delete(s.reactionIdx, id)
			delete(s.serverReactions, id)
		}
		s.advanceLastMessageLocked(regular)
	}
}

func (s *Store) rebuildReactionsLocked(target string) {
	idx := reactions.Fold(model.NewReactionIndex(), s.serverReactions[target])
	if idx.IsEmpty() {
		delete(s.reactionIdx, target)
		return
	}
	s.reactionIdx[target] = idx
}

func (s *Store) advanceLastMessageLocked(batch []model.Message) {
	for i := range batch {
		m := batch[i]
		if s.lastMessage == nil || m.SentAtNanos > s.lastMessage.SentAtNanos {
			cp := m
			s.lastMessage = &cp
		}
	}
}

func (s *Store) saveCheckpoint(ctx context.Context) {
	if s.checkpoints == nil {
		return
	}
	s.mu.Lock()
	newest := s.cache.NewestNanos()
	s.mu.Unlock()
	if newest == 0 {
		return
	}
	if err := s.checkpoints.SetNewestCursor(ctx, s.conversationID, newest); err != nil {
		logger.Errorf("store.saveCheckpoint conv=%s: %v", s.conversationID, err)
	}
}

// Send отправляет набор содержимого как последовательность независимых
// сообщений в фиксированном порядке приоритета: вложения раньше текста.
// Каждое сообщение сперва появляется в кеше со статусом sending и
// временным id; после публикации id переписывается на постоянный на месте.
// Ошибка публикации оставляет сообщение видимым со статусом error —
// пользовательский ввод не теряется.
func (s *Store) Send(ctx context.Context, contents ...model.Content) ([]SendResult, error) {
	defer logger.DeferLogDuration("store.Send", time.Now())()
	if len(contents) == 0 {
		return nil, nil
	}

	ordered := make([]model.Content, len(contents))
	copy(ordered, contents)
	sort.SliceStable(ordered, func(i, j int) bool {
		return model.IsAttachment(ordered[i]) && !model.IsAttachment(ordered[j])
	})

	results := make([]SendResult, 0, len(ordered))
	localIDs := make([]string, 0, len(ordered))
	for _, content := range ordered {
		localID, err := s.client.SendOptimistic(ctx, s.conversationID, s.senderID, content)
		if err != nil {
			results = append(results, SendResult{Err: fmt.Errorf("store.Send optimistic: %w", err)})
			continue
		}
		localIDs = append(localIDs, localID)
		results = append(results, SendResult{LocalID: localID, MessageID: localID})

		msg := model.Message{
			ID:             localID,
			ConversationID: s.conversationID,
			SenderID:       s.senderID,
			SentAtNanos:    time.Now().UnixNano(),
			Status:         model.StatusSending,
			Type:           content.ContentType(),
			Content:        content,
		}
		s.mu.Lock()
		s.applyBatchLocked([]model.Message{msg}, msgcache.Append)
		s.mu.Unlock()
	}

	published, err := s.client.PublishPending(ctx, s.conversationID)
	if err != nil {
		// Публикация не состоялась целиком: все отложенные помечаются
		// ошибочными, но остаются в ленте для повтора.
		s.mu.Lock()
		for _, id := range localIDs {
			s.cache.SetStatus(id, model.StatusError)
		}
		s.mu.Unlock()
		return results, fmt.Errorf("store.Send publish: %w", err)
	}

	for _, pub := range published {
		for i := range results {
			if results[i].LocalID != pub.LocalID {
				continue
			}
			if pub.Err != nil {
				results[i].Err = pub.Err
				s.mu.Lock()
				s.cache.SetStatus(pub.LocalID, model.StatusError)
				s.mu.Unlock()
				break
			}
			results[i].MessageID = pub.RemoteID
			s.reconcile(pub.LocalID, pub.RemoteID)
			break
		}
	}
	return results, nil
}

// reconcile переписывает все структуры с временного id на постоянный на
// месте: позиция в ленте, ключи индексов реакций и накопленные серверные
// события. Содержимое и метка времени записи не меняются — только id и
// статус.
func (s *Store) reconcile(localID, remoteID string) {
	s.resolved.Resolve(localID, remoteID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.Rewrite(localID, remoteID) {
		s.cache.SetStatus(remoteID, model.StatusSent)
	}
	if events, ok := s.serverReactions[localID]; ok {
		s.serverReactions[remoteID] = append(s.serverReactions[remoteID], events...)
		delete(s.serverReactions, localID)
		s.rebuildReactionsLocked(remoteID)
		delete(s.reactionIdx, localID)
	} else if idx, ok := s.reactionIdx[localID]; ok {
		s.reactionIdx[remoteID] = idx
		delete(s.reactionIdx, localID)
	}

	if m, ok := s.cache.Get(remoteID); ok {
		s.advanceLastMessageLocked([]model.Message{m})
	}
}

// React ставит реакцию: локальный индекс обновляется до сетевого вызова,
// чтобы UI отрисовал её в тот же кадр; при неудаче публикации индекс
// перестраивается из последнего известного серверного состояния —
// реакция "не взялась", без пугающей ошибки.
func (s *Store) React(ctx context.Context, messageID, emoji string) error {
	return s.sendReaction(ctx, messageID, emoji, model.ReactionAdded)
}

// Unreact снимает реакцию; семантика отката та же, что у React.
func (s *Store) Unreact(ctx context.Context, messageID, emoji string) error {
	return s.sendReaction(ctx, messageID, emoji, model.ReactionRemoved)
}

func (s *Store) sendReaction(ctx context.Context, messageID, emoji string, action model.ReactionAction) error {
	defer logger.DeferLogDuration("store.sendReaction", time.Now())()
	if s.senderID == "" {
		return ErrNoSender
	}

	target := s.resolved.Redirect(messageID)
	rc := model.ReactionContent{
		Reference: target,
		Action:    action,
		Schema:    "unicode",
		Content:   emoji,
	}

	// Оптимистичное применение: только в индекс, серверные события не
	// трогаем — они и есть состояние для отката.
	optimistic := model.Message{
		ID:          "optimistic-" + target + "-" + emoji,
		SenderID:    s.senderID,
		SentAtNanos: time.Now().UnixNano(),
		Type:        model.TypeReaction,
		Content:     rc,
	}
	s.mu.Lock()
	base, ok := s.reactionIdx[target]
	if !ok {
		base = model.NewReactionIndex()
	}
	s.reactionIdx[target] = reactions.Fold(base, []model.Message{optimistic})
	s.mu.Unlock()

	rollback := func() {
		s.mu.Lock()
		s.rebuildReactionsLocked(target)
		s.mu.Unlock()
	}

	if _, err := s.client.SendOptimistic(ctx, s.conversationID, s.senderID, rc); err != nil {
		rollback()
		return fmt.Errorf("store.sendReaction: %w", err)
	}
	published, err := s.client.PublishPending(ctx, s.conversationID)
	if err != nil {
		rollback()
		return fmt.Errorf("store.sendReaction publish: %w", err)
	}
	for _, pub := range published {
		if pub.Err != nil {
			rollback()
			return fmt.Errorf("store.sendReaction publish: %w", pub.Err)
		}
	}
	return nil
}
