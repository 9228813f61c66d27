package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/convoclient/internal/logger"
	"github.com/convoclient/internal/model"
)

// pendingMessage — локально сохранённое, ещё не опубликованное сообщение.
type pendingMessage struct {
	localID     string
	senderID    string
	contentType string
	body        []byte
	fallback    string
}

// publishRequest — тело POST /api/conversations/{id}/messages.
type publishRequest struct {
	SenderID    string          `json:"sender_id"`
	ContentType string          `json:"content_type"`
	Body        json.RawMessage `json:"body,omitempty"`
	Fallback    string          `json:"fallback,omitempty"`
}

// HTTPClient — реализация Client поверх relay: выборка и публикация по HTTP,
// живой поток по WebSocket. Очередь отложенных сообщений хранится в памяти
// процесса: SendOptimistic не делает сетевых вызовов.
type HTTPClient struct {
	baseURL string
	http    *http.Client

	mu      sync.Mutex
	pending map[string][]pendingMessage
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		pending: make(map[string][]pendingMessage),
	}
}

func (c *HTTPClient) FetchMessages(ctx context.Context, conversationID string, opts FetchOptions) ([]RawMessage, error) {
	defer logger.DeferLogDuration("protocol.FetchMessages", time.Now())()
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if opts.BeforeNanos > 0 {
		q.Set("before", strconv.FormatInt(opts.BeforeNanos, 10))
	}
	if opts.AfterNanos > 0 {
		q.Set("after", strconv.FormatInt(opts.AfterNanos, 10))
	}

	u := fmt.Sprintf("%s/api/conversations/%s/messages?%s", c.baseURL, url.PathEscape(conversationID), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("protocol.FetchMessages: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("protocol.FetchMessages: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("protocol.FetchMessages: relay status %d", resp.StatusCode)
	}

	var msgs []RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return nil, fmt.Errorf("protocol.FetchMessages decode: %w", err)
	}
	return msgs, nil
}

// SendOptimistic сохраняет сообщение в локальную очередь и сразу возвращает
// временный id. Сетевых вызовов нет — вызывающий получает что рендерить
// до любого обращения к сети.
func (c *HTTPClient) SendOptimistic(ctx context.Context, conversationID, senderID string, content model.Content) (string, error) {
	contentType, body, err := EncodeContent(content)
	if err != nil {
		return "", fmt.Errorf("protocol.SendOptimistic encode: %w", err)
	}
	localID := "tmp-" + uuid.NewString()
	c.mu.Lock()
	c.pending[conversationID] = append(c.pending[conversationID], pendingMessage{
		localID:     localID,
		senderID:    senderID,
		contentType: contentType,
		body:        body,
	})
	c.mu.Unlock()
	return localID, nil
}

// PublishPending публикует отложенные сообщения беседы по одному в порядке
// постановки. Ошибка одного сообщения не откатывает уже опубликованные:
// каждый исход возвращается отдельно.
func (c *HTTPClient) PublishPending(ctx context.Context, conversationID string) ([]PublishResult, error) {
	defer logger.DeferLogDuration("protocol.PublishPending", time.Now())()
	c.mu.Lock()
	queue := c.pending[conversationID]
	delete(c.pending, conversationID)
	c.mu.Unlock()

	if len(queue) == 0 {
		return nil, nil
	}

	results := make([]PublishResult, 0, len(queue))
	for _, pm := range queue {
		raw, err := c.publishOne(ctx, conversationID, pm)
		res := PublishResult{LocalID: pm.localID, Err: err}
		if err == nil {
			res.RemoteID = raw.ID
			res.SentAtNanos = raw.SentAtNanos
		}
		results = append(results, res)
	}
	return results, nil
}

func (c *HTTPClient) publishOne(ctx context.Context, conversationID string, pm pendingMessage) (RawMessage, error) {
	payload, err := json.Marshal(publishRequest{
		SenderID:    pm.senderID,
		ContentType: pm.contentType,
		Body:        pm.body,
		Fallback:    pm.fallback,
	})
	if err != nil {
		return RawMessage{}, fmt.Errorf("protocol.publishOne marshal: %w", err)
	}

	u := fmt.Sprintf("%s/api/conversations/%s/messages", c.baseURL, url.PathEscape(conversationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return RawMessage{}, fmt.Errorf("protocol.publishOne: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return RawMessage{}, fmt.Errorf("protocol.publishOne: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return RawMessage{}, fmt.Errorf("protocol.publishOne: relay status %d: %s", resp.StatusCode, string(body))
	}

	var raw RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return RawMessage{}, fmt.Errorf("protocol.publishOne decode: %w", err)
	}
	return raw, nil
}
