package memory

import (
	"context"
	"sync"
)

// Client — контрольные точки в памяти процесса (для -dev и тестов).
type Client struct {
	mu      sync.RWMutex
	cursors map[string]int64
}

func New() *Client {
	return &Client{cursors: make(map[string]int64)}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetNewestCursor(ctx context.Context, conversationID string, nanos int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Курсор монотонный: назад не откатываем
	if nanos > c.cursors[conversationID] {
		c.cursors[conversationID] = nanos
	}
	return nil
}

func (c *Client) GetNewestCursor(ctx context.Context, conversationID string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cursors[conversationID], nil
}
