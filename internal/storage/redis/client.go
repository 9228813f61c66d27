package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// SetNewestCursor сохраняет курсор по ключу cursor:{conversationID}.
// Курсор монотонный, поэтому меньшее значение не перезаписывает большее.
func (c *Client) SetNewestCursor(ctx context.Context, conversationID string, nanos int64) error {
	cur, err := c.GetNewestCursor(ctx, conversationID)
	if err != nil {
		return err
	}
	if nanos <= cur {
		return nil
	}
	return c.cli.Set(ctx, "cursor:"+conversationID, strconv.FormatInt(nanos, 10), 0).Err()
}

// GetNewestCursor возвращает сохранённый курсор, 0 если точки ещё нет.
func (c *Client) GetNewestCursor(ctx context.Context, conversationID string) (int64, error) {
	val, err := c.cli.Get(ctx, "cursor:"+conversationID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis parse cursor %q: %w", val, err)
	}
	return n, nil
}
