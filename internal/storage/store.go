// Package storage — хранилище контрольных точек синхронизации.
package storage

import (
	"context"
)

// CheckpointStore хранит последний увиденный курсор каждой беседы, чтобы
// перезапущенный клиент делал catch-up с места остановки, а не холодный
// старт. Реализации: redis.Client, memory.Client (для -dev без Redis).
type CheckpointStore interface {
	SetNewestCursor(ctx context.Context, conversationID string, nanos int64) error
	GetNewestCursor(ctx context.Context, conversationID string) (int64, error)
	Close() error
}
