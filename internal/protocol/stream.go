package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/convoclient/internal/logger"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

// StreamMessages подключается к /ws relay и вызывает onMessage для каждого
// события message в порядке получения (не обязательно в порядке отправки —
// упорядочивание делает движок слияния). Возвращённая функция закрывает
// подписку; после её вызова onMessage больше не вызывается.
func (c *HTTPClient) StreamMessages(ctx context.Context, onMessage func(RawMessage)) (func(), error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("protocol.StreamMessages dial: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	// Пинги держат соединение живым; дедлайн чтения сдвигается на каждый pong.
	go func() {
		ticker := time.NewTicker(streamPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-streamCtx.Done():
				_ = conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(streamWriteWait))
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	go func() {
		defer close(done)
		defer cancel()
		if err := conn.SetReadDeadline(time.Now().Add(streamPongWait)); err != nil {
			return
		}
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if streamCtx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Errorf("stream read: %v", err)
				}
				return
			}
			var evt StreamEvent
			if err := json.Unmarshal(raw, &evt); err != nil {
				logger.Errorf("stream unmarshal: %v", err)
				continue
			}
			switch evt.Type {
			case EventMessage:
				var msg RawMessage
				if err := json.Unmarshal(evt.Payload, &msg); err != nil {
					logger.Errorf("stream message payload: %v", err)
					continue
				}
				onMessage(msg)
			case EventError:
				logger.Errorf("stream error event: %s", string(evt.Payload))
			default:
				// Незнакомые события пропускаем — прямая совместимость
			}
		}
	}()

	unsubscribe := func() {
		cancel()
		<-done
	}
	return unsubscribe, nil
}
