// Package live рассылает события о заполненности турниров и результатах матчей
// всем подключенным наблюдателям.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

const defaultSubscriberBuffer = 64

var ErrHubClosed = errors.New("live hub is closed")

// Publisher - то, через что сервисы отправляют события.
// Реализуется Hub (один инстанс) и RedisRelay (несколько инстансов).
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber - один наблюдатель. Канал закрывается при отписке или остановке хаба.
type Subscriber struct {
	send chan []byte
}

func (s *Subscriber) Messages() <-chan []byte {
	return s.send
}

// Hub владеет множеством подписчиков. Все изменения идут через цикл Run.
// Доставка best-effort: подписчик с полным буфером пропускает событие,
// опоздавшие подписчики истории не получают.
type Hub struct {
	subscribers map[*Subscriber]struct{}
	register    chan *Subscriber
	unregister  chan *Subscriber
	broadcast   chan []byte
	done        chan struct{}
	bufferSize  int
	logger      *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		broadcast:   make(chan []byte),
		done:        make(chan struct{}),
		bufferSize:  defaultSubscriberBuffer,
		logger:      logger,
	}
}

// Run обслуживает хаб до отмены ctx, после чего закрывает каналы всех подписчиков.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case sub := <-h.register:
			h.subscribers[sub] = struct{}{}
			h.logger.Debug("live subscriber registered", slog.Int("subscribers", len(h.subscribers)))

		case sub := <-h.unregister:
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.send)
				h.logger.Debug("live subscriber unregistered", slog.Int("subscribers", len(h.subscribers)))
			}

		case message := <-h.broadcast:
			dropped := 0
			for sub := range h.subscribers {
				select {
				case sub.send <- message:
				default:
					dropped++
				}
			}
			if dropped > 0 {
				h.logger.Warn("live event skipped for slow subscribers", slog.Int("dropped", dropped))
			}

		case <-ctx.Done():
			for sub := range h.subscribers {
				close(sub.send)
				delete(h.subscribers, sub)
			}
			h.logger.Info("live hub stopped")
			return
		}
	}
}

// Subscribe регистрирует нового наблюдателя. Если хаб уже остановлен,
// возвращается подписчик с закрытым каналом.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{send: make(chan []byte, h.bufferSize)}
	select {
	case h.register <- sub:
	case <-h.done:
		close(sub.send)
	}
	return sub
}

// Unsubscribe безопасно вызывать повторно.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

func (h *Hub) Publish(ctx context.Context, event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode live event %s: %w", event.Type, err)
	}
	return h.Deliver(ctx, raw)
}

// Deliver рассылает уже сериализованное событие локальным подписчикам.
func (h *Hub) Deliver(ctx context.Context, raw []byte) error {
	select {
	case h.broadcast <- raw:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
