package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/google/uuid"
)

// EventListener получает событие прогрессии. Ошибка только логируется.
type EventListener func(ctx context.Context, event models.ProgressionEvent) error

type subscription struct {
	id       int
	only     models.EventType
	listener EventListener
}

// EventBus delivers events synchronously, in subscription order, on the publisher's goroutine.
// A failing or panicking listener never stops delivery to the rest.
type EventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
	logger *slog.Logger
	now    func() time.Time
}

func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{logger: logger, now: time.Now}
}

// Subscribe registers a listener for every event type and returns its unsubscribe func.
func (b *EventBus) Subscribe(listener EventListener) func() {
	return b.subscribe("", listener)
}

func (b *EventBus) SubscribeTo(eventType models.EventType, listener EventListener) func() {
	return b.subscribe(eventType, listener)
}

func (b *EventBus) subscribe(only models.EventType, listener EventListener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, only: only, listener: listener})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish fills in a missing id and timestamp and delivers the event.
func (b *EventBus) Publish(ctx context.Context, event models.ProgressionEvent) models.ProgressionEvent {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now().UTC()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.only != "" && s.only != event.Type {
			continue
		}
		if err := b.deliver(ctx, s.listener, event); err != nil {
			b.logger.Error("progression event listener failed",
				slog.String("event_id", event.ID),
				slog.String("event_type", string(event.Type)),
				slog.Int("tournament_id", event.TournamentID),
				slog.Any("error", err))
		}
	}
	return event
}

func (b *EventBus) deliver(ctx context.Context, listener EventListener, event models.ProgressionEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return listener(ctx, event)
}

func (b *EventBus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
