package service

import (
	"sync"
	"time"

	"github.com/arturoeanton/repo-sync/internal/domain"
)

// Publisher receives integration state changes.
type Publisher interface {
	Publish(evt domain.IntegrationEvent)
}

// EventBus broadcasts integration events to SSE subscribers.
// Slow subscribers miss events rather than block publishers.
type EventBus struct {
	mu   sync.RWMutex
	subs []chan domain.IntegrationEvent
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Publish fans evt out to every subscriber without blocking.
func (b *EventBus) Publish(evt domain.IntegrationEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribe registers a new buffered subscriber.
func (b *EventBus) Subscribe() chan domain.IntegrationEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan domain.IntegrationEvent, 10)
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe removes and closes ch.
func (b *EventBus) Unsubscribe(ch chan domain.IntegrationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(domain.IntegrationEvent) {}

func publishFor(in *domain.Integration, typ, detail string) domain.IntegrationEvent {
	return domain.IntegrationEvent{
		Type:      typ,
		RepoID:    in.ID,
		GitHubID:  in.GitHubID,
		FullName:  in.FullName,
		Status:    in.Status,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
}
