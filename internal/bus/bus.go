// Package bus carries chat events from the transport to the orchestrator.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"threadbot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based event bus for in-process communication.
type InMemoryBus struct {
	events chan domain.ChatEvent
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryBus{
		events: make(chan domain.ChatEvent, bufferSize),
		logger: logger,
	}
}

// Publish blocks up to 10 seconds if the bus is full instead of dropping.
func (b *InMemoryBus) Publish(evt domain.ChatEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus", "event", evt.ID)
		return
	}

	select {
	case b.events <- evt:
	default:
		b.logger.Warn("event bus full, waiting", "event", evt.ID, "channel", evt.ChannelID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.events <- evt:
			b.logger.Info("event delivered after wait", "event", evt.ID)
		case <-timer.C:
			b.logger.Error("event dropped: bus full for 10s",
				"event", evt.ID,
				"channel", evt.ChannelID,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.ChatEvent {
	return b.events
}

// Close stops the bus. Subscribers see the channel closed once drained.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.events)
	}
}
