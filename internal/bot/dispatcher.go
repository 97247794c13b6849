package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"threadbot/internal/domain"
	"threadbot/internal/metrics"
)

const defaultConcurrency = 4

// EventHandler processes a single event.
type EventHandler interface {
	Handle(ctx context.Context, ev domain.ChatEvent) error
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Bus         domain.EventBus
	Handler     EventHandler
	Concurrency int // max events handled at once (default 4)
	Logger      *slog.Logger
}

// Dispatcher consumes the event bus and hands events to the handler with
// bounded concurrency.
type Dispatcher struct {
	bus         domain.EventBus
	handler     EventHandler
	concurrency int
	logger      *slog.Logger
	wg          sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		bus:         cfg.Bus,
		handler:     cfg.Handler,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

// Run handles events until ctx is done or the bus is closed, then waits for
// in-flight events. A failed event is logged and does not stop the loop.
// Handlers run on a context detached from ctx: an accepted event finishes
// its reply after ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started", "concurrency", d.concurrency)
	defer d.wg.Wait()

	sem := make(chan struct{}, d.concurrency)
	inbound := d.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return
		case ev, ok := <-inbound:
			if !ok {
				d.logger.Info("event bus closed, dispatcher stopping")
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				d.logger.Info("dispatcher stopping", "dropped", ev.ID)
				return
			}
			d.wg.Add(1)
			go func(ev domain.ChatEvent) {
				defer d.wg.Done()
				defer func() { <-sem }()
				d.process(context.WithoutCancel(ctx), ev)
			}(ev)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, ev domain.ChatEvent) {
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panic", "event", ev.ID, "panic", r)
		}
	}()

	start := time.Now()
	var queued time.Duration
	if !ev.ReceivedAt.IsZero() {
		queued = start.Sub(ev.ReceivedAt)
		metrics.QueueWait.Observe(queued.Seconds())
	}
	if err := d.handler.Handle(ctx, ev); err != nil {
		d.logger.Error("event failed", "event", ev.ID, "channel", ev.ChannelID, "queued", queued, "err", err)
		return
	}
	d.logger.Debug("event done", "event", ev.ID, "queued", queued, "duration", time.Since(start))
}
