package outbox

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

const (
	componentOutbox = "outbox"

	defaultQueueSize   = 1024
	defaultConcurrency = 8
	defaultAttempts    = 3
	handlerTimeout     = 30 * time.Second
)

var ErrBusClosed = errors.New("outbox: bus closed")

// Bus is an in-memory event bus used when no external broker is configured, and by tests.
// It is not durable. A handler error is treated as a missing ack and the delivery is retried
// up to MaxAttempts times, mirroring a broker's at-least-once redelivery.
type Bus struct {
	mu          sync.RWMutex
	subs        map[string][]domoutbox.Handler
	queue       chan domoutbox.Event
	closeMu     sync.RWMutex // guards closed and the queue close; held shared while enqueuing
	closed      bool
	startOnce   sync.Once
	stopOnce    sync.Once
	done        chan struct{}
	concurrency int
	maxAttempts int
	log         observability.Logger
	consumed    observability.Counter // event_consume_total{topic,outcome}
}

type Option func(*Bus)

func WithQueueSize(n int) Option   { return func(b *Bus) { b.queue = make(chan domoutbox.Event, n) } }
func WithConcurrency(n int) Option { return func(b *Bus) { b.concurrency = n } }
func WithMaxAttempts(n int) Option { return func(b *Bus) { b.maxAttempts = n } }

func NewBus(tel observability.Observability, opts ...Option) *Bus {
	_, logger, metrics := observability.Resolve(tel)
	b := &Bus{
		subs:        make(map[string][]domoutbox.Handler),
		queue:       make(chan domoutbox.Event, defaultQueueSize),
		done:        make(chan struct{}),
		concurrency: defaultConcurrency,
		maxAttempts: defaultAttempts,
		log:         logger.With(observability.F("component", componentOutbox)),
		consumed:    metrics.Counter(observability.MEventsConsumed),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.concurrency < 1 {
		b.concurrency = 1
	}
	if b.maxAttempts < 1 {
		b.maxAttempts = 1
	}
	return b
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.dispatchLoop(context.WithoutCancel(ctx))
		logctx.FromOr(ctx, b.log).Info("event_bus_started")
	})
}

// Stop refuses new events and waits for queued ones to be dispatched, or for ctx to end.
func (b *Bus) Stop(ctx context.Context) error {
	var err error
	b.stopOnce.Do(func() {
		b.closeMu.Lock()
		b.closed = true
		close(b.queue)
		b.closeMu.Unlock()

		select {
		case <-b.done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		logctx.FromOr(ctx, b.log).Info("event_bus_stopped")
	})
	return err
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	logger := logctx.FromOr(ctx, b.log).With(observability.F("event", e.EventName()))
	select {
	case b.queue <- e:
		logger.Debug("event_enqueued")
		return nil
	case <-ctx.Done():
		logger.Warn("event_enqueue_aborted", observability.F("error", ctx.Err()))
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for e := range b.queue {
		b.fanout(ctx, e)
	}
}

func (b *Bus) fanout(ctx context.Context, e domoutbox.Event) {
	name := e.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	logger := b.log.With(observability.F("event", name))
	if id := domoutbox.IDOf(e); id != "" {
		logger = logger.With(observability.F("event_id", id))
	}
	if len(handlers) == 0 {
		logger.Debug("event_dropped_no_subscriber")
		return
	}

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for _, h := range handlers {
		h := h
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			b.deliver(logctx.With(ctx, logger), logger, h, e)
		}()
	}

	wg.Wait()
	logger.Debug("event_fanned_out", observability.F("handlers", len(handlers)))
}

// deliver runs h until it acks or the attempts run out.
func (b *Bus) deliver(ctx context.Context, logger observability.Logger, h domoutbox.Handler, e domoutbox.Event) {
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		err := b.invoke(ctx, logger, h, e)
		if err == nil {
			b.count(e.EventName(), "acked")
			return
		}
		logger.Warn("event_handler_error",
			observability.F("attempt", attempt),
			observability.F("error", err),
		)
	}
	b.count(e.EventName(), "dropped")
	logger.Error("event_delivery_exhausted", observability.F("attempts", b.maxAttempts))
}

func (b *Bus) invoke(ctx context.Context, logger observability.Logger, h domoutbox.Handler, e domoutbox.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event_handler_panic",
				observability.F("panic", r),
				observability.F("stack", string(debug.Stack())),
			)
			err = errors.New("outbox: handler panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	return h(ctx, e)
}

func (b *Bus) count(topic, outcome string) {
	b.consumed.Add(1,
		observability.L("topic", topic),
		observability.L("outcome", outcome),
	)
}
