package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrDispatcherClosed indicates Enqueue was called after Close.
	ErrDispatcherClosed = errors.New("event dispatcher: closed")
	// ErrDispatcherFull indicates the buffer is saturated; the envelope was dropped.
	ErrDispatcherFull = errors.New("event dispatcher: queue full")
)

const (
	defaultDispatcherWorkers  = 4
	defaultDispatcherBuffer   = 256
	defaultDispatcherAttempts = 3
	defaultDispatcherBackoff  = 200 * time.Millisecond
)

// EventDispatcherDeps bundles collaborators required to construct a dispatcher.
type EventDispatcherDeps struct {
	Publisher   OrderEventPublisher
	Workers     int
	Buffer      int
	MaxAttempts int
	// RetryBackoff is the base delay between attempts; it doubles per retry.
	RetryBackoff time.Duration
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type eventDispatcher struct {
	publisher   OrderEventPublisher
	queue       chan OrderEventMessage
	maxAttempts int
	backoff     time.Duration
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewEventDispatcher starts the worker pool that publishes order lifecycle
// events off the request path. Delivery is at-least-once with bounded retries;
// an envelope that exhausts its attempts is logged and dropped.
func NewEventDispatcher(deps EventDispatcherDeps) (EventDispatcher, error) {
	if deps.Publisher == nil {
		return nil, errors.New("event dispatcher: publisher is required")
	}

	workers := deps.Workers
	if workers <= 0 {
		workers = defaultDispatcherWorkers
	}
	buffer := deps.Buffer
	if buffer <= 0 {
		buffer = defaultDispatcherBuffer
	}
	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultDispatcherAttempts
	}
	backoff := deps.RetryBackoff
	if backoff <= 0 {
		backoff = defaultDispatcherBackoff
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	d := &eventDispatcher{
		publisher:   deps.Publisher,
		queue:       make(chan OrderEventMessage, buffer),
		maxAttempts: maxAttempts,
		backoff:     backoff,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d, nil
}

// Enqueue stamps the envelope and queues it without blocking. A saturated
// buffer returns ErrDispatcherFull so callers can decide whether losing the
// event matters; the order pipeline treats it as best-effort.
func (d *eventDispatcher) Enqueue(ctx context.Context, message OrderEventMessage) error {
	if strings.TrimSpace(message.Type) == "" {
		return errors.New("event dispatcher: event type is required")
	}
	if message.EventID == "" {
		message.EventID = d.newID()
	}
	if message.OccurredAt.IsZero() {
		message.OccurredAt = d.clock()
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- message:
		d.mu.Unlock()
		return nil
	default:
		d.mu.Unlock()
		return ErrDispatcherFull
	}
}

// Close stops intake and waits for queued envelopes to drain. The context
// bounds the wait; a timeout abandons whatever is still in flight.
func (d *eventDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *eventDispatcher) worker() {
	defer d.wg.Done()
	for message := range d.queue {
		d.deliver(message)
	}
}

func (d *eventDispatcher) deliver(message OrderEventMessage) {
	ctx := context.Background()
	delay := d.backoff

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		messageID, err := d.publisher.PublishOrderEvent(ctx, message)
		if err == nil {
			d.logger(ctx, "events.published", map[string]any{
				"eventId":   message.EventID,
				"eventType": message.Type,
				"messageId": messageID,
				"attempt":   attempt,
			})
			return
		}
		if attempt < d.maxAttempts {
			time.Sleep(delay)
			delay *= 2
			continue
		}
		d.logger(ctx, "events.dropped", map[string]any{
			"eventId":   message.EventID,
			"eventType": message.Type,
			"attempts":  attempt,
			"error":     err.Error(),
		})
	}
}
