package notify

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophaccount/internal/logging"
)

// Delivery outcomes passed to the observer.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// Dispatcher runs deliveries on a fixed pool of workers fed by a bounded
// queue. Callers never wait for delivery.
type Dispatcher struct {
	notifier Notifier
	logger   logging.Logger
	timeout  time.Duration
	observe  func(outcome string)

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	wg     sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

// WithObserver registers fn to be called once per message with its outcome.
func WithObserver(fn func(outcome string)) DispatcherOption {
	return func(d *Dispatcher) { d.observe = fn }
}

// NewDispatcher starts workers goroutines. Each delivery gets its own
// timeout, independent of the request that queued it.
func NewDispatcher(n Notifier, logger logging.Logger, workers, queueSize int, timeout time.Duration, opts ...DispatcherOption) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	d := &Dispatcher{
		notifier: n,
		logger:   logger,
		timeout:  timeout,
		observe:  func(string) {},
		queue:    make(chan Message, queueSize),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// Dispatch queues msg and returns at once. It reports false when the
// message was dropped because the queue is full or the dispatcher closed.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Error(ctx, "notification dropped: dispatcher closed", "to", msg.To)
		d.observe(OutcomeDropped)
		return false
	}

	select {
	case d.queue <- msg:
		return true
	default:
		d.logger.Error(ctx, "notification dropped: queue full", "to", msg.To)
		d.observe(OutcomeDropped)
		return false
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := d.notifier.Send(ctx, msg); err != nil {
		d.logger.Error(ctx, "notification failed", "to", msg.To, "error", err)
		d.observe(OutcomeFailed)
		return
	}
	d.logger.Debug(ctx, "notification sent", "to", msg.To)
	d.observe(OutcomeSent)
}

// Close stops accepting messages and waits until the queue is drained or
// ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
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
