// Package notifier relays committed ledger events to registered consumers.
//
// The ledger's durable event log is the outbox. Each consumer owns a cursor
// into it and a goroutine that reads forward from the cursor, so a slow or
// failing consumer never delays writers or its siblings. A consumer's cursor
// only advances after it handled an event, which makes delivery
// at-least-once and, because the log is totally ordered, FIFO per
// fingerprint.
package notifier

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"docproof/internal/registry/models"
)

// EventSource is the durable log. ReadFrom returns events with
// Sequence > afterSeq in ascending order.
type EventSource interface {
	ReadFrom(ctx context.Context, afterSeq int64, limit int) ([]models.Event, error)
}

// Consumer handles one event. Returning an error makes the notifier retry the
// same event with backoff; Handle must therefore be idempotent.
type Consumer interface {
	Name() string
	Handle(ctx context.Context, evt models.Event) error
}

type funcConsumer struct {
	name string
	fn   func(ctx context.Context, evt models.Event) error
}

func (c funcConsumer) Name() string { return c.name }

func (c funcConsumer) Handle(ctx context.Context, evt models.Event) error { return c.fn(ctx, evt) }

// ConsumerFunc adapts a function to Consumer.
func ConsumerFunc(name string, fn func(ctx context.Context, evt models.Event) error) Consumer {
	return funcConsumer{name: name, fn: fn}
}

var (
	ErrRunning       = errors.New("notifier already running")
	ErrDuplicateName = errors.New("consumer name already registered")
)

type subscription struct {
	consumer Consumer
	cursor   atomic.Int64
	wake     chan struct{}
}

type Notifier struct {
	source  EventSource
	logger  *slog.Logger
	metrics *Metrics

	batchSize      int
	pollInterval   time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu      sync.Mutex
	subs    []*subscription
	running atomic.Bool
}

type Option func(*Notifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

// WithBatchSize bounds how many events one read pulls from the log.
func WithBatchSize(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.batchSize = size
		}
	}
}

// WithPollInterval sets the fallback wakeup for writes committed by other
// processes, which never call Notify on this instance.
func WithPollInterval(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.pollInterval = d
		}
	}
}

func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(n *Notifier) {
		if initial > 0 {
			n.initialBackoff = initial
		}
		if maxInterval > 0 {
			n.maxBackoff = maxInterval
		}
	}
}

func New(source EventSource, opts ...Option) *Notifier {
	n := &Notifier{
		source:         source,
		logger:         slog.New(slog.DiscardHandler),
		batchSize:      256,
		pollInterval:   time.Second,
		initialBackoff: 100 * time.Millisecond,
		maxBackoff:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = slog.New(slog.DiscardHandler)
	}
	return n
}

// Register adds a consumer that starts from the beginning of the log.
func (n *Notifier) Register(c Consumer) error {
	return n.RegisterAt(c, 0)
}

// RegisterAt adds a consumer that resumes after sequence afterSeq.
func (n *Notifier) RegisterAt(c Consumer, afterSeq int64) error {
	if n.running.Load() {
		return ErrRunning
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.subs {
		if s.consumer.Name() == c.Name() {
			return ErrDuplicateName
		}
	}
	sub := &subscription{consumer: c, wake: make(chan struct{}, 1)}
	sub.cursor.Store(afterSeq)
	n.subs = append(n.subs, sub)
	return nil
}

// Notify wakes every consumer. It never blocks.
func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.subs {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// Cursor reports the last sequence the named consumer acknowledged.
func (n *Notifier) Cursor(name string) (int64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.subs {
		if s.consumer.Name() == name {
			return s.cursor.Load(), true
		}
	}
	return 0, false
}

// Run delivers events until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	if !n.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer n.running.Store(false)

	n.mu.Lock()
	subs := append([]*subscription(nil), n.subs...)
	n.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		g.Go(func() error {
			n.consume(ctx, sub)
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

func (n *Notifier) consume(ctx context.Context, sub *subscription) {
	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()

	name := sub.consumer.Name()
	n.logger.InfoContext(ctx, "notifier consumer started", "consumer", name, "cursor", sub.cursor.Load())
	for {
		n.drain(ctx, sub)
		select {
		case <-ctx.Done():
			n.logger.InfoContext(context.WithoutCancel(ctx), "notifier consumer stopped", "consumer", name, "cursor", sub.cursor.Load())
			return
		case <-sub.wake:
		case <-ticker.C:
		}
	}
}

// drain reads forward from the cursor until the log is exhausted.
func (n *Notifier) drain(ctx context.Context, sub *subscription) {
	name := sub.consumer.Name()
	for ctx.Err() == nil {
		events, err := n.source.ReadFrom(ctx, sub.cursor.Load(), n.batchSize)
		if err != nil {
			if ctx.Err() == nil {
				n.metrics.failed(name)
				n.logger.WarnContext(ctx, "notifier failed to read event log", "consumer", name, "error", err)
			}
			return
		}
		for _, evt := range events {
			if err := n.deliver(ctx, sub, evt); err != nil {
				return
			}
			sub.cursor.Store(evt.Sequence)
			n.metrics.delivered(name, evt.Sequence)
		}
		if len(events) < n.batchSize {
			return
		}
	}
}

// deliver retries one event until it is handled or ctx ends.
func (n *Notifier) deliver(ctx context.Context, sub *subscription, evt models.Event) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = n.initialBackoff
	policy.MaxInterval = n.maxBackoff
	policy.MaxElapsedTime = 0

	name := sub.consumer.Name()
	return backoff.RetryNotify(func() error {
		return sub.consumer.Handle(ctx, evt)
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		n.metrics.failed(name)
		n.logger.WarnContext(ctx, "consumer failed to handle event, retrying",
			"consumer", name,
			"sequence", evt.Sequence,
			"event_type", string(evt.Type),
			"fingerprint", evt.Fingerprint.String(),
			"retry_in", wait,
			"error", err,
		)
	})
}
