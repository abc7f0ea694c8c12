// Package publisher emits audit entries asynchronously.
//
// Emit never blocks and never fails: entries go into a bounded ring buffer
// and a background loop drains them to the store in batches. When the buffer
// overflows the oldest entries are dropped and counted. Close drains whatever
// is still buffered.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "docproof/pkg/platform/audit"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 250 * time.Millisecond
	drainTimeout         = 5 * time.Second
)

type Publisher struct {
	store         audit.Store
	buffer        *RingBuffer
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	metrics       *Metrics

	wake      chan struct{}
	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithBufferSize bounds the number of entries held in memory.
func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(n)
	}
}

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// New starts a publisher draining into store.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:         store,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        slog.New(slog.DiscardHandler),
		wake:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer == nil {
		p.buffer = NewRingBuffer(defaultBufferCapacity)
	}
	go p.run()
	return p
}

// Emit buffers entry for persistence. ID and Timestamp are filled when zero.
func (p *Publisher) Emit(_ context.Context, entry audit.Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if !p.buffer.Enqueue(entry) {
		p.metrics.incDropped()
	}
	p.metrics.incEmitted()
	p.metrics.setDepth(p.buffer.Len())

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Close stops the background loop after draining buffered entries.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		close(p.stop)
		<-p.stopped
	})
	return nil
}

func (p *Publisher) run() {
	defer close(p.stopped)

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			p.flush(ctx)
			cancel()
			return
		case <-p.wake:
			p.flush(context.Background())
		case <-ticker.C:
			p.flush(context.Background())
		}
	}
}

func (p *Publisher) flush(ctx context.Context) {
	for {
		batch := p.buffer.DequeueBatch(p.batchSize)
		if len(batch) == 0 {
			p.metrics.setDepth(0)
			return
		}
		for _, entry := range batch {
			if err := p.store.Append(ctx, entry); err != nil {
				p.metrics.incPersistFailures()
				p.logger.ErrorContext(ctx, "audit entry persistence failed",
					"log_type", "audit",
					"action", entry.Action,
					"fingerprint", entry.Fingerprint,
					"request_id", entry.RequestID,
					"error", err,
				)
			}
		}
		p.metrics.setDepth(p.buffer.Len())
	}
}
