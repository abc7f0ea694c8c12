package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docproof/internal/platform/kafka/producer"
	"docproof/internal/registry/models"
	"docproof/internal/registry/store/memory"
	"docproof/pkg/domain"
	"docproof/pkg/platform/audit"
)

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) handle(_ context.Context, evt models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) snapshot() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...)
}

func seed(t *testing.T, store *memory.InMemory, docs ...string) {
	t.Helper()
	for _, d := range docs {
		rec, err := models.NewRecord(domain.DeriveFingerprint([]byte(d)), "", "alice", "issuer", time.Now())
		require.NoError(t, err)
		require.NoError(t, store.Insert(context.Background(), rec, models.NewCreatedEvent(rec)))
	}
}

func startNotifier(t *testing.T, n *Notifier) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = n.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestDeliversInLogOrder(t *testing.T) {
	store := memory.New()
	seed(t, store, "a", "b", "c")

	n := New(store, WithBatchSize(2), WithPollInterval(time.Hour))
	rec := &recorder{}
	require.NoError(t, n.Register(ConsumerFunc("rec", rec.handle)))
	startNotifier(t, n)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, time.Second, 5*time.Millisecond)

	seed(t, store, "d")
	n.Notify()
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 4 }, time.Second, 5*time.Millisecond)

	for i, evt := range rec.snapshot() {
		assert.Equal(t, int64(i+1), evt.Sequence)
	}
	cursor, ok := n.Cursor("rec")
	assert.True(t, ok)
	assert.Equal(t, int64(4), cursor)
}

func TestFailingConsumerDoesNotBlockSiblings(t *testing.T) {
	store := memory.New()
	seed(t, store, "a", "b")

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	n := New(store,
		WithMetrics(metrics),
		WithPollInterval(time.Hour),
		WithBackoff(time.Millisecond, 5*time.Millisecond),
	)

	healthy := &recorder{}
	flaky := &recorder{}
	var mu sync.Mutex
	failuresLeft := 5
	release := make(chan struct{})

	require.NoError(t, n.Register(ConsumerFunc("healthy", healthy.handle)))
	require.NoError(t, n.Register(ConsumerFunc("flaky", func(ctx context.Context, evt models.Event) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		mu.Lock()
		defer mu.Unlock()
		if failuresLeft > 0 {
			failuresLeft--
			return errors.New("downstream unavailable")
		}
		return flaky.handle(ctx, evt)
	})))
	startNotifier(t, n)

	require.Eventually(t, func() bool { return len(healthy.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, flaky.snapshot())

	close(release)
	require.Eventually(t, func() bool { return len(flaky.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)

	got := flaky.snapshot()
	assert.Equal(t, int64(1), got[0].Sequence, "retries keep order")
	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.Failures.WithLabelValues("flaky")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Delivered.WithLabelValues("healthy")))
}

func TestRegisterAtResumesAfterCursor(t *testing.T) {
	store := memory.New()
	seed(t, store, "a", "b", "c")

	n := New(store, WithPollInterval(time.Hour))
	rec := &recorder{}
	require.NoError(t, n.RegisterAt(ConsumerFunc("resume", rec.handle), 2))
	startNotifier(t, n)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(3), rec.snapshot()[0].Sequence)
}

func TestRegistration(t *testing.T) {
	n := New(memory.New(), WithPollInterval(time.Hour))
	noop := func(context.Context, models.Event) error { return nil }

	require.NoError(t, n.Register(ConsumerFunc("one", noop)))
	assert.ErrorIs(t, n.Register(ConsumerFunc("one", noop)), ErrDuplicateName)

	n.Notify()
	n.Notify()

	startNotifier(t, n)
	require.Eventually(t, func() bool { return n.running.Load() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, n.Register(ConsumerFunc("two", noop)), ErrRunning)

	_, ok := n.Cursor("missing")
	assert.False(t, ok)
}

type captureEmitter struct {
	entries []audit.Entry
}

func (c *captureEmitter) Emit(_ context.Context, e audit.Entry) {
	c.entries = append(c.entries, e)
}

func TestAuditSink(t *testing.T) {
	rec, err := models.NewRecord(domain.DeriveFingerprint([]byte("x")), "", "alice", "issuer", time.Now())
	require.NoError(t, err)
	rec.ApplyTransfer("bob")
	evt := models.NewTransferredEvent(rec, "alice", "alice", time.Now())

	emitter := &captureEmitter{}
	require.NoError(t, AuditSink(emitter).Handle(context.Background(), evt))
	require.Len(t, emitter.entries, 1)

	e := emitter.entries[0]
	assert.Equal(t, audit.ActionRecordTransferred, e.Action)
	assert.Equal(t, audit.OutcomeSuccess, e.Outcome)
	assert.Equal(t, evt.ID, e.EventID)
	assert.Equal(t, domain.Identity("alice"), e.PreviousOwner)
	assert.Equal(t, domain.Identity("bob"), e.Owner)
	assert.Equal(t, int64(1), e.Version)

	assert.Error(t, AuditSink(emitter).Handle(context.Background(), models.Event{Type: "minted"}))
}

type capturePublisher struct {
	msgs []producer.Message
	err  error
}

func (c *capturePublisher) Publish(_ context.Context, msgs ...producer.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestKafkaBridge(t *testing.T) {
	rec, err := models.NewRecord(domain.DeriveFingerprint([]byte("x")), "ref", "alice", "issuer", time.Now())
	require.NoError(t, err)
	evt := models.NewCreatedEvent(rec)
	evt.Sequence = 7

	pub := &capturePublisher{}
	require.NoError(t, KafkaBridge(pub, "events").Handle(context.Background(), evt))
	require.Len(t, pub.msgs, 1)

	msg := pub.msgs[0]
	assert.Equal(t, "events", msg.Topic)
	assert.Equal(t, []byte(rec.Fingerprint), msg.Key)
	assert.Equal(t, "7", msg.Headers["sequence"])
	assert.Equal(t, "created", msg.Headers["event_type"])

	decoded, err := models.UnmarshalEvent(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, decoded.ID)

	pub.err = errors.New("broker down")
	assert.Error(t, KafkaBridge(pub, "events").Handle(context.Background(), evt))
}
