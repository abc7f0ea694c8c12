// Package service implements the registry ledger: the authoritative
// fingerprint to provenance record mapping and its create, transfer and
// revoke rules.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docproof/internal/registry/metrics"
	"docproof/internal/registry/models"
	"docproof/pkg/domain"
	dErrors "docproof/pkg/domain-errors"
	"docproof/pkg/platform/audit"
	"docproof/pkg/platform/sentinel"
	"docproof/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks RecordStore,AuditPublisher,Notifier

// RecordStore is the persistence port. Insert and CompareAndSwap append the
// event to the durable log in the same atomic step as the record write.
type RecordStore interface {
	Insert(ctx context.Context, rec *models.Record, evt models.Event) error
	FindByFingerprint(ctx context.Context, fp domain.Fingerprint) (*models.Record, error)
	FindMany(ctx context.Context, fps []domain.Fingerprint) (map[domain.Fingerprint]*models.Record, error)
	CompareAndSwap(ctx context.Context, expectedVersion int64, rec *models.Record, evt models.Event) error
	List(ctx context.Context) ([]*models.Record, error)
	Count(ctx context.Context) (int64, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry)
}

// Notifier is woken after every committed write.
type Notifier interface {
	Notify()
}

const (
	opCreate   = "create"
	opGet      = "get"
	opRevoke   = "revoke"
	opTransfer = "transfer"
	opGetMany  = "get_many"
	opCount    = "count"
	opList     = "list"

	defaultCASRetries       = 8
	defaultCommitTimeout    = 5 * time.Second
	defaultStorageRetries   = 3
	defaultStorageRetryBase = 50 * time.Millisecond
)

// CreateRequest carries unvalidated caller input for Create.
type CreateRequest struct {
	Fingerprint string
	MetadataRef string
	Owner       string
	Issuer      domain.Identity
}

// Ledger orchestrates record mutations over a RecordStore.
type Ledger struct {
	store    RecordStore
	logger   *slog.Logger
	metrics  *metrics.Metrics
	auditor  AuditPublisher
	notifier Notifier
	tracer   trace.Tracer
	now      func() time.Time

	casRetries       int
	commitTimeout    time.Duration
	storageRetries   int
	storageRetryBase time.Duration
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(l *Ledger) {
		l.auditor = p
	}
}

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) {
		l.notifier = n
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(l *Ledger) {
		l.tracer = t
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithCASRetries bounds compare-and-swap attempts per mutation.
func WithCASRetries(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.casRetries = n
		}
	}
}

func WithCommitTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.commitTimeout = d
		}
	}
}

// WithStorageRetry sets how often an unavailable store is retried and the
// first backoff interval.
func WithStorageRetry(attempts int, base time.Duration) Option {
	return func(l *Ledger) {
		if attempts >= 0 {
			l.storageRetries = attempts
		}
		if base > 0 {
			l.storageRetryBase = base
		}
	}
}

// New constructs a Ledger.
func New(store RecordStore, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("record store is required")
	}
	l := &Ledger{
		store:            store,
		logger:           slog.New(slog.DiscardHandler),
		tracer:           otel.Tracer("docproof/registry"),
		now:              time.Now,
		casRetries:       defaultCASRetries,
		commitTimeout:    defaultCommitTimeout,
		storageRetries:   defaultStorageRetries,
		storageRetryBase: defaultStorageRetryBase,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.New(slog.DiscardHandler)
	}
	return l, nil
}

// Create registers a new fingerprint. Input is validated before the store is
// touched; the store decides the single winner among concurrent creates.
func (l *Ledger) Create(ctx context.Context, req CreateRequest) (rec *models.Record, err error) {
	ctx, finish := l.begin(ctx, opCreate, attribute.String("fingerprint", req.Fingerprint))
	defer func() { finish(err) }()

	fp, err := domain.ParseFingerprint(req.Fingerprint)
	if err != nil {
		l.reject(ctx, audit.ActionCreateRejected, "", req.Issuer, err)
		return nil, err
	}
	owner, err := domain.ParseIdentity(req.Owner)
	if err != nil {
		err = dErrors.New(dErrors.CodeInvalidOwner, "owner is required")
		l.reject(ctx, audit.ActionCreateRejected, fp, req.Issuer, err)
		return nil, err
	}
	rec, err = models.NewRecord(fp, req.MetadataRef, owner, req.Issuer, l.now())
	if err != nil {
		l.reject(ctx, audit.ActionCreateRejected, fp, req.Issuer, err)
		return nil, err
	}
	evt := models.NewCreatedEvent(rec)

	err = l.commit(ctx, opCreate, func(ctx context.Context) error {
		return l.store.Insert(ctx, rec, evt)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			err = dErrors.New(dErrors.CodeDuplicateFingerprint, "fingerprint already registered")
		} else {
			err = l.translateStorage(err, "failed to create record")
		}
		l.reject(ctx, audit.ActionCreateRejected, fp, req.Issuer, err)
		return nil, err
	}

	l.logger.InfoContext(ctx, "record created",
		"event", string(audit.ActionRecordCreated),
		"log_type", "audit",
		"request_id", requestcontext.RequestID(ctx),
		"actor", req.Issuer.String(),
		"fingerprint", fp.String(),
	)
	l.notify()
	return rec.Clone(), nil
}

// Get returns the record for raw. It is a pure read.
func (l *Ledger) Get(ctx context.Context, raw string) (rec *models.Record, err error) {
	ctx, finish := l.begin(ctx, opGet, attribute.String("fingerprint", raw))
	defer func() { finish(err) }()

	fp, err := domain.ParseFingerprint(raw)
	if err != nil {
		return nil, err
	}
	return l.load(ctx, opGet, fp)
}

// GetMany returns the records that exist among fps. Missing fingerprints are
// absent from the result.
func (l *Ledger) GetMany(ctx context.Context, fps []domain.Fingerprint) (out map[domain.Fingerprint]*models.Record, err error) {
	ctx, finish := l.begin(ctx, opGetMany, attribute.Int("count", len(fps)))
	defer func() { finish(err) }()

	if len(fps) == 0 {
		return map[domain.Fingerprint]*models.Record{}, nil
	}
	err = l.retryStorage(ctx, opGetMany, func(ctx context.Context) error {
		var ferr error
		out, ferr = l.store.FindMany(ctx, fps)
		return ferr
	})
	if err != nil {
		return nil, l.translateStorage(err, "failed to load records")
	}
	return out, nil
}

// Revoke permanently deactivates a record. The issuer or the current owner
// may revoke.
func (l *Ledger) Revoke(ctx context.Context, raw string, actor domain.Identity) (rec *models.Record, err error) {
	ctx, finish := l.begin(ctx, opRevoke, attribute.String("fingerprint", raw))
	defer func() { finish(err) }()

	rec, err = l.mutate(ctx, opRevoke, raw, actor, audit.ActionRevokeRejected, func(next *models.Record, at time.Time) (models.Event, error) {
		if err := next.CanRevoke(actor); err != nil {
			return models.Event{}, err
		}
		next.ApplyRevoke()
		return models.NewRevokedEvent(next, actor, at), nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.InfoContext(ctx, "record revoked",
		"event", string(audit.ActionRecordRevoked),
		"log_type", "audit",
		"request_id", requestcontext.RequestID(ctx),
		"actor", actor.String(),
		"fingerprint", rec.Fingerprint.String(),
		"version", rec.Version,
	)
	return rec, nil
}

// Transfer moves ownership of an active record to newOwner. Only the current
// owner may transfer.
func (l *Ledger) Transfer(ctx context.Context, raw string, actor domain.Identity, newOwner string) (rec *models.Record, err error) {
	ctx, finish := l.begin(ctx, opTransfer, attribute.String("fingerprint", raw))
	defer func() { finish(err) }()

	fp, err := domain.ParseFingerprint(raw)
	if err != nil {
		l.reject(ctx, audit.ActionTransferRejected, "", actor, err)
		return nil, err
	}
	target, err := domain.ParseIdentity(newOwner)
	if err != nil {
		err = dErrors.New(dErrors.CodeInvalidOwner, "new owner must be a non-empty identity")
		l.reject(ctx, audit.ActionTransferRejected, fp, actor, err)
		return nil, err
	}
	var previous domain.Identity
	rec, err = l.mutate(ctx, opTransfer, fp.String(), actor, audit.ActionTransferRejected, func(next *models.Record, at time.Time) (models.Event, error) {
		if err := next.CanTransfer(actor, target); err != nil {
			return models.Event{}, err
		}
		previous = next.ApplyTransfer(target)
		return models.NewTransferredEvent(next, actor, previous, at), nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.InfoContext(ctx, "record transferred",
		"event", string(audit.ActionRecordTransferred),
		"log_type", "audit",
		"request_id", requestcontext.RequestID(ctx),
		"actor", actor.String(),
		"fingerprint", rec.Fingerprint.String(),
		"previous_owner", previous.String(),
		"owner", rec.Owner.String(),
	)
	return rec, nil
}

// TotalCount is the number of records ever created, revoked ones included.
func (l *Ledger) TotalCount(ctx context.Context) (n int64, err error) {
	ctx, finish := l.begin(ctx, opCount)
	defer func() { finish(err) }()

	err = l.retryStorage(ctx, opCount, func(ctx context.Context) error {
		var cerr error
		n, cerr = l.store.Count(ctx)
		return cerr
	})
	if err != nil {
		return 0, l.translateStorage(err, "failed to count records")
	}
	return n, nil
}

// List enumerates every record in fingerprint order.
func (l *Ledger) List(ctx context.Context) (out []*models.Record, err error) {
	ctx, finish := l.begin(ctx, opList)
	defer func() { finish(err) }()

	err = l.retryStorage(ctx, opList, func(ctx context.Context) error {
		var lerr error
		out, lerr = l.store.List(ctx)
		return lerr
	})
	if err != nil {
		return nil, l.translateStorage(err, "failed to list records")
	}
	return out, nil
}

// mutate runs the optimistic read-check-apply-CAS loop shared by revoke and
// transfer. apply receives a private copy of the current record.
func (l *Ledger) mutate(
	ctx context.Context,
	op, raw string,
	actor domain.Identity,
	rejected audit.Action,
	apply func(next *models.Record, at time.Time) (models.Event, error),
) (*models.Record, error) {
	fp, err := domain.ParseFingerprint(raw)
	if err != nil {
		l.reject(ctx, rejected, "", actor, err)
		return nil, err
	}

	for attempt := 0; attempt < l.casRetries; attempt++ {
		current, err := l.load(ctx, op, fp)
		if err != nil {
			l.reject(ctx, rejected, fp, actor, err)
			return nil, err
		}
		next := current.Clone()
		evt, err := apply(next, l.now())
		if err != nil {
			l.reject(ctx, rejected, fp, actor, err)
			return nil, err
		}

		err = l.commit(ctx, op, func(ctx context.Context) error {
			return l.store.CompareAndSwap(ctx, current.Version, next, evt)
		})
		switch {
		case err == nil:
			l.notify()
			return next, nil
		case errors.Is(err, sentinel.ErrConflict):
			l.metrics.IncrementCASConflict(op)
			continue
		case errors.Is(err, sentinel.ErrNotFound):
			err = dErrors.New(dErrors.CodeNotFound, "record not found")
		default:
			err = l.translateStorage(err, "failed to commit record")
		}
		l.reject(ctx, rejected, fp, actor, err)
		return nil, err
	}

	err = dErrors.New(dErrors.CodeContention, "too many concurrent updates, retry later")
	l.reject(ctx, rejected, fp, actor, err)
	return nil, err
}

func (l *Ledger) load(ctx context.Context, op string, fp domain.Fingerprint) (*models.Record, error) {
	var rec *models.Record
	err := l.retryStorage(ctx, op, func(ctx context.Context) error {
		var ferr error
		rec, ferr = l.store.FindByFingerprint(ctx, fp)
		return ferr
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, l.translateStorage(err, "failed to load record")
	}
	return rec, nil
}

// commit runs a write on a context detached from caller cancellation so a
// decided write is never abandoned halfway. The commit timeout still bounds it.
func (l *Ledger) commit(ctx context.Context, op string, write func(context.Context) error) error {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.commitTimeout)
	defer cancel()
	return l.retryStorage(commitCtx, op, write)
}

// retryStorage retries fn while the store reports itself unavailable.
func (l *Ledger) retryStorage(ctx context.Context, op string, fn func(context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = l.storageRetryBase
	policy.MaxInterval = l.storageRetryBase * 20
	policy.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		err := fn(ctx)
		if err == nil || errors.Is(err, sentinel.ErrUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(l.storageRetries)), ctx),
		func(err error, wait time.Duration) {
			l.metrics.IncrementStorageRetry(op)
			l.logger.WarnContext(ctx, "storage unavailable, retrying",
				"operation", op,
				"wait", wait,
				"error", err,
			)
		})
}

func (l *Ledger) translateStorage(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "storage unavailable")
	case errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request cancelled")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

// reject records a refused write on the audit trail. Success entries come
// from the event log so they are not emitted here.
func (l *Ledger) reject(ctx context.Context, action audit.Action, fp domain.Fingerprint, actor domain.Identity, err error) {
	code := dErrors.CodeOf(err)
	l.logger.InfoContext(ctx, "ledger write rejected",
		"event", string(action),
		"log_type", "audit",
		"request_id", requestcontext.RequestID(ctx),
		"actor", actor.String(),
		"fingerprint", fp.String(),
		"reason", string(code),
	)
	if l.auditor == nil {
		return
	}
	l.auditor.Emit(ctx, audit.Entry{
		Action:      action,
		Outcome:     audit.OutcomeFailure,
		Actor:       actor,
		Fingerprint: fp,
		Reason:      string(code),
		RequestID:   requestcontext.RequestID(ctx),
		ClientIP:    requestcontext.ClientIP(ctx),
		Client:      requestcontext.Client(ctx),
	})
}

func (l *Ledger) notify() {
	if l.notifier != nil {
		l.notifier.Notify()
	}
}

// begin opens a span and returns a finisher that records the outcome on the
// span and in metrics.
func (l *Ledger) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := l.tracer.Start(ctx, "registry.Ledger."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = string(dErrors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		l.metrics.ObserveOperation(op, outcome, start)
	}
}
