// Package index maintains the provenance index: an eventually consistent
// projection of the ledger answering "what does this owner hold" and "what
// did this issuer register". It is fed only by ledger events and never
// writes back to the ledger.
package index

import (
	"context"
	"errors"
	"log/slog"

	idxmodels "docproof/internal/index/models"
	"docproof/internal/registry/models"
	"docproof/pkg/domain"
	dErrors "docproof/pkg/domain-errors"
	"docproof/pkg/platform/sentinel"
)

// Store is an index backend. Apply must be atomic per event and discard any
// event whose version is not newer than the entry's.
type Store interface {
	Apply(ctx context.Context, evt models.Event) (bool, error)
	ByOwner(ctx context.Context, owner domain.Identity) ([]domain.Fingerprint, error)
	ByIssuer(ctx context.Context, issuer domain.Identity) ([]domain.Fingerprint, error)
	History(ctx context.Context, owner domain.Identity) ([]domain.Fingerprint, error)
	Entry(ctx context.Context, fp domain.Fingerprint) (*idxmodels.Entry, error)
	Reset(ctx context.Context) error
}

// EventSource is the ledger event log, read for rebuilds and reconciliation.
type EventSource interface {
	ReadFrom(ctx context.Context, afterSeq int64, limit int) ([]models.Event, error)
}

const rebuildPage = 1000

type Index struct {
	store   Store
	source  EventSource
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Index)

func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) {
		i.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(i *Index) {
		i.metrics = m
	}
}

// WithEventSource lets Reconcile replay missed events from the ledger log.
// Without it Reconcile is a no-op and the notifier alone catches the index up.
func WithEventSource(src EventSource) Option {
	return func(i *Index) {
		i.source = src
	}
}

func New(store Store, opts ...Option) *Index {
	i := &Index{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = slog.New(slog.DiscardHandler)
	}
	return i
}

// Name identifies the index as a notifier consumer.
func (i *Index) Name() string { return "index" }

// Handle lets the notifier drive the index.
func (i *Index) Handle(ctx context.Context, evt models.Event) error {
	_, err := i.Apply(ctx, evt)
	return err
}

// Apply folds one event into the index. It reports false when the event was
// already reflected (same or older version).
func (i *Index) Apply(ctx context.Context, evt models.Event) (bool, error) {
	applied, err := i.store.Apply(ctx, evt)
	if err != nil {
		return false, err
	}
	i.metrics.observeApply(applied)
	if !applied {
		i.logger.DebugContext(ctx, "index discarded stale event",
			"fingerprint", evt.Fingerprint.String(),
			"version", evt.Version,
			"sequence", evt.Sequence,
		)
	}
	return applied, nil
}

// QueryByOwner lists fingerprints currently owned by owner, oldest association first.
func (i *Index) QueryByOwner(ctx context.Context, owner domain.Identity) ([]domain.Fingerprint, error) {
	return i.store.ByOwner(ctx, owner)
}

// QueryByIssuer lists fingerprints registered by issuer.
func (i *Index) QueryByIssuer(ctx context.Context, issuer domain.Identity) ([]domain.Fingerprint, error) {
	return i.store.ByIssuer(ctx, issuer)
}

// OwnershipHistory lists fingerprints owner holds now or held at any point.
func (i *Index) OwnershipHistory(ctx context.Context, owner domain.Identity) ([]domain.Fingerprint, error) {
	return i.store.History(ctx, owner)
}

func (i *Index) Entry(ctx context.Context, fp domain.Fingerprint) (*idxmodels.Entry, error) {
	e, err := i.store.Entry(ctx, fp)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "fingerprint not indexed")
	}
	return e, err
}

// Reconcile catches the entry for rec up with the ledger by replaying the
// events for rec's fingerprint that the index has not applied yet. Every
// intermediate owner lands in the history mapping, so a reconciled index
// stays identical to one rebuilt from genesis. It reports whether any event
// was applied.
func (i *Index) Reconcile(ctx context.Context, rec *models.Record) (bool, error) {
	var after int64
	entry, err := i.store.Entry(ctx, rec.Fingerprint)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
	case err != nil:
		return false, err
	case !entry.StaleAgainst(rec):
		return false, nil
	default:
		after = entry.Sequence
	}
	if i.source == nil {
		i.logger.DebugContext(ctx, "index reconcile skipped, no event source",
			"fingerprint", rec.Fingerprint.String(),
		)
		return false, nil
	}

	applied := 0
	for {
		events, err := i.source.ReadFrom(ctx, after, rebuildPage)
		if err != nil {
			return applied > 0, err
		}
		for _, evt := range events {
			after = evt.Sequence
			if evt.Fingerprint != rec.Fingerprint {
				continue
			}
			ok, err := i.store.Apply(ctx, evt)
			if err != nil {
				return applied > 0, err
			}
			if ok {
				applied++
			}
			if evt.Version >= rec.Version {
				return i.reconciled(ctx, rec, applied), nil
			}
		}
		if len(events) < rebuildPage {
			return i.reconciled(ctx, rec, applied), nil
		}
	}
}

func (i *Index) reconciled(ctx context.Context, rec *models.Record, applied int) bool {
	if applied == 0 {
		return false
	}
	i.metrics.incReconciled()
	i.logger.InfoContext(ctx, "index entry reconciled from ledger",
		"fingerprint", rec.Fingerprint.String(),
		"version", rec.Version,
		"events", applied,
	)
	return true
}

// Rebuild resets the index and replays the log from genesis. It returns how
// many events were replayed.
func (i *Index) Rebuild(ctx context.Context, source EventSource) (int, error) {
	if err := i.store.Reset(ctx); err != nil {
		return 0, err
	}
	var after int64
	replayed := 0
	for {
		events, err := source.ReadFrom(ctx, after, rebuildPage)
		if err != nil {
			return replayed, err
		}
		for _, evt := range events {
			if _, err := i.Apply(ctx, evt); err != nil {
				return replayed, err
			}
			after = evt.Sequence
			replayed++
		}
		if len(events) < rebuildPage {
			break
		}
	}
	i.metrics.incRebuilds()
	i.logger.InfoContext(ctx, "index rebuilt", "events", replayed, "sequence", after)
	return replayed, nil
}
