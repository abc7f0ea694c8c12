// Package verification answers "is this document authentic" for third
// parties. Verdicts always come from the ledger; the index is consulted only
// for owner and issuer listings, which are cross-checked against the ledger
// before they are returned.
package verification

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"docproof/internal/registry/models"
	"docproof/internal/verification/counter"
	"docproof/pkg/domain"
	dErrors "docproof/pkg/domain-errors"
)

// Ledger is the authoritative read side of the registry.
type Ledger interface {
	Get(ctx context.Context, raw string) (*models.Record, error)
	GetMany(ctx context.Context, fps []domain.Fingerprint) (map[domain.Fingerprint]*models.Record, error)
	TotalCount(ctx context.Context) (int64, error)
}

// Index is the eventually consistent provenance index.
type Index interface {
	QueryByOwner(ctx context.Context, owner domain.Identity) ([]domain.Fingerprint, error)
	QueryByIssuer(ctx context.Context, issuer domain.Identity) ([]domain.Fingerprint, error)
	OwnershipHistory(ctx context.Context, owner domain.Identity) ([]domain.Fingerprint, error)
	Reconcile(ctx context.Context, rec *models.Record) (bool, error)
}

const (
	defaultBatchLimit = 100
	counterQueueSize  = 1024
	reconcileWorkers  = 4
)

type Service struct {
	ledger     Ledger
	index      Index
	counter    counter.Counter
	algorithm  domain.HashAlgorithm
	batchLimit int
	logger     *slog.Logger
	metrics    *Metrics

	increments chan domain.Fingerprint
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithCounter(c counter.Counter) Option {
	return func(s *Service) {
		s.counter = c
	}
}

// WithHashAlgorithm selects how VerifyContent derives fingerprints. It must
// match the algorithm used at registration.
func WithHashAlgorithm(alg domain.HashAlgorithm) Option {
	return func(s *Service) {
		s.algorithm = alg
	}
}

func WithBatchLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchLimit = n
		}
	}
}

func New(ledger Ledger, index Index, opts ...Option) (*Service, error) {
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if index == nil {
		return nil, errors.New("index is required")
	}
	s := &Service{
		ledger:     ledger,
		index:      index,
		counter:    counter.NewInMemory(),
		algorithm:  domain.HashSHA256,
		batchLimit: defaultBatchLimit,
		logger:     slog.New(slog.DiscardHandler),
		increments: make(chan domain.Fingerprint, counterQueueSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// Run applies queued verification count increments until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case fp := <-s.increments:
			if err := s.counter.Increment(ctx, fp); err != nil {
				s.metrics.incCounterFailure()
				s.logger.DebugContext(ctx, "verification count increment failed",
					"fingerprint", fp.String(),
					"error", err,
				)
			}
		}
	}
}

// Verify checks raw against the ledger. Malformed input yields a negative
// verdict without a ledger read; storage failures are errors, never verdicts.
func (s *Service) Verify(ctx context.Context, raw string) (*Result, error) {
	fp, err := domain.ParseFingerprint(raw)
	if err != nil {
		return s.verdict(&Result{Input: raw, Reason: ReasonInvalidFingerprintFormat}), nil
	}
	rec, err := s.ledger.Get(ctx, fp.String())
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return s.verdict(&Result{Input: raw, Fingerprint: fp, Reason: ReasonNotRegistered}), nil
		}
		return nil, err
	}
	return s.verdict(s.fromRecord(raw, rec)), nil
}

// VerifyContent derives the fingerprint of content and verifies it.
func (s *Service) VerifyContent(ctx context.Context, content []byte) (*Result, error) {
	fp := domain.DeriveFingerprintWith(s.algorithm, content)
	return s.Verify(ctx, fp.String())
}

// VerifyBatch verifies up to the batch limit of inputs with one ledger read.
// Results follow input order and duplicates get identical verdicts.
func (s *Service) VerifyBatch(ctx context.Context, raws []string) ([]Result, error) {
	if len(raws) == 0 {
		return []Result{}, nil
	}
	if len(raws) > s.batchLimit {
		return nil, dErrors.New(dErrors.CodeValidation, "too many fingerprints in one batch")
	}

	parsed := make([]domain.Fingerprint, len(raws))
	lookup := make([]domain.Fingerprint, 0, len(raws))
	seen := make(map[domain.Fingerprint]struct{}, len(raws))
	for i, raw := range raws {
		fp, err := domain.ParseFingerprint(raw)
		if err != nil {
			continue
		}
		parsed[i] = fp
		if _, dup := seen[fp]; !dup {
			seen[fp] = struct{}{}
			lookup = append(lookup, fp)
		}
	}

	records, err := s.ledger.GetMany(ctx, lookup)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(raws))
	for i, raw := range raws {
		fp := parsed[i]
		switch rec, ok := records[fp]; {
		case fp.IsZero():
			results[i] = Result{Input: raw, Reason: ReasonInvalidFingerprintFormat}
		case !ok:
			results[i] = Result{Input: raw, Fingerprint: fp, Reason: ReasonNotRegistered}
		default:
			results[i] = *s.fromRecord(raw, rec)
		}
		s.verdict(&results[i])
	}
	return results, nil
}

// ListByOwner returns the ledger records the index attributes to owner.
// Entries the ledger contradicts are dropped and reconciled.
func (s *Service) ListByOwner(ctx context.Context, raw string) ([]*models.Record, error) {
	owner, err := domain.ParseIdentity(raw)
	if err != nil {
		return nil, err
	}
	fps, err := s.index.QueryByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "index unavailable")
	}
	return s.crossCheck(ctx, "owner", fps, func(rec *models.Record) bool { return rec.Owner == owner })
}

// ListByIssuer returns the ledger records registered by issuer.
func (s *Service) ListByIssuer(ctx context.Context, raw string) ([]*models.Record, error) {
	issuer, err := domain.ParseIdentity(raw)
	if err != nil {
		return nil, err
	}
	fps, err := s.index.QueryByIssuer(ctx, issuer)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "index unavailable")
	}
	return s.crossCheck(ctx, "issuer", fps, func(rec *models.Record) bool { return rec.Issuer == issuer })
}

// OwnershipHistory returns every record owner holds or once held, with
// current ledger state.
func (s *Service) OwnershipHistory(ctx context.Context, raw string) ([]*models.Record, error) {
	owner, err := domain.ParseIdentity(raw)
	if err != nil {
		return nil, err
	}
	fps, err := s.index.OwnershipHistory(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "index unavailable")
	}
	return s.crossCheck(ctx, "history", fps, func(*models.Record) bool { return true })
}

func (s *Service) crossCheck(ctx context.Context, query string, fps []domain.Fingerprint, keep func(*models.Record) bool) ([]*models.Record, error) {
	if len(fps) == 0 {
		return []*models.Record{}, nil
	}
	records, err := s.ledger.GetMany(ctx, fps)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Record, 0, len(fps))
	var stale []*models.Record
	for _, fp := range fps {
		rec, ok := records[fp]
		if !ok {
			s.metrics.incStale(query)
			continue
		}
		if !keep(rec) {
			s.metrics.incStale(query)
			stale = append(stale, rec)
			continue
		}
		out = append(out, rec)
	}
	s.reconcile(ctx, stale)
	return out, nil
}

// reconcile refreshes stale index entries. Failures are logged only: the
// response is already correct and the notifier will catch the index up.
func (s *Service) reconcile(ctx context.Context, stale []*models.Record) {
	if len(stale) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileWorkers)
	for _, rec := range stale {
		g.Go(func() error {
			if _, err := s.index.Reconcile(gctx, rec); err != nil {
				s.logger.WarnContext(gctx, "index reconcile failed",
					"fingerprint", rec.Fingerprint.String(),
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Stats reports registry totals. Count backends are best-effort, so a
// counter failure degrades to zero instead of failing the call.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.ledger.TotalCount(gctx)
		stats.TotalRecords = n
		return err
	})
	g.Go(func() error {
		n, err := s.counter.Total(gctx)
		if err != nil {
			s.logger.WarnContext(gctx, "verification total unavailable", "error", err)
			return nil
		}
		stats.TotalVerifications = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &stats, nil
}

// VerificationCount reports how often raw was verified while registered.
func (s *Service) VerificationCount(ctx context.Context, raw string) (int64, error) {
	fp, err := domain.ParseFingerprint(raw)
	if err != nil {
		return 0, err
	}
	return s.counter.Count(ctx, fp)
}

func (s *Service) fromRecord(raw string, rec *models.Record) *Result {
	r := &Result{Input: raw, Fingerprint: rec.Fingerprint, Record: rec, Valid: rec.Active}
	if !rec.Active {
		r.Reason = ReasonRevoked
	}
	return r
}

// verdict records metrics and queues a count increment for registered
// fingerprints. The send never blocks.
func (s *Service) verdict(r *Result) *Result {
	s.metrics.observeVerdict(*r)
	if r.Record == nil {
		return r
	}
	select {
	case s.increments <- r.Fingerprint:
	default:
		s.metrics.incCounterDropped()
	}
	return r
}
