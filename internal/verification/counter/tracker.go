package counter

import (
	"context"
	"log/slog"

	"docproof/pkg/domain"
	"docproof/pkg/platform/circuit"
)

// Tracker writes to a primary Counter and falls back to a secondary while
// the primary's circuit is open. Counts taken during an outage stay in the
// fallback and are not merged back.
type Tracker struct {
	primary  Counter
	fallback Counter
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewTracker(primary, fallback Counter, breaker *circuit.Breaker, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

func (t *Tracker) Increment(ctx context.Context, fp domain.Fingerprint) error {
	return t.route(ctx, func(c Counter) error { return c.Increment(ctx, fp) })
}

func (t *Tracker) Count(ctx context.Context, fp domain.Fingerprint) (int64, error) {
	var n int64
	err := t.route(ctx, func(c Counter) error {
		var err error
		n, err = c.Count(ctx, fp)
		return err
	})
	return n, err
}

func (t *Tracker) Total(ctx context.Context) (int64, error) {
	var n int64
	err := t.route(ctx, func(c Counter) error {
		var err error
		n, err = c.Total(ctx)
		return err
	})
	return n, err
}

// route always tries the primary so an open breaker can close again after
// enough consecutive successes. Once open, failures go to the fallback.
func (t *Tracker) route(ctx context.Context, call func(Counter) error) error {
	err := call(t.primary)
	if err == nil {
		if _, change := t.breaker.RecordSuccess(); change.Closed {
			t.logger.InfoContext(ctx, "verification counter recovered", "breaker", t.breaker.Name())
		}
		return nil
	}

	useFallback, change := t.breaker.RecordFailure()
	if change.Opened {
		t.logger.WarnContext(ctx, "verification counter degraded to fallback",
			"breaker", t.breaker.Name(),
			"error", err,
		)
	}
	if !useFallback {
		return err
	}
	return call(t.fallback)
}
