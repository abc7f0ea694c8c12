// Package postgres is the PostgreSQL ledger backend.
//
// Each write is one transaction touching the record row and the
// registry_events outbox table. Create relies on the primary key
// (ON CONFLICT DO NOTHING) and mutations on a version predicate, so
// different fingerprints never wait on each other.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	pgplatform "docproof/internal/platform/postgres"
	"docproof/internal/registry/models"
	"docproof/pkg/domain"
	"docproof/pkg/platform/sentinel"
	txcontext "docproof/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// classify marks connectivity failures as sentinel.ErrUnavailable so the
// ledger can retry them.
func classify(op string, err error) error {
	if pgplatform.Unavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

const insertEventSQL = `
	INSERT INTO registry_events (
		id, type, fingerprint, actor, owner, previous_owner,
		issuer, metadata_ref, occurred_at, version
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

func appendEvent(ctx context.Context, q dbQuerier, evt models.Event) error {
	_, err := q.ExecContext(ctx, insertEventSQL,
		evt.ID,
		string(evt.Type),
		evt.Fingerprint.String(),
		evt.Actor.String(),
		evt.Owner.String(),
		evt.PreviousOwner.String(),
		evt.Issuer.String(),
		evt.MetadataRef,
		evt.Timestamp,
		evt.Version,
	)
	return err
}

func (s *Store) Insert(ctx context.Context, rec *models.Record, evt models.Event) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO registry_records (
				fingerprint, metadata_ref, owner, issuer, created_at, active, version
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (fingerprint) DO NOTHING
		`,
			rec.Fingerprint.String(),
			rec.MetadataRef,
			rec.Owner.String(),
			rec.Issuer.String(),
			rec.CreatedAt,
			rec.Active,
			rec.Version,
		)
		if err != nil {
			return classify("insert record", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return classify("insert record rows affected", err)
		}
		if affected == 0 {
			return sentinel.ErrAlreadyUsed
		}
		if err := appendEvent(ctx, tx, evt); err != nil {
			return classify("append created event", err)
		}
		return nil
	})
}

const selectRecordSQL = `
	SELECT fingerprint, metadata_ref, owner, issuer, created_at, active, version
	FROM registry_records
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rec               models.Record
		fp, owner, issuer string
	)
	if err := row.Scan(&fp, &rec.MetadataRef, &owner, &issuer, &rec.CreatedAt, &rec.Active, &rec.Version); err != nil {
		return nil, err
	}
	rec.Fingerprint = domain.Fingerprint(fp)
	rec.Owner = domain.Identity(owner)
	rec.Issuer = domain.Identity(issuer)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func (s *Store) FindByFingerprint(ctx context.Context, fp domain.Fingerprint) (*models.Record, error) {
	rec, err := scanRecord(s.querier(ctx).QueryRowContext(ctx, selectRecordSQL+` WHERE fingerprint = $1`, fp.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, classify("find record", err)
	}
	return rec, nil
}

func (s *Store) FindMany(ctx context.Context, fps []domain.Fingerprint) (map[domain.Fingerprint]*models.Record, error) {
	out := make(map[domain.Fingerprint]*models.Record, len(fps))
	if len(fps) == 0 {
		return out, nil
	}
	keys := make([]string, len(fps))
	for i, fp := range fps {
		keys[i] = fp.String()
	}
	rows, err := s.querier(ctx).QueryContext(ctx, selectRecordSQL+` WHERE fingerprint = ANY($1)`, pq.Array(keys))
	if err != nil {
		return nil, classify("find records", err)
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, classify("scan record", err)
		}
		out[rec.Fingerprint] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate records", err)
	}
	return out, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, expectedVersion int64, rec *models.Record, evt models.Event) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE registry_records
			SET owner = $1, active = $2, version = $3
			WHERE fingerprint = $4 AND version = $5
		`,
			rec.Owner.String(),
			rec.Active,
			rec.Version,
			rec.Fingerprint.String(),
			expectedVersion,
		)
		if err != nil {
			return classify("update record", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return classify("update record rows affected", err)
		}
		if affected == 0 {
			var exists bool
			err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM registry_records WHERE fingerprint = $1)`,
				rec.Fingerprint.String(),
			).Scan(&exists)
			if err != nil {
				return classify("check record existence", err)
			}
			if !exists {
				return sentinel.ErrNotFound
			}
			return sentinel.ErrConflict
		}
		if err := appendEvent(ctx, tx, evt); err != nil {
			return classify("append event", err)
		}
		return nil
	})
}

func (s *Store) List(ctx context.Context) ([]*models.Record, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, selectRecordSQL+` ORDER BY fingerprint`)
	if err != nil {
		return nil, classify("list records", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, classify("scan record", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate records", err)
	}
	return out, nil
}

// Count is the number of records ever created. Rows are never deleted, so the
// table size is exact.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.querier(ctx).QueryRowContext(ctx, `SELECT count(*) FROM registry_records`).Scan(&n); err != nil {
		return 0, classify("count records", err)
	}
	return n, nil
}

// ReadFrom returns committed events after afterSeq. Sequence values are handed
// out before commit, so a transaction still in flight may hold a lower number
// than one already visible. Rows written by transactions newer than the
// snapshot's xmin are held back until every older writer has finished,
// which keeps a cursor from skipping past them.
func (s *Store) ReadFrom(ctx context.Context, afterSeq int64, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT sequence, id, type, fingerprint, actor, owner, previous_owner,
			   issuer, metadata_ref, occurred_at, version
		FROM registry_events
		WHERE sequence > $1
		  AND tx_id < pg_snapshot_xmin(pg_current_snapshot())
		ORDER BY sequence
		LIMIT $2
	`, afterSeq, limit)
	if err != nil {
		return nil, classify("read events", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var (
			evt                                      models.Event
			typ, fp, actor, owner, prevOwner, issuer string
		)
		if err := rows.Scan(&evt.Sequence, &evt.ID, &typ, &fp, &actor, &owner, &prevOwner,
			&issuer, &evt.MetadataRef, &evt.Timestamp, &evt.Version); err != nil {
			return nil, classify("scan event", err)
		}
		evt.Type = models.EventType(typ)
		evt.Fingerprint = domain.Fingerprint(fp)
		evt.Actor = domain.Identity(actor)
		evt.Owner = domain.Identity(owner)
		evt.PreviousOwner = domain.Identity(prevOwner)
		evt.Issuer = domain.Identity(issuer)
		evt.Timestamp = evt.Timestamp.UTC()
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate events", err)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
