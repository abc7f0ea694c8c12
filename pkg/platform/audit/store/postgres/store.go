package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"docproof/pkg/domain"
	audit "docproof/pkg/platform/audit"
	txcontext "docproof/pkg/platform/tx"
)

// Store persists audit entries in the audit_entries table. Success entries
// carry the ledger event ID, and a unique index on it makes redelivery a no-op.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	query := `
		INSERT INTO audit_entries (
			id, event_id, timestamp, action, outcome, actor, fingerprint,
			owner, previous_owner, issuer, version, reason,
			request_id, client_ip, client
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT DO NOTHING
	`
	var eventID *uuid.UUID
	if entry.EventID != uuid.Nil {
		eventID = &entry.EventID
	}
	_, err := s.execer(ctx).ExecContext(ctx, query,
		entry.ID,
		eventID,
		entry.Timestamp,
		string(entry.Action),
		string(entry.Outcome),
		entry.Actor.String(),
		entry.Fingerprint.String(),
		entry.Owner.String(),
		entry.PreviousOwner.String(),
		entry.Issuer.String(),
		entry.Version,
		entry.Reason,
		entry.RequestID,
		entry.ClientIP,
		entry.Client,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, event_id, timestamp, action, outcome, actor, fingerprint,
		   owner, previous_owner, issuer, version, reason,
		   request_id, client_ip, client
	FROM audit_entries
`

func (s *Store) ListByFingerprint(ctx context.Context, fp domain.Fingerprint) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE fingerprint = $1 ORDER BY timestamp ASC, id ASC`, fp.String())
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var (
			e                                       audit.Entry
			eventID                                 uuid.NullUUID
			action, outcome                         string
			actor, fp, owner, previousOwner, issuer string
		)
		if err := rows.Scan(
			&e.ID, &eventID, &e.Timestamp, &action, &outcome, &actor, &fp,
			&owner, &previousOwner, &issuer, &e.Version, &e.Reason,
			&e.RequestID, &e.ClientIP, &e.Client,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if eventID.Valid {
			e.EventID = eventID.UUID
		}
		e.Action = audit.Action(action)
		e.Outcome = audit.Outcome(outcome)
		e.Actor = domain.Identity(actor)
		e.Fingerprint = domain.Fingerprint(fp)
		e.Owner = domain.Identity(owner)
		e.PreviousOwner = domain.Identity(previousOwner)
		e.Issuer = domain.Identity(issuer)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
