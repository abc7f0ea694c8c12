package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docproof/pkg/domain"
	audit "docproof/pkg/platform/audit"
)

func TestStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db)
	entry := audit.Entry{
		ID:          uuid.New(),
		EventID:     uuid.New(),
		Timestamp:   time.Now().UTC(),
		Action:      audit.ActionRecordRevoked,
		Outcome:     audit.OutcomeSuccess,
		Actor:       "issuer-1",
		Fingerprint: domain.DeriveFingerprint([]byte("doc")),
		Owner:       "alice",
		Issuer:      "issuer-1",
		Version:     1,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WithArgs(entry.ID, &entry.EventID, entry.Timestamp, "record_revoked", "success", "issuer-1",
			entry.Fingerprint.String(), "alice", "", "issuer-1", int64(1), "", "", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Append(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListByFingerprint(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db)
	fp := domain.DeriveFingerprint([]byte("doc"))
	id := uuid.New()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "event_id", "timestamp", "action", "outcome", "actor", "fingerprint",
		"owner", "previous_owner", "issuer", "version", "reason", "request_id", "client_ip", "client",
	}).AddRow(id.String(), nil, now, "transfer_rejected", "failure", "mallory", fp.String(),
		"", "", "", int64(0), "unauthorized", "req-1", "10.0.0.1", "curl 8.0")

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_entries")).
		WithArgs(fp.String()).
		WillReturnRows(rows)

	entries, err := store.ListByFingerprint(context.Background(), fp)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionTransferRejected, entries[0].Action)
	assert.Equal(t, audit.OutcomeFailure, entries[0].Outcome)
	assert.Equal(t, domain.Identity("mallory"), entries[0].Actor)
	assert.Equal(t, uuid.Nil, entries[0].EventID)
	assert.Equal(t, "unauthorized", entries[0].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}
