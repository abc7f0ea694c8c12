package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"docproof/pkg/domain"
)

// Action names what happened to a record. Successful mutations mirror the
// ledger's domain events; rejected writes get their own actions so an auditor
// can see attempts that never reached the ledger.
type Action string

const (
	ActionRecordCreated     Action = "record_created"
	ActionRecordRevoked     Action = "record_revoked"
	ActionRecordTransferred Action = "record_transferred"

	ActionCreateRejected   Action = "create_rejected"
	ActionRevokeRejected   Action = "revoke_rejected"
	ActionTransferRejected Action = "transfer_rejected"
)

// Outcome distinguishes committed changes from rejected attempts.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Entry is one audit log line. Keep it transport-agnostic so stores and sinks
// can fan out.
type Entry struct {
	ID        uuid.UUID
	Timestamp time.Time
	Action    Action
	Outcome   Outcome

	Actor         domain.Identity
	Fingerprint   domain.Fingerprint
	Owner         domain.Identity
	PreviousOwner domain.Identity
	Issuer        domain.Identity
	Version       int64

	// EventID links success entries to the ledger event that produced them.
	// Redelivered events carry the same EventID, which stores use to dedupe.
	EventID uuid.UUID
	// Reason is the error code of a rejected attempt.
	Reason string

	RequestID string
	ClientIP  string
	Client    string
}

// Store persists audit entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByFingerprint(ctx context.Context, fp domain.Fingerprint) ([]Entry, error)
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}
