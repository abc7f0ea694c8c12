package models

import (
	"time"

	"github.com/google/uuid"

	"docproof/pkg/domain"
)

type EventType string

const (
	EventCreated     EventType = "created"
	EventRevoked     EventType = "revoked"
	EventTransferred EventType = "transferred"
)

// Event is a committed ledger change. Events are appended to the durable
// event log in the same atomic step as the record write that produced them.
//
// Sequence is assigned by the log and totally orders all events; Version is
// the record version after the change and orders events per fingerprint.
type Event struct {
	ID            uuid.UUID
	Sequence      int64
	Type          EventType
	Fingerprint   domain.Fingerprint
	Actor         domain.Identity
	Owner         domain.Identity
	PreviousOwner domain.Identity
	Issuer        domain.Identity
	MetadataRef   string
	Timestamp     time.Time
	Version       int64
}

// NewCreatedEvent describes the creation of rec by its issuer.
func NewCreatedEvent(rec *Record) Event {
	return Event{
		ID:          uuid.New(),
		Type:        EventCreated,
		Fingerprint: rec.Fingerprint,
		Actor:       rec.Issuer,
		Owner:       rec.Owner,
		Issuer:      rec.Issuer,
		MetadataRef: rec.MetadataRef,
		Timestamp:   rec.CreatedAt,
		Version:     rec.Version,
	}
}

// NewRevokedEvent describes a revoke already applied to rec.
func NewRevokedEvent(rec *Record, actor domain.Identity, at time.Time) Event {
	return Event{
		ID:          uuid.New(),
		Type:        EventRevoked,
		Fingerprint: rec.Fingerprint,
		Actor:       actor,
		Owner:       rec.Owner,
		Issuer:      rec.Issuer,
		Timestamp:   at.UTC(),
		Version:     rec.Version,
	}
}

// NewTransferredEvent describes a transfer already applied to rec.
func NewTransferredEvent(rec *Record, actor, previousOwner domain.Identity, at time.Time) Event {
	return Event{
		ID:            uuid.New(),
		Type:          EventTransferred,
		Fingerprint:   rec.Fingerprint,
		Actor:         actor,
		Owner:         rec.Owner,
		PreviousOwner: previousOwner,
		Issuer:        rec.Issuer,
		Timestamp:     at.UTC(),
		Version:       rec.Version,
	}
}
