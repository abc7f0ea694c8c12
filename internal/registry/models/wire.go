package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docproof/pkg/domain"
)

// eventEnvelope is the JSON form of an Event on Kafka and in the embedded
// ledger file. Field names are part of the wire contract.
type eventEnvelope struct {
	ID            uuid.UUID `json:"id"`
	Sequence      int64     `json:"sequence"`
	Type          EventType `json:"type"`
	Fingerprint   string    `json:"fingerprint"`
	Actor         string    `json:"actor"`
	Owner         string    `json:"owner"`
	PreviousOwner string    `json:"previous_owner,omitempty"`
	Issuer        string    `json:"issuer"`
	MetadataRef   string    `json:"metadata_ref,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Version       int64     `json:"version"`
}

// MarshalEvent encodes evt for transport or storage.
func MarshalEvent(evt Event) ([]byte, error) {
	return json.Marshal(eventEnvelope{
		ID:            evt.ID,
		Sequence:      evt.Sequence,
		Type:          evt.Type,
		Fingerprint:   evt.Fingerprint.String(),
		Actor:         evt.Actor.String(),
		Owner:         evt.Owner.String(),
		PreviousOwner: evt.PreviousOwner.String(),
		Issuer:        evt.Issuer.String(),
		MetadataRef:   evt.MetadataRef,
		Timestamp:     evt.Timestamp,
		Version:       evt.Version,
	})
}

// UnmarshalEvent decodes an event and re-validates its fingerprint, since
// the bytes may come from outside the process.
func UnmarshalEvent(raw []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	fp, err := domain.ParseFingerprint(env.Fingerprint)
	if err != nil {
		return Event{}, fmt.Errorf("decode event %s: %w", env.ID, err)
	}
	switch env.Type {
	case EventCreated, EventRevoked, EventTransferred:
	default:
		return Event{}, fmt.Errorf("decode event %s: unknown type %q", env.ID, env.Type)
	}
	return Event{
		ID:            env.ID,
		Sequence:      env.Sequence,
		Type:          env.Type,
		Fingerprint:   fp,
		Actor:         domain.Identity(env.Actor),
		Owner:         domain.Identity(env.Owner),
		PreviousOwner: domain.Identity(env.PreviousOwner),
		Issuer:        domain.Identity(env.Issuer),
		MetadataRef:   env.MetadataRef,
		Timestamp:     env.Timestamp.UTC(),
		Version:       env.Version,
	}, nil
}
