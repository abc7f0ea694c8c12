package models

import (
	"time"

	"docproof/pkg/domain"
	dErrors "docproof/pkg/domain-errors"
)

// Record is the authoritative provenance entry for one fingerprint.
//
// Fingerprint, Issuer and CreatedAt never change after creation. Active only
// moves from true to false. Version starts at 0 and increases by one on every
// mutation (transfer and revoke), which is what compare-and-swap and index
// staleness checks key on.
type Record struct {
	Fingerprint domain.Fingerprint
	MetadataRef string
	Owner       domain.Identity
	Issuer      domain.Identity
	CreatedAt   time.Time
	Active      bool
	Version     int64
}

// NewRecord builds a fresh active record at version 0.
func NewRecord(fp domain.Fingerprint, metadataRef string, owner, issuer domain.Identity, now time.Time) (*Record, error) {
	if fp.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidFingerprint, "fingerprint is required")
	}
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidOwner, "owner is required")
	}
	if issuer.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "issuer identity is required")
	}
	return &Record{
		Fingerprint: fp,
		MetadataRef: metadataRef,
		Owner:       owner,
		Issuer:      issuer,
		CreatedAt:   now.UTC(),
		Active:      true,
		Version:     0,
	}, nil
}

// Clone returns a copy safe to hand out of a store.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// CanRevoke checks revoke preconditions. Check order matters: a revoked record
// reports AlreadyRevoked to everyone, including callers without rights.
func (r *Record) CanRevoke(actor domain.Identity) error {
	if !r.Active {
		return dErrors.New(dErrors.CodeAlreadyRevoked, "record already revoked")
	}
	if actor.IsZero() || (actor != r.Issuer && actor != r.Owner) {
		return dErrors.New(dErrors.CodeUnauthorized, "only the issuer or owner may revoke")
	}
	return nil
}

// ApplyRevoke marks the record inactive. Call CanRevoke first.
func (r *Record) ApplyRevoke() {
	r.Active = false
	r.Version++
}

// CanTransfer checks transfer preconditions.
func (r *Record) CanTransfer(actor, newOwner domain.Identity) error {
	if !r.Active {
		return dErrors.New(dErrors.CodeInactiveRecord, "revoked records cannot be transferred")
	}
	if actor.IsZero() || actor != r.Owner {
		return dErrors.New(dErrors.CodeUnauthorized, "only the owner may transfer")
	}
	if newOwner.IsZero() {
		return dErrors.New(dErrors.CodeInvalidOwner, "new owner is required")
	}
	if newOwner == r.Owner {
		return dErrors.New(dErrors.CodeInvalidOwner, "new owner must differ from current owner")
	}
	return nil
}

// ApplyTransfer changes the owner and returns the previous one. Call CanTransfer first.
func (r *Record) ApplyTransfer(newOwner domain.Identity) domain.Identity {
	previous := r.Owner
	r.Owner = newOwner
	r.Version++
	return previous
}
