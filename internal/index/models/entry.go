package models

import (
	"docproof/internal/registry/models"
	"docproof/pkg/domain"
)

// Entry is the index's derived copy of a record. It may lag the ledger but
// never runs ahead of it.
type Entry struct {
	Fingerprint domain.Fingerprint
	Owner       domain.Identity
	Issuer      domain.Identity
	MetadataRef string
	Active      bool
	// Version is the record version of the last applied event.
	Version int64
	// Sequence is the log position of the last applied event.
	Sequence int64
}

// StaleAgainst reports whether rec carries newer state than the entry.
func (e *Entry) StaleAgainst(rec *models.Record) bool {
	return e == nil || rec.Version > e.Version
}

// Matches reports whether the entry agrees with rec on every indexed field.
func (e *Entry) Matches(rec *models.Record) bool {
	return e != nil &&
		e.Fingerprint == rec.Fingerprint &&
		e.Owner == rec.Owner &&
		e.Issuer == rec.Issuer &&
		e.Active == rec.Active &&
		e.Version == rec.Version
}
