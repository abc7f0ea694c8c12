package verification

import (
	"docproof/internal/registry/models"
	"docproof/pkg/domain"
)

// Reason explains a negative verdict.
type Reason string

const (
	ReasonNone                     Reason = ""
	ReasonInvalidFingerprintFormat Reason = "InvalidFingerprintFormat"
	ReasonNotRegistered            Reason = "NotRegistered"
	ReasonRevoked                  Reason = "Revoked"
)

// Result is a verification verdict. Record is set whenever the fingerprint
// is registered, including revoked records.
type Result struct {
	Input       string
	Fingerprint domain.Fingerprint
	Valid       bool
	Reason      Reason
	Record      *models.Record
}

// Stats summarizes registry usage.
type Stats struct {
	TotalRecords       int64
	TotalVerifications int64
}
