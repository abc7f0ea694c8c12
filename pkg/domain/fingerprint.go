// Package domain holds the value types shared by every layer of the registry:
// document fingerprints, caller identities and the hash algorithms used to
// derive fingerprints from content.
//
// Parse functions are trust-boundary validators. Anything arriving from HTTP,
// Kafka or a store is parsed once and carried as a typed value afterwards.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	dErrors "docproof/pkg/domain-errors"
)

// FingerprintLength is the number of hex characters in a fingerprint.
const FingerprintLength = 64

var fingerprintPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Fingerprint is the canonical lowercase hex digest identifying a document.
type Fingerprint string

func (f Fingerprint) String() string {
	return string(f)
}

// IsZero reports whether the fingerprint is unset.
func (f Fingerprint) IsZero() bool {
	return f == ""
}

// Short returns a log-friendly prefix of the fingerprint.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// ParseFingerprint lowercases raw and validates it. Inputs differing only in
// letter case parse to the same fingerprint; any other character, surrounding
// whitespace included, is rejected.
func ParseFingerprint(raw string) (Fingerprint, error) {
	normalized := strings.ToLower(raw)
	if !fingerprintPattern.MatchString(normalized) {
		return "", dErrors.New(dErrors.CodeInvalidFingerprint, "fingerprint must be 64 hexadecimal characters")
	}
	return Fingerprint(normalized), nil
}

// MustParseFingerprint panics on invalid input. Intended for tests and constants.
func MustParseFingerprint(raw string) Fingerprint {
	fp, err := ParseFingerprint(raw)
	if err != nil {
		panic(err)
	}
	return fp
}

// DeriveFingerprint returns the SHA-256 fingerprint of content.
func DeriveFingerprint(content []byte) Fingerprint {
	sum := sha256.Sum256(content)
	return Fingerprint(hex.EncodeToString(sum[:]))
}
