package domain

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	dErrors "docproof/pkg/domain-errors"
)

// HashAlgorithm selects how fingerprints are derived from document content.
// Both supported algorithms produce 32-byte digests, so the wire format is the same.
type HashAlgorithm string

const (
	HashSHA256    HashAlgorithm = "sha256"
	HashKeccak256 HashAlgorithm = "keccak256"
)

// ParseHashAlgorithm accepts the configured algorithm name. Empty means sha256.
func ParseHashAlgorithm(raw string) (HashAlgorithm, error) {
	switch HashAlgorithm(strings.ToLower(strings.TrimSpace(raw))) {
	case "", HashSHA256:
		return HashSHA256, nil
	case HashKeccak256:
		return HashKeccak256, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unsupported hash algorithm: "+raw)
	}
}

// DeriveFingerprintWith derives a fingerprint using alg. Keccak256 is the
// legacy (pre-NIST) variant used by EVM chains.
func DeriveFingerprintWith(alg HashAlgorithm, content []byte) Fingerprint {
	if alg != HashKeccak256 {
		return DeriveFingerprint(content)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(content)
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
