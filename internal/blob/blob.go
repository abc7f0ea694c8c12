// Package blob stores document content under content-addressed references of
// the form "sha256:<hex>". The registry keeps only the reference; a blob can
// be re-fetched and re-hashed to prove it matches the registered fingerprint.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	dErrors "docproof/pkg/domain-errors"
)

const refPrefix = "sha256:"

// Store is a content-addressed blob store. Storing the same bytes twice
// returns the same reference.
type Store interface {
	Store(ctx context.Context, data []byte) (string, error)
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// RefFor returns the reference data would be stored under.
func RefFor(data []byte) string {
	sum := sha256.Sum256(data)
	return refPrefix + hex.EncodeToString(sum[:])
}

// parseRef returns the hex digest of ref.
func parseRef(ref string) (string, error) {
	digest, ok := strings.CutPrefix(ref, refPrefix)
	if !ok || len(digest) != sha256.Size*2 {
		return "", dErrors.New(dErrors.CodeValidation, "invalid blob reference")
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "invalid blob reference")
	}
	return strings.ToLower(digest), nil
}
