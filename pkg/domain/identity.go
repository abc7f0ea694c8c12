package domain

import (
	"strings"
	"unicode"

	dErrors "docproof/pkg/domain-errors"
)

// Identity is an opaque caller or owner identifier supplied by the identity
// layer. The registry never interprets it beyond equality.
type Identity string

func (i Identity) String() string {
	return string(i)
}

// IsZero reports whether the identity is empty.
func (i Identity) IsZero() bool {
	return i == ""
}

// ParseIdentity rejects empty values and values with surrounding whitespace.
// It never rewrites raw, so two identities are equal only when byte-equal.
func ParseIdentity(raw string) (Identity, error) {
	if strings.TrimSpace(raw) == "" {
		return "", dErrors.New(dErrors.CodeValidation, "identity is required")
	}
	if strings.TrimFunc(raw, unicode.IsSpace) != raw {
		return "", dErrors.New(dErrors.CodeValidation, "identity must not have surrounding whitespace")
	}
	return Identity(raw), nil
}
