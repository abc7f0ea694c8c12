package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "docproof/pkg/domain-errors"
)

const (
	helloSHA256    = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	helloKeccak256 = "1c8aff950685c2ed4bc3174f3472287b56d9517b9c948127319a09a7a36deac8"
)

func TestParseFingerprint(t *testing.T) {
	valid := strings.Repeat("ab", 32)

	t.Run("accepts lowercase hex", func(t *testing.T) {
		fp, err := ParseFingerprint(valid)
		require.NoError(t, err)
		assert.Equal(t, Fingerprint(valid), fp)
	})

	t.Run("normalizes case", func(t *testing.T) {
		fp, err := ParseFingerprint(strings.ToUpper(valid))
		require.NoError(t, err)
		assert.Equal(t, Fingerprint(valid), fp)
	})

	t.Run("mixed case inputs collide", func(t *testing.T) {
		a, err := ParseFingerprint(strings.Repeat("aB", 32))
		require.NoError(t, err)
		b, err := ParseFingerprint(strings.Repeat("Ab", 32))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	rejected := map[string]string{
		"empty":           "",
		"63 chars":        valid[:63],
		"65 chars":        valid + "a",
		"non-hex":         strings.Repeat("zz", 32),
		"0x prefix":       "0x" + valid[:62],
		"inner space":     valid[:30] + " " + valid[31:],
		"trailing space":  valid + " ",
		"leading space":   " " + valid,
		"trailing eol":    valid + "\n",
		"leading tab":     "\t" + valid,
		"unicode digit":   valid[:63] + "٣",
		"sql-ish garbage": "'; DROP TABLE records;--",
	}
	for name, input := range rejected {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := ParseFingerprint(input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidFingerprint))
		})
	}
}

func TestDeriveFingerprint(t *testing.T) {
	fp := DeriveFingerprint([]byte("hello"))
	assert.Equal(t, Fingerprint(helloSHA256), fp)

	parsed, err := ParseFingerprint(fp.String())
	require.NoError(t, err)
	assert.Equal(t, fp, parsed)

	assert.Equal(t, fp, DeriveFingerprint([]byte("hello")), "derivation is deterministic")
	assert.NotEqual(t, fp, DeriveFingerprint([]byte("hello ")))
}

func TestDeriveFingerprintWith(t *testing.T) {
	assert.Equal(t, Fingerprint(helloSHA256), DeriveFingerprintWith(HashSHA256, []byte("hello")))
	assert.Equal(t, Fingerprint(helloKeccak256), DeriveFingerprintWith(HashKeccak256, []byte("hello")))

	_, err := ParseFingerprint(DeriveFingerprintWith(HashKeccak256, []byte("x")).String())
	assert.NoError(t, err)
}

func TestParseHashAlgorithm(t *testing.T) {
	alg, err := ParseHashAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, HashSHA256, alg)

	alg, err = ParseHashAlgorithm("KECCAK256")
	require.NoError(t, err)
	assert.Equal(t, HashKeccak256, alg)

	_, err = ParseHashAlgorithm("md5")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestParseIdentity(t *testing.T) {
	id, err := ParseIdentity("alice")
	require.NoError(t, err)
	assert.Equal(t, Identity("alice"), id)

	id, err = ParseIdentity("0xAbC with inner space")
	require.NoError(t, err)
	assert.Equal(t, Identity("0xAbC with inner space"), id, "identities are opaque")

	for _, raw := range []string{"", "   ", " alice", "alice ", "\talice\n"} {
		_, err := ParseIdentity(raw)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "%q", raw)
	}
}
