package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docproof/pkg/domain"
	dErrors "docproof/pkg/domain-errors"
)

var (
	fp  = domain.DeriveFingerprint([]byte("diploma.pdf"))
	now = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
)

func newActive(t *testing.T) *Record {
	t.Helper()
	rec, err := NewRecord(fp, "sha256:meta", "alice", "university", now)
	require.NoError(t, err)
	return rec
}

func TestNewRecord(t *testing.T) {
	rec := newActive(t)
	assert.True(t, rec.Active)
	assert.Equal(t, int64(0), rec.Version)
	assert.Equal(t, domain.Identity("university"), rec.Issuer)
	assert.Equal(t, now, rec.CreatedAt)

	_, err := NewRecord(fp, "m", "", "university", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidOwner))
}

func TestRevokeRules(t *testing.T) {
	t.Run("issuer may revoke", func(t *testing.T) {
		rec := newActive(t)
		require.NoError(t, rec.CanRevoke("university"))
		rec.ApplyRevoke()
		assert.False(t, rec.Active)
		assert.Equal(t, int64(1), rec.Version)
	})

	t.Run("owner may revoke", func(t *testing.T) {
		assert.NoError(t, newActive(t).CanRevoke("alice"))
	})

	t.Run("stranger may not", func(t *testing.T) {
		err := newActive(t).CanRevoke("mallory")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("already revoked wins over unauthorized", func(t *testing.T) {
		rec := newActive(t)
		rec.ApplyRevoke()
		err := rec.CanRevoke("mallory")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyRevoked))
	})
}

func TestTransferRules(t *testing.T) {
	t.Run("owner transfers", func(t *testing.T) {
		rec := newActive(t)
		require.NoError(t, rec.CanTransfer("alice", "bob"))
		prev := rec.ApplyTransfer("bob")
		assert.Equal(t, domain.Identity("alice"), prev)
		assert.Equal(t, domain.Identity("bob"), rec.Owner)
		assert.Equal(t, domain.Identity("university"), rec.Issuer)
		assert.Equal(t, int64(1), rec.Version)
	})

	cases := map[string]struct {
		prepare  func(*Record)
		actor    domain.Identity
		newOwner domain.Identity
		code     dErrors.Code
	}{
		"revoked record":   {func(r *Record) { r.ApplyRevoke() }, "alice", "bob", dErrors.CodeInactiveRecord},
		"issuer not owner": {nil, "university", "bob", dErrors.CodeUnauthorized},
		"empty new owner":  {nil, "alice", "", dErrors.CodeInvalidOwner},
		"same owner":       {nil, "alice", "alice", dErrors.CodeInvalidOwner},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := newActive(t)
			if tc.prepare != nil {
				tc.prepare(rec)
			}
			err := rec.CanTransfer(tc.actor, tc.newOwner)
			assert.True(t, dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func TestEventsCarryVersionAndIdentities(t *testing.T) {
	rec := newActive(t)
	created := NewCreatedEvent(rec)
	assert.Equal(t, EventCreated, created.Type)
	assert.Equal(t, int64(0), created.Version)
	assert.Equal(t, "sha256:meta", created.MetadataRef)

	prev := rec.ApplyTransfer("bob")
	transferred := NewTransferredEvent(rec, "alice", prev, now)
	assert.Equal(t, domain.Identity("alice"), transferred.PreviousOwner)
	assert.Equal(t, domain.Identity("bob"), transferred.Owner)
	assert.Equal(t, int64(1), transferred.Version)
	assert.NotEqual(t, created.ID, transferred.ID)
}

func TestUnmarshalEventRejectsForeignPayloads(t *testing.T) {
	fp := domain.DeriveFingerprint([]byte("wire"))
	rec, err := NewRecord(fp, "ref", "alice", "issuer", time.Now())
	require.NoError(t, err)
	evt := NewCreatedEvent(rec)
	evt.Sequence = 42

	raw, err := MarshalEvent(evt)
	require.NoError(t, err)
	decoded, err := UnmarshalEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, decoded.ID)
	assert.Equal(t, int64(42), decoded.Sequence)
	assert.Equal(t, fp, decoded.Fingerprint)

	_, err = UnmarshalEvent([]byte(`{"type":"created","fingerprint":"nothex"}`))
	assert.Error(t, err)

	_, err = UnmarshalEvent([]byte(`{"type":"minted","fingerprint":"` + fp.String() + `"}`))
	assert.Error(t, err)

	_, err = UnmarshalEvent([]byte(`not json`))
	assert.Error(t, err)
}
