// Package storetest is the behavioural contract for index backends.
package storetest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	idxmodels "docproof/internal/index/models"
	"docproof/internal/registry/models"
	"docproof/pkg/domain"
	"docproof/pkg/platform/sentinel"
)

type Store interface {
	Apply(ctx context.Context, evt models.Event) (bool, error)
	ByOwner(ctx context.Context, owner domain.Identity) ([]domain.Fingerprint, error)
	ByIssuer(ctx context.Context, issuer domain.Identity) ([]domain.Fingerprint, error)
	History(ctx context.Context, owner domain.Identity) ([]domain.Fingerprint, error)
	Entry(ctx context.Context, fp domain.Fingerprint) (*idxmodels.Entry, error)
	Reset(ctx context.Context) error
}

type Suite struct {
	suite.Suite
	NewStore func() Store

	store Store
	ctx   context.Context
	seq   int64
}

func (s *Suite) SetupTest() {
	s.store = s.NewStore()
	s.ctx = context.Background()
	s.seq = 0
}

func (s *Suite) event(typ models.EventType, doc string, owner, previous domain.Identity, version int64) models.Event {
	s.seq++
	return models.Event{
		ID:            uuid.New(),
		Sequence:      s.seq,
		Type:          typ,
		Fingerprint:   domain.DeriveFingerprint([]byte(doc)),
		Actor:         owner,
		Owner:         owner,
		PreviousOwner: previous,
		Issuer:        "issuer",
		MetadataRef:   "ref:" + doc,
		Timestamp:     time.Now().UTC(),
		Version:       version,
	}
}

func (s *Suite) apply(evt models.Event) bool {
	applied, err := s.store.Apply(s.ctx, evt)
	s.Require().NoError(err)
	return applied
}

func (s *Suite) TestApplyCreated() {
	evt := s.event(models.EventCreated, "a", "alice", "", 0)
	s.True(s.apply(evt))

	entry, err := s.store.Entry(s.ctx, evt.Fingerprint)
	s.Require().NoError(err)
	s.Equal(domain.Identity("alice"), entry.Owner)
	s.Equal(domain.Identity("issuer"), entry.Issuer)
	s.Equal("ref:a", entry.MetadataRef)
	s.True(entry.Active)
	s.Zero(entry.Version)
	s.Equal(evt.Sequence, entry.Sequence)

	owned, err := s.store.ByOwner(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal([]domain.Fingerprint{evt.Fingerprint}, owned)
}

func (s *Suite) TestApplyIsIdempotentPerVersion() {
	created := s.event(models.EventCreated, "a", "alice", "", 0)
	s.True(s.apply(created))
	s.False(s.apply(created), "same version again is discarded")

	transferred := s.event(models.EventTransferred, "a", "bob", "alice", 1)
	s.True(s.apply(transferred))
	s.False(s.apply(created), "older version after newer is discarded")

	entry, err := s.store.Entry(s.ctx, created.Fingerprint)
	s.Require().NoError(err)
	s.Equal(domain.Identity("bob"), entry.Owner)
	s.Equal(int64(1), entry.Version)
	s.Equal(transferred.Sequence, entry.Sequence, "entry tracks the log position of its last event")
	s.Equal("ref:a", entry.MetadataRef, "metadata survives events that do not carry it")
}

func (s *Suite) TestTransferMovesOwnershipAndKeepsHistory() {
	created := s.event(models.EventCreated, "a", "alice", "", 0)
	s.apply(created)
	s.apply(s.event(models.EventTransferred, "a", "bob", "alice", 1))

	alice, err := s.store.ByOwner(s.ctx, "alice")
	s.Require().NoError(err)
	s.Empty(alice)

	bob, err := s.store.ByOwner(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal([]domain.Fingerprint{created.Fingerprint}, bob)

	history, err := s.store.History(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal([]domain.Fingerprint{created.Fingerprint}, history)
}

func (s *Suite) TestRevokedStaysListedButInactive() {
	created := s.event(models.EventCreated, "a", "alice", "", 0)
	s.apply(created)
	s.apply(s.event(models.EventRevoked, "a", "alice", "", 1))

	entry, err := s.store.Entry(s.ctx, created.Fingerprint)
	s.Require().NoError(err)
	s.False(entry.Active)

	owned, err := s.store.ByOwner(s.ctx, "alice")
	s.Require().NoError(err)
	s.Len(owned, 1)
}

func (s *Suite) TestQueriesOrderedBySequence() {
	var want []domain.Fingerprint
	for _, doc := range []string{"z", "m", "a", "q"} {
		evt := s.event(models.EventCreated, doc, "alice", "", 0)
		s.apply(evt)
		want = append(want, evt.Fingerprint)
	}
	owned, err := s.store.ByOwner(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(want, owned)

	issued, err := s.store.ByIssuer(s.ctx, "issuer")
	s.Require().NoError(err)
	s.Equal(want, issued)
}

func (s *Suite) TestOutOfOrderNewerEventBuildsEntry() {
	transferred := s.event(models.EventTransferred, "a", "bob", "alice", 1)
	s.True(s.apply(transferred))
	s.False(s.apply(s.event(models.EventCreated, "a", "alice", "", 0)))

	alice, err := s.store.ByOwner(s.ctx, "alice")
	s.Require().NoError(err)
	s.Empty(alice)
}

func (s *Suite) TestUnknownLookups() {
	_, err := s.store.Entry(s.ctx, domain.DeriveFingerprint([]byte("missing")))
	s.ErrorIs(err, sentinel.ErrNotFound)

	owned, err := s.store.ByOwner(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(owned)
}

func (s *Suite) TestReset() {
	created := s.event(models.EventCreated, "a", "alice", "", 0)
	s.apply(created)
	s.Require().NoError(s.store.Reset(s.ctx))

	_, err := s.store.Entry(s.ctx, created.Fingerprint)
	s.ErrorIs(err, sentinel.ErrNotFound)
	owned, err := s.store.ByOwner(s.ctx, "alice")
	s.Require().NoError(err)
	s.Empty(owned)

	s.True(s.apply(created), "reset index accepts replay from genesis")
}
