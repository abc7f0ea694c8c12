// Package storetest is the behavioural contract every ledger backend must
// satisfy. Backend packages run it from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"docproof/internal/registry/models"
	"docproof/pkg/domain"
	"docproof/pkg/platform/sentinel"
)

// Store mirrors the ledger's record store port.
type Store interface {
	Insert(ctx context.Context, rec *models.Record, evt models.Event) error
	FindByFingerprint(ctx context.Context, fp domain.Fingerprint) (*models.Record, error)
	FindMany(ctx context.Context, fps []domain.Fingerprint) (map[domain.Fingerprint]*models.Record, error)
	CompareAndSwap(ctx context.Context, expectedVersion int64, rec *models.Record, evt models.Event) error
	List(ctx context.Context) ([]*models.Record, error)
	Count(ctx context.Context) (int64, error)
	ReadFrom(ctx context.Context, afterSeq int64, limit int) ([]models.Event, error)
}

// Suite runs the contract against a fresh store per test.
type Suite struct {
	suite.Suite
	NewStore func() Store

	store Store
	ctx   context.Context
}

func (s *Suite) SetupTest() {
	s.store = s.NewStore()
	s.ctx = context.Background()
}

var createdAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func (s *Suite) fingerprint(n int) domain.Fingerprint {
	return domain.DeriveFingerprint(fmt.Appendf(nil, "document-%d", n))
}

func (s *Suite) create(n int, owner domain.Identity) *models.Record {
	rec, err := models.NewRecord(s.fingerprint(n), "sha256:meta", owner, "issuer", createdAt)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Insert(s.ctx, rec, models.NewCreatedEvent(rec)))
	return rec
}

func (s *Suite) TestInsertAndFind() {
	s.Run("stores and returns the record", func() {
		rec := s.create(1, "alice")
		found, err := s.store.FindByFingerprint(s.ctx, rec.Fingerprint)
		s.Require().NoError(err)
		s.Equal(rec.Owner, found.Owner)
		s.Equal(rec.Issuer, found.Issuer)
		s.Equal("sha256:meta", found.MetadataRef)
		s.True(found.Active)
		s.Equal(int64(0), found.Version)
		s.True(rec.CreatedAt.Equal(found.CreatedAt))
	})

	s.Run("returns ErrNotFound for unknown fingerprint", func() {
		_, err := s.store.FindByFingerprint(s.ctx, s.fingerprint(999))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects a second insert for the same fingerprint", func() {
		rec, err := models.NewRecord(s.fingerprint(1), "other", "bob", "other-issuer", createdAt)
		s.Require().NoError(err)
		err = s.store.Insert(s.ctx, rec, models.NewCreatedEvent(rec))
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)

		found, err := s.store.FindByFingerprint(s.ctx, rec.Fingerprint)
		s.Require().NoError(err)
		s.Equal(domain.Identity("alice"), found.Owner, "loser must not overwrite")
	})
}

func (s *Suite) TestReturnedRecordsAreCopies() {
	rec := s.create(1, "alice")
	found, err := s.store.FindByFingerprint(s.ctx, rec.Fingerprint)
	s.Require().NoError(err)
	found.Owner = "mallory"

	again, err := s.store.FindByFingerprint(s.ctx, rec.Fingerprint)
	s.Require().NoError(err)
	s.Equal(domain.Identity("alice"), again.Owner)
}

func (s *Suite) TestCompareAndSwap() {
	rec := s.create(1, "alice")

	s.Run("applies when version matches", func() {
		next := rec.Clone()
		prev := next.ApplyTransfer("bob")
		s.Require().NoError(s.store.CompareAndSwap(s.ctx, 0, next, models.NewTransferredEvent(next, "alice", prev, createdAt)))

		found, err := s.store.FindByFingerprint(s.ctx, rec.Fingerprint)
		s.Require().NoError(err)
		s.Equal(domain.Identity("bob"), found.Owner)
		s.Equal(int64(1), found.Version)
	})

	s.Run("rejects stale version", func() {
		stale := rec.Clone()
		stale.ApplyRevoke()
		err := s.store.CompareAndSwap(s.ctx, 0, stale, models.NewRevokedEvent(stale, "issuer", createdAt))
		s.ErrorIs(err, sentinel.ErrConflict)

		found, err := s.store.FindByFingerprint(s.ctx, rec.Fingerprint)
		s.Require().NoError(err)
		s.True(found.Active)
	})

	s.Run("rejects unknown fingerprint", func() {
		ghost, err := models.NewRecord(s.fingerprint(42), "m", "x", "y", createdAt)
		s.Require().NoError(err)
		ghost.ApplyRevoke()
		err = s.store.CompareAndSwap(s.ctx, 0, ghost, models.NewRevokedEvent(ghost, "y", createdAt))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *Suite) TestFindMany() {
	a := s.create(1, "alice")
	b := s.create(2, "bob")

	found, err := s.store.FindMany(s.ctx, []domain.Fingerprint{a.Fingerprint, s.fingerprint(3), b.Fingerprint})
	s.Require().NoError(err)
	s.Len(found, 2)
	s.Equal(domain.Identity("alice"), found[a.Fingerprint].Owner)
	s.Equal(domain.Identity("bob"), found[b.Fingerprint].Owner)

	empty, err := s.store.FindMany(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *Suite) TestListAndCount() {
	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Zero(count)

	for i := range 5 {
		s.create(i, "alice")
	}
	rec, err := s.store.FindByFingerprint(s.ctx, s.fingerprint(0))
	s.Require().NoError(err)
	rec.ApplyRevoke()
	s.Require().NoError(s.store.CompareAndSwap(s.ctx, 0, rec, models.NewRevokedEvent(rec, "issuer", createdAt)))

	count, err = s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(5), count, "revoked records still count")

	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 5)
	for i := 1; i < len(all); i++ {
		s.Less(string(all[i-1].Fingerprint), string(all[i].Fingerprint))
	}
}

func (s *Suite) TestEventLog() {
	a := s.create(1, "alice")
	s.create(2, "bob")
	next := a.Clone()
	prev := next.ApplyTransfer("carol")
	s.Require().NoError(s.store.CompareAndSwap(s.ctx, 0, next, models.NewTransferredEvent(next, "alice", prev, createdAt)))

	s.Run("reads the whole log in order", func() {
		events, err := s.store.ReadFrom(s.ctx, 0, 100)
		s.Require().NoError(err)
		s.Require().Len(events, 3)
		for i, evt := range events {
			s.Equal(int64(i+1), evt.Sequence)
		}
		s.Equal(models.EventCreated, events[0].Type)
		s.Equal(models.EventTransferred, events[2].Type)
		s.Equal(domain.Identity("alice"), events[2].PreviousOwner)
		s.Equal(domain.Identity("carol"), events[2].Owner)
		s.Equal(int64(1), events[2].Version)
		s.Equal("sha256:meta", events[0].MetadataRef)
	})

	s.Run("resumes after a cursor with a limit", func() {
		events, err := s.store.ReadFrom(s.ctx, 1, 1)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(int64(2), events[0].Sequence)
	})

	s.Run("returns nothing past the end", func() {
		events, err := s.store.ReadFrom(s.ctx, 3, 10)
		s.Require().NoError(err)
		s.Empty(events)
	})
}

func (s *Suite) TestConcurrentInsertHasOneWinner() {
	const workers = 32
	fp := s.fingerprint(7)
	var wins, dupes atomic.Int32
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := models.NewRecord(fp, "m", domain.Identity(fmt.Sprintf("owner-%d", i)), "issuer", createdAt)
			if err != nil {
				return
			}
			err = s.store.Insert(s.ctx, rec, models.NewCreatedEvent(rec))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				dupes.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(workers-1), dupes.Load())

	events, err := s.store.ReadFrom(s.ctx, 0, 100)
	s.Require().NoError(err)
	s.Len(events, 1, "only the winner appends an event")
}

func (s *Suite) TestConcurrentCASHasOneWinnerPerVersion() {
	rec := s.create(1, "alice")
	const workers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := rec.Clone()
			prev := next.ApplyTransfer(domain.Identity(fmt.Sprintf("owner-%d", i)))
			if err := s.store.CompareAndSwap(s.ctx, 0, next, models.NewTransferredEvent(next, "alice", prev, createdAt)); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}
