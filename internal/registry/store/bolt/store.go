// Package bolt is the embedded single-file ledger backend built on bbolt.
//
// The records bucket maps fingerprint to the JSON-encoded record; the events
// bucket maps a big-endian sequence number to the JSON-encoded event. Writes
// go through DB.Batch so concurrent writers on different fingerprints share
// one fsync instead of queueing for separate transactions.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"docproof/internal/registry/models"
	"docproof/pkg/domain"
	"docproof/pkg/platform/sentinel"
)

var (
	bucketRecords = []byte("records")
	bucketEvents  = []byte("events")
	bucketMeta    = []byte("meta")
	keyCreated    = []byte("records_created")
)

type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketEvents, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type recordDoc struct {
	Fingerprint string    `json:"fingerprint"`
	MetadataRef string    `json:"metadata_ref"`
	Owner       string    `json:"owner"`
	Issuer      string    `json:"issuer"`
	CreatedAt   time.Time `json:"created_at"`
	Active      bool      `json:"active"`
	Version     int64     `json:"version"`
}

func encodeRecord(rec *models.Record) ([]byte, error) {
	return json.Marshal(recordDoc{
		Fingerprint: rec.Fingerprint.String(),
		MetadataRef: rec.MetadataRef,
		Owner:       rec.Owner.String(),
		Issuer:      rec.Issuer.String(),
		CreatedAt:   rec.CreatedAt,
		Active:      rec.Active,
		Version:     rec.Version,
	})
}

func decodeRecord(raw []byte) (*models.Record, error) {
	var doc recordDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &models.Record{
		Fingerprint: domain.Fingerprint(doc.Fingerprint),
		MetadataRef: doc.MetadataRef,
		Owner:       domain.Identity(doc.Owner),
		Issuer:      domain.Identity(doc.Issuer),
		CreatedAt:   doc.CreatedAt.UTC(),
		Active:      doc.Active,
		Version:     doc.Version,
	}, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func appendEvent(tx *bolt.Tx, evt models.Event) error {
	events := tx.Bucket(bucketEvents)
	seq, err := events.NextSequence()
	if err != nil {
		return fmt.Errorf("next event sequence: %w", err)
	}
	raw, err := models.MarshalEvent(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return events.Put(seqKey(seq), raw)
}

func (s *Store) Insert(ctx context.Context, rec *models.Record, evt models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return s.db.Batch(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		key := []byte(rec.Fingerprint)
		if records.Get(key) != nil {
			return sentinel.ErrAlreadyUsed
		}
		if err := records.Put(key, raw); err != nil {
			return fmt.Errorf("put record: %w", err)
		}
		if err := appendEvent(tx, evt); err != nil {
			return err
		}
		meta := tx.Bucket(bucketMeta)
		var created uint64
		if v := meta.Get(keyCreated); v != nil {
			created = binary.BigEndian.Uint64(v)
		}
		return meta.Put(keyCreated, seqKey(created+1))
	})
}

func (s *Store) FindByFingerprint(ctx context.Context, fp domain.Fingerprint) (*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *models.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketRecords).Get([]byte(fp))
		if raw == nil {
			return sentinel.ErrNotFound
		}
		var err error
		rec, err = decodeRecord(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) FindMany(ctx context.Context, fps []domain.Fingerprint) (map[domain.Fingerprint]*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[domain.Fingerprint]*models.Record, len(fps))
	err := s.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		for _, fp := range fps {
			raw := records.Get([]byte(fp))
			if raw == nil {
				continue
			}
			rec, err := decodeRecord(raw)
			if err != nil {
				return err
			}
			out[fp] = rec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, expectedVersion int64, rec *models.Record, evt models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return s.db.Batch(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		key := []byte(rec.Fingerprint)
		currentRaw := records.Get(key)
		if currentRaw == nil {
			return sentinel.ErrNotFound
		}
		current, err := decodeRecord(currentRaw)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return sentinel.ErrConflict
		}
		if err := records.Put(key, raw); err != nil {
			return fmt.Errorf("put record: %w", err)
		}
		return appendEvent(tx, evt)
	})
}

// List enumerates records in fingerprint order (bbolt keys are sorted).
func (s *Store) List(ctx context.Context) ([]*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*models.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(_, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(keyCreated); v != nil {
			n = int64(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	return n, err
}

func (s *Store) ReadFrom(ctx context.Context, afterSeq int64, limit int) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Seek(seqKey(uint64(max(afterSeq, 0)) + 1)); k != nil; k, v = c.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			evt, err := models.UnmarshalEvent(v)
			if err != nil {
				return err
			}
			evt.Sequence = int64(binary.BigEndian.Uint64(k))
			out = append(out, evt)
		}
		return nil
	})
	return out, err
}

// Ping verifies the file is still open.
func (s *Store) Ping(context.Context) error {
	return s.db.View(func(*bolt.Tx) error { return nil })
}
