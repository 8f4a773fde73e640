package audit

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/garyjia/nfe-ingest/internal/application/port"
	"github.com/garyjia/nfe-ingest/internal/domain/entity"
	"go.etcd.io/bbolt"
)

const eventsBucket = "audit_events"

// BoltStore keeps audit events in an append-only bbolt bucket keyed by a
// monotonically increasing sequence.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the event file at path
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening audit store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(eventsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Append stores one event
func (s *BoltStore) Append(ctx context.Context, event *entity.AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(eventsBucket))
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bucket.Put(key, data)
	})
}

// Recent returns up to limit events, newest first
func (s *BoltStore) Recent(ctx context.Context, limit int) ([]*entity.AuditEvent, error) {
	events := make([]*entity.AuditEvent, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(eventsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(events) < limit; k, v = c.Prev() {
			var event entity.AuditEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return fmt.Errorf("unmarshaling audit event: %w", err)
			}
			events = append(events, &event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Close closes the underlying file
func (s *BoltStore) Close() error {
	return s.db.Close()
}

var _ port.AuditSink = (*BoltStore)(nil)
