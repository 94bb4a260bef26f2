package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var auditBucket = []byte("audit")

// BoltSink is a Sink backed by a BBolt database. Keys are a monotonically
// increasing sequence number, so List iterates in append order.
type BoltSink struct {
	db *bbolt.DB
}

var _ Sink = (*BoltSink)(nil)

// NewBoltSink wraps an open BBolt database. Read-only databases are served
// as-is; Append will fail on them.
func NewBoltSink(db *bbolt.DB) (*BoltSink, error) {
	if !db.IsReadOnly() {
		err := db.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(auditBucket)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("creating audit bucket: %w", err)
		}
	}
	return &BoltSink{db: db}, nil
}

// NewBoltSinkFromFile opens a BBolt database at path and returns a sink.
func NewBoltSinkFromFile(path string, options *bbolt.Options) (*BoltSink, error) {
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}
	return NewBoltSink(db)
}

// Close closes the underlying database.
func (s *BoltSink) Close() error {
	return s.db.Close()
}

func (s *BoltSink) Append(entry Entry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(auditBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating sequence: %w", err)
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encoding entry: %w", err)
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

func (s *BoltSink) List() ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(auditBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("decoding entry: %w", err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
