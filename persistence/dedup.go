// Package persistence keeps the bot's webhook delivery log in a local bbolt
// file, so a restart does not reprocess deliveries Chatwork retried.
package persistence

import (
	"encoding/binary"
	"time"

	"go.etcd.io/bbolt"
)

var processedBucket = []byte("processed")

// DedupStore records which webhook deliveries were already handled.
type DedupStore struct {
	db *bbolt.DB
}

// NewDedupStore opens (or creates) the dedup database at path.
func NewDedupStore(path string) (*DedupStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(processedBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DedupStore{db: db}, nil
}

// MarkProcessed records the message ID and reports whether it was new.
// A false result means the delivery was already handled and must be skipped.
func (s *DedupStore) MarkProcessed(messageID string) (bool, error) {
	first := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(processedBucket)
		if bucket.Get([]byte(messageID)) != nil {
			return nil
		}
		first = true
		ts := make([]byte, 8)
		binary.BigEndian.PutUint64(ts, uint64(time.Now().Unix()))
		return bucket.Put([]byte(messageID), ts)
	})
	return first, err
}

// Prune drops entries recorded before the cutoff. Chatwork only retries a
// delivery for a short while, so old entries are dead weight.
func (s *DedupStore) Prune(olderThan time.Time) error {
	cutoff := olderThan.Unix()
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(processedBucket)
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(v) != 8 {
				continue
			}
			if int64(binary.BigEndian.Uint64(v)) < cutoff {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *DedupStore) Close() error {
	return s.db.Close()
}
