package history

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var rootBucket = []byte("lee_soon_sin")

// Bolt persists events in a bbolt file: one nested bucket per session,
// keyed by a big-endian sequence number.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens or creates the journal file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Record appends e under its session bucket with the next sequence key.
func (b *Bolt) Record(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		sessions, err := tx.Bucket(rootBucket).CreateBucketIfNotExists([]byte(e.SessionID))
		if err != nil {
			return err
		}
		seq, err := sessions.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return sessions.Put(key, value)
	})
}

// List returns the events of sessionID in record order; an unknown
// session has none.
func (b *Bolt) List(ctx context.Context, sessionID string) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	events := []Event{}
	err := b.db.View(func(tx *bolt.Tx) error {
		sessions := tx.Bucket(rootBucket).Bucket([]byte(sessionID))
		if sessions == nil {
			return nil
		}
		return sessions.ForEach(func(_, v []byte) error {
			var e Event
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			events = append(events, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Close closes the database file.
func (b *Bolt) Close() error {
	return b.db.Close()
}
