package events

import (
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"

	"shade/core/types"
)

var bucketEvents = []byte("events")

// payloadEvent is implemented by events that can render a canonical attribute
// payload for downstream consumers.
type payloadEvent interface {
	Event() *types.Event
}

// Journal is an append-only event log backed by BoltDB. Entries are keyed by
// a monotone sequence number so the log reads back in emission order.
type Journal struct {
	db     *bolt.DB
	logger *slog.Logger
}

// OpenJournal initialises (and migrates) the BoltDB-backed journal.
func OpenJournal(path string, logger *slog.Logger) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db, logger: logger}, nil
}

// Close releases the underlying Bolt database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Emit appends the event to the journal. Emission is best-effort: a write
// failure is logged and dropped rather than failing the already-committed
// call that produced it.
func (j *Journal) Emit(e Event) {
	if j == nil || j.db == nil || e == nil {
		return
	}
	payload, ok := e.(payloadEvent)
	if !ok {
		return
	}
	evt := payload.Event()
	if evt == nil {
		return
	}
	encoded, err := json.Marshal(evt)
	if err != nil {
		j.log("encode event", err)
		return
	}
	if err := j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEvents)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return bucket.Put(key[:], encoded)
	}); err != nil {
		j.log("append event", err)
	}
}

// List returns up to limit events with sequence numbers strictly greater than
// after, in ascending order, together with the sequence of the last entry
// returned.
func (j *Journal) List(after uint64, limit int) ([]types.Event, uint64, error) {
	if limit <= 0 {
		limit = 100
	}
	out := make([]types.Event, 0, limit)
	last := after
	err := j.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketEvents).Cursor()
		var start [8]byte
		binary.BigEndian.PutUint64(start[:], after+1)
		for k, v := cursor.Seek(start[:]); k != nil && len(out) < limit; k, v = cursor.Next() {
			var evt types.Event
			if err := json.Unmarshal(v, &evt); err != nil {
				return err
			}
			out = append(out, evt)
			last = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	if err != nil {
		return nil, after, err
	}
	return out, last, nil
}

func (j *Journal) log(msg string, err error) {
	if j.logger != nil {
		j.logger.Error(msg, slog.Any("error", err))
	}
}
