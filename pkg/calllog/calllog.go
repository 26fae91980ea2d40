// Package calllog is the audit store for emergency call records. Every
// call the orchestrator initiates — real or simulated — is recorded here
// and kept for a bounded retention window.
//
// Records are encoded with msgpack and stored in BadgerDB, keyed by call
// id. An in-memory mode backs tests.
package calllog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vigil-voice/vigil/pkg/crisis"
)

// ErrNotFound is returned when no record exists for a call id.
var ErrNotFound = errors.New("calllog: not found")

const keyPrefix = "call:"

// Record is the audit entry for one emergency call.
type Record struct {
	CallID        string               `msgpack:"call_id"`
	SessionID     string               `msgpack:"session_id"`
	EmergencyType crisis.EmergencyType `msgpack:"emergency_type"`
	Location      string               `msgpack:"location"`
	Situation     string               `msgpack:"situation"`
	TargetPhone   string               `msgpack:"target_phone"`
	Status        string               `msgpack:"status"`
	Simulated     bool                 `msgpack:"simulated"`
	CreatedAt     time.Time            `msgpack:"created_at"`
	UpdatedAt     time.Time            `msgpack:"updated_at"`
}

// Store is the badger-backed audit store.
type Store struct {
	db *badger.DB
}

// Open creates a Store with data files under dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("calllog: dir is required")
	}
	return open(badger.DefaultOptions(dir))
}

// OpenInMemory creates a Store with no disk persistence. Used by tests
// and by deployments that only need the in-process audit view.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts.WithLogger(quietLogger{}))
	if err != nil {
		return nil, fmt.Errorf("calllog: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Put writes or overwrites a record.
func (s *Store) Put(_ context.Context, rec *Record) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("calllog: encode record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+rec.CallID), data)
	})
}

// Get fetches the record for a call id. Returns ErrNotFound if absent.
func (s *Store) Get(_ context.Context, callID string) (*Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + callID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns all records, newest first.
func (s *Store) List(_ context.Context) ([]*Record, error) {
	var recs []*Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			recs = append(recs, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	return recs, nil
}

// CleanupOlderThan deletes records created before the cutoff and returns
// how many were removed. Keeps the audit window bounded.
func (s *Store) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)
	recs, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	var removed int
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, rec := range recs {
			if rec.CreatedAt.Before(cutoff) {
				if err := txn.Delete([]byte(keyPrefix + rec.CallID)); err != nil {
					return err
				}
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// quietLogger suppresses badger's info/debug chatter.
type quietLogger struct{}

func (quietLogger) Errorf(f string, v ...interface{})   { log.Printf("[calllog] ERROR: "+f, v...) }
func (quietLogger) Warningf(f string, v ...interface{}) { log.Printf("[calllog] WARN: "+f, v...) }
func (quietLogger) Infof(string, ...interface{})        {}
func (quietLogger) Debugf(string, ...interface{})       {}
