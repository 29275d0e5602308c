// Package usage tracks per-model request and character counters in a
// local bbolt database, surfaced on the /usage endpoint.
package usage

import (
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var countersBucket = []byte("counters")

// Record is one completed proxy request.
type Record struct {
	Model         string
	Streaming     bool
	PromptChars   int
	ResponseChars int
	ToolCalls     int
	DurationMs    int64
}

// Counters is the persisted aggregate for one model.
type Counters struct {
	Requests      int64 `json:"requests"`
	PromptChars   int64 `json:"prompt_chars"`
	ResponseChars int64 `json:"response_chars"`
	ToolCalls     int64 `json:"tool_calls"`
	TotalMs       int64 `json:"total_ms"`
}

// Store persists usage counters across restarts.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the usage database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open usage database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, errBucket := tx.CreateBucketIfNotExists(countersBucket)
		return errBucket
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add folds one record into the model's counters. Failures are logged and
// dropped; usage tracking never fails a request.
func (s *Store) Add(record Record) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(countersBucket)
		var counters Counters
		if data := bucket.Get([]byte(record.Model)); data != nil {
			if errDecode := json.Unmarshal(data, &counters); errDecode != nil {
				log.Warnf("usage: resetting corrupt counters for %s: %v", record.Model, errDecode)
				counters = Counters{}
			}
		}
		counters.Requests++
		counters.PromptChars += int64(record.PromptChars)
		counters.ResponseChars += int64(record.ResponseChars)
		counters.ToolCalls += int64(record.ToolCalls)
		counters.TotalMs += record.DurationMs

		data, errEncode := json.Marshal(counters)
		if errEncode != nil {
			return errEncode
		}
		return bucket.Put([]byte(record.Model), data)
	})
	if err != nil {
		log.Warnf("usage: failed to record request for %s: %v", record.Model, err)
	}
}

// Snapshot returns the counters for every model seen so far.
func (s *Store) Snapshot() (map[string]Counters, error) {
	snapshot := make(map[string]Counters)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(countersBucket).ForEach(func(k, v []byte) error {
			var counters Counters
			if errDecode := json.Unmarshal(v, &counters); errDecode != nil {
				return errDecode
			}
			snapshot[string(k)] = counters
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}
