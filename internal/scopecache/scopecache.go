// Package scopecache persists derived review state between runs: per-month
// library summaries and scope-completed markers, keyed by scope.
//
// The cache is strictly best-effort. Missing or corrupt entries read as
// cache misses and are recomputed by the caller; they never surface as
// errors.
package scopecache

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/photosweep/photosweep/internal/logging"
)

const (
	summaryPrefix = "summary/"
	donePrefix    = "done/"
)

// MonthSummary is a cached overview of one calendar month.
type MonthSummary struct {
	Month       string `json:"month"` // "2006-01"
	Count       int    `json:"count"`
	Bytes       int64  `json:"bytes"`
	ThumbJPEG   []byte `json:"thumb_jpeg,omitempty"`
	GeneratedAt int64  `json:"generated_at"` // epoch ms
}

// Store is a badger-backed key-value cache with process-wide lifetime
// managed by the host application.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the cache at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open scope cache: %w", err)
	}
	return &Store{db: db}, nil
}

// PutSummary stores a month summary.
func (s *Store) PutSummary(sum MonthSummary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(summaryPrefix+sum.Month), data)
	})
}

// GetSummary returns the cached summary for a month ("2006-01"), if any.
// Corrupt entries read as misses.
func (s *Store) GetSummary(month string) (MonthSummary, bool) {
	var sum MonthSummary
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(summaryPrefix + month))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sum)
		})
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			logging.Debug("scope cache summary read failed, treating as miss")
		}
		return MonthSummary{}, false
	}
	return sum, true
}

// MarkDone records that a scope has been fully reviewed.
func (s *Store) MarkDone(scopeKey string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(donePrefix+scopeKey), []byte{1})
	})
}

// Done reports whether a scope was fully reviewed in some earlier run.
func (s *Store) Done(scopeKey string) bool {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(donePrefix + scopeKey))
		return err
	})
	return err == nil
}

// InvalidateSummary drops the cached summary for a month.
func (s *Store) InvalidateSummary(month string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(summaryPrefix + month))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// Invalidate drops all cached state.
func (s *Store) Invalidate() error {
	return s.db.DropAll()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
