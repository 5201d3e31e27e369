package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/photosweep/photosweep/internal/logging"
	"github.com/photosweep/photosweep/internal/metrics"
	"github.com/photosweep/photosweep/internal/photostore"
)

// PendingDeletion is one asset marked for deletion, pending a bulk commit.
type PendingDeletion struct {
	ID          string `json:"id"`
	URI         string `json:"uri"`
	ByteSize    int64  `json:"byte_size"`
	PeriodLabel string `json:"period_label"`
}

// Ledger accumulates the user's deletion choices for the active scope.
// Insertion is idempotent and keyed by asset ID; commit is all-or-nothing.
// Only the main interaction flow mutates the ledger, never background
// loaders.
type Ledger struct {
	mu       sync.Mutex
	provider photostore.Provider
	entries  []PendingDeletion
	present  map[string]struct{}
}

// NewLedger creates an empty ledger backed by the given provider.
func NewLedger(provider photostore.Provider) *Ledger {
	return &Ledger{
		provider: provider,
		present:  make(map[string]struct{}),
	}
}

// Add marks an asset for deletion. It is a no-op when the asset is not
// fully materialized — an estimate-only record must never enter the ledger
// — or when the asset is already present. Returns whether an entry was
// added.
//
// An inexact byte size is refined here by re-querying the provider, so the
// eventual "space reclaimed" report reflects real sizes.
func (l *Ledger) Add(ctx context.Context, a Asset, periodLabel string) bool {
	if !a.Loaded() {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.present[a.ID]; ok {
		return false
	}

	size := a.ByteSize
	if !a.SizeExact {
		if res, err := l.provider.Resolve(ctx, a.Descriptor); err == nil && res.ByteSize > 0 {
			size = res.ByteSize
		}
	}

	l.entries = append(l.entries, PendingDeletion{
		ID:          a.ID,
		URI:         a.ResolvedURI,
		ByteSize:    size,
		PeriodLabel: periodLabel,
	})
	l.present[a.ID] = struct{}{}
	metrics.SetLedgerSize(len(l.entries))
	return true
}

// Remove drops the entry for id if present.
func (l *Ledger) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.removeLocked(id)
}

func (l *Ledger) removeLocked(id string) bool {
	if _, ok := l.present[id]; !ok {
		return false
	}
	for i, e := range l.entries {
		if e.ID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			break
		}
	}
	delete(l.present, id)
	metrics.SetLedgerSize(len(l.entries))
	return true
}

// UndoLast removes the most recently added entry if it matches id. Used by
// the single-level undo gesture, always paired with moving the read cursor
// back by one.
func (l *Ledger) UndoLast(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 || l.entries[len(l.entries)-1].ID != id {
		return false
	}
	return l.removeLocked(id)
}

// Contains reports whether id is marked for deletion.
func (l *Ledger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.present[id]
	return ok
}

// Len returns the number of pending deletions.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// TotalBytes returns the byte total of all pending deletions.
func (l *Ledger) TotalBytes() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, e := range l.entries {
		total += e.ByteSize
	}
	return total
}

// Entries returns a copy of the pending deletions in insertion order.
func (l *Ledger) Entries() []PendingDeletion {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]PendingDeletion, len(l.entries))
	copy(out, l.entries)
	return out
}

// Clear drops all entries without deleting anything. Used when a new
// scope begins: marks belong to the scope they were made in.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.present = make(map[string]struct{})
	metrics.SetLedgerSize(0)
}

// Commit issues a single bulk delete for all entries. On success the
// ledger is cleared; on failure it is left untouched so the user can
// retry. Never partially clears.
func (l *Ledger) Commit(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return nil
	}

	ids := make([]string, len(l.entries))
	var bytes int64
	for i, e := range l.entries {
		ids[i] = e.ID
		bytes += e.ByteSize
	}

	if err := l.provider.Delete(ctx, ids); err != nil {
		metrics.RecordCommit(false, 0)
		logging.Warn("bulk delete failed, ledger preserved",
			zap.Int("entries", len(ids)), zap.Error(err))
		return fmt.Errorf("bulk delete: %w", err)
	}

	metrics.RecordCommit(true, bytes)
	logging.Info("deletions committed",
		zap.Int("entries", len(ids)), zap.Int64("bytes", bytes))
	l.entries = nil
	l.present = make(map[string]struct{})
	metrics.SetLedgerSize(0)
	return nil
}
