package photostore

import (
	"sort"
	"sync"
)

// Index is a sorted in-memory descriptor index shared by providers that
// enumerate their library eagerly (local, s3, memory). Descriptors are
// kept ordered by TakenAt descending with ID descending as tiebreak, and
// pages are cut with the last returned ID as the cursor.
type Index struct {
	mu    sync.RWMutex
	descs []Descriptor
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{}
}

func less(a, b Descriptor) bool {
	if a.TakenAt != b.TakenAt {
		return a.TakenAt > b.TakenAt
	}
	return a.ID > b.ID
}

// Replace swaps the full descriptor set, sorting it into enumeration order.
func (ix *Index) Replace(descs []Descriptor) {
	sorted := make([]Descriptor, len(descs))
	copy(sorted, descs)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	ix.mu.Lock()
	ix.descs = sorted
	ix.mu.Unlock()
}

// Add inserts one descriptor, keeping order.
func (ix *Index) Add(d Descriptor) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	pos := sort.Search(len(ix.descs), func(i int) bool { return !less(ix.descs[i], d) })
	ix.descs = append(ix.descs, Descriptor{})
	copy(ix.descs[pos+1:], ix.descs[pos:])
	ix.descs[pos] = d
}

// Remove drops the given IDs.
func (ix *Index) Remove(ids []string) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	kept := ix.descs[:0]
	for _, d := range ix.descs {
		if _, ok := drop[d.ID]; !ok {
			kept = append(kept, d)
		}
	}
	ix.descs = kept
}

// Get returns the descriptor for id.
func (ix *Index) Get(id string) (Descriptor, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, d := range ix.descs {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Len returns the number of indexed descriptors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.descs)
}

// Page cuts one page of descriptors matching match, starting after the
// cursor. An unresolvable cursor yields an empty page with
// HasNextPage=false: the caller reads it as exhaustion.
func (ix *Index) Page(match func(Descriptor) bool, after string, pageSize int) Page {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	from := 0
	if after != "" {
		from = -1
		for i, d := range ix.descs {
			if d.ID == after {
				from = i + 1
				break
			}
		}
		if from < 0 {
			return Page{}
		}
	}

	var page Page
	for i := from; i < len(ix.descs); i++ {
		d := ix.descs[i]
		if !match(d) {
			continue
		}
		if len(page.Items) == pageSize {
			page.HasNextPage = true
			return page
		}
		page.Items = append(page.Items, d)
		page.EndCursor = d.ID
	}
	return page
}

// NearestBefore returns the newest TakenAt strictly older than ts.
func (ix *Index) NearestBefore(ts int64) (int64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, d := range ix.descs {
		if d.TakenAt < ts {
			return d.TakenAt, true
		}
	}
	return 0, false
}
