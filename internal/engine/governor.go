package engine

import (
	"github.com/photosweep/photosweep/internal/metrics"
)

// Governor bounds the number of fully materialized records regardless of
// how far the user has paged. Records far from the read cursor are demoted
// back to placeholders; the record under the cursor and the one the UI is
// about to need are never touched.
type Governor struct {
	// CleanupThreshold is the record count below which Trim is a no-op.
	CleanupThreshold int
	// KeepWindow is the width of the window around the read cursor whose
	// records are retained regardless of state. Minimum 2.
	KeepWindow int
}

// NewGovernor creates a governor with the given threshold and window.
func NewGovernor(threshold, window int) *Governor {
	if window < 2 {
		window = 2
	}
	return &Governor{CleanupThreshold: threshold, KeepWindow: window}
}

// Trim demotes loaded records outside the keep window centered on readIdx,
// in place, and returns the number demoted. Idempotent: records already
// placeholders or demoted are left untouched, as is everything inside the
// window and the records at readIdx and readIdx+1.
func (g *Governor) Trim(records []Asset, readIdx int) int {
	if len(records) <= g.CleanupThreshold {
		return 0
	}

	lo := readIdx - g.KeepWindow/2
	hi := readIdx + g.KeepWindow/2

	demoted := 0
	for i := range records {
		if i >= lo && i < hi {
			continue
		}
		// The cursor and its lookahead stay loaded so the "next photo
		// ready" check can always converge.
		if i == readIdx || i == readIdx+1 {
			continue
		}
		if records[i].State == StateLoaded {
			records[i] = Demote(records[i])
			demoted++
		}
	}

	if demoted > 0 {
		metrics.RecordDemotions(demoted)
	}
	return demoted
}
