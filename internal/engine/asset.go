// Package engine implements the photo paging and staged-load engine: a
// session-scoped review flow that enumerates a photo library newest-first,
// materializes assets in a priority tier before the caller is unblocked and
// a background tier afterwards, bounds resident memory by demoting
// far-from-cursor records, and accumulates deletion choices for a single
// bulk commit.
package engine

import (
	"encoding/json"

	"github.com/photosweep/photosweep/internal/photostore"
)

// State describes the materialization state of an asset record.
type State int

const (
	// StatePlaceholder means the record was never materialized: estimated
	// size only, no resolved URI guarantee.
	StatePlaceholder State = iota
	// StateLoaded means the record carries a resolved URI and a real or
	// refined byte size.
	StateLoaded
	// StateDemoted means the record was loaded once and later evicted by
	// the memory governor. Distinct from StatePlaceholder so that stale
	// data is never mistaken for never-loaded data.
	StateDemoted
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateDemoted:
		return "demoted"
	default:
		return "placeholder"
	}
}

// MarshalJSON encodes the state as its name, matching the string enums
// used elsewhere in the API surface.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Asset is a descriptor plus materialization state. A record transitions
// placeholder → loaded at most once per load session, and loaded → demoted
// only through the memory governor.
type Asset struct {
	photostore.Descriptor

	ResolvedURI string `json:"resolved_uri,omitempty"`
	ByteSize    int64  `json:"byte_size"`
	SizeExact   bool   `json:"size_exact"`
	State       State  `json:"state"`
}

// Loaded reports whether the record is fully materialized.
func (a Asset) Loaded() bool {
	return a.State == StateLoaded
}

// Placeholder returns the unmaterialized form of a descriptor with an
// estimated byte size.
func Placeholder(d photostore.Descriptor) Asset {
	return Asset{
		Descriptor: d,
		ByteSize:   EstimateByteSize(d.Width, d.Height),
		State:      StatePlaceholder,
	}
}

// Demote returns the demoted form of a loaded asset: same identity and URI,
// size dropped back to the estimate.
func Demote(a Asset) Asset {
	return Asset{
		Descriptor: a.Descriptor,
		ByteSize:   EstimateByteSize(a.Width, a.Height),
		State:      StateDemoted,
	}
}
