// Package photostore defines the Provider interface for photo library
// access and provides implementations for local filesystems, PostgreSQL
// photo indexes, and S3-compatible object stores.
//
// Providers handle enumeration (cursor-paginated, newest first), per-asset
// resolution, and bulk deletion. Everything above this interface — staging,
// eviction, the deletion ledger — lives in the engine package.
package photostore

import (
	"context"
	"fmt"
	"time"
)

// Descriptor is the lightweight identity of an asset as enumerated from a
// library. It carries enough metadata to order, display a placeholder, and
// estimate a byte size; it does not guarantee a resolvable URI.
type Descriptor struct {
	ID      string `json:"id"`
	TakenAt int64  `json:"taken_at"` // epoch ms
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	URI     string `json:"uri"` // device-local reference, not stable across sessions
}

// Resolution is the result of resolving a descriptor to a concrete asset.
// ByteSize is zero when the exact size could not be determined; callers
// fall back to a pixel-based estimate.
type Resolution struct {
	URI      string
	ByteSize int64
}

// Page is one page of enumerated descriptors plus the cursor to continue.
type Page struct {
	Items       []Descriptor `json:"items"`
	EndCursor   string       `json:"end_cursor"`
	HasNextPage bool         `json:"has_next_page"`
}

// Scope bounds the set of assets under review: exactly one of AlbumID or
// the [Start, End) time range is set.
type Scope struct {
	AlbumID string `json:"album_id,omitempty"`
	Start   int64  `json:"start,omitempty"` // epoch ms, inclusive
	End     int64  `json:"end,omitempty"`   // epoch ms, exclusive
}

// IsRange reports whether the scope is a date range rather than an album.
func (s Scope) IsRange() bool {
	return s.AlbumID == ""
}

// Validate checks that the scope selects exactly one of album or range.
func (s Scope) Validate() error {
	if s.AlbumID != "" {
		if s.Start != 0 || s.End != 0 {
			return fmt.Errorf("scope cannot set both album and date range")
		}
		return nil
	}
	if s.Start == 0 && s.End == 0 {
		return fmt.Errorf("scope must set an album or a date range")
	}
	if s.End <= s.Start {
		return fmt.Errorf("scope range end must be after start")
	}
	return nil
}

// Label returns the user-facing period label for ledger entries:
// "January 2006" for ranges, the album id otherwise.
func (s Scope) Label() string {
	if !s.IsRange() {
		return s.AlbumID
	}
	return time.UnixMilli(s.Start).UTC().Format("January 2006")
}

// Key returns a stable identifier for cache entries and progress markers.
func (s Scope) Key() string {
	if !s.IsRange() {
		return "album/" + s.AlbumID
	}
	return "month/" + time.UnixMilli(s.Start).UTC().Format("2006-01")
}

// MonthScope returns the calendar-month scope containing t.
func MonthScope(t time.Time) Scope {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Scope{
		Start: start.UnixMilli(),
		End:   start.AddDate(0, 1, 0).UnixMilli(),
	}
}

// Provider is the interface for photo library backends.
//
// Enumeration is ordered by TakenAt descending and paginated with opaque
// cursors; cursors are provider-issued and never recomputed by callers.
// Delete is all-or-nothing per invocation. Providers may have unbounded
// latency and occasional per-item failure; callers absorb both.
type Provider interface {
	// FirstPage returns the first page of descriptors for a scope.
	FirstPage(ctx context.Context, scope Scope, pageSize int) (Page, error)

	// NextPage continues enumeration after the given cursor. An
	// unresolvable cursor yields an empty page with HasNextPage=false,
	// not an error.
	NextPage(ctx context.Context, scope Scope, after string, pageSize int) (Page, error)

	// NearestBefore returns the TakenAt of the newest asset strictly
	// older than ts, or ok=false if none exists.
	NearestBefore(ctx context.Context, ts int64) (int64, bool, error)

	// Resolve materializes a descriptor into a concrete URI and exact
	// byte size where possible.
	Resolve(ctx context.Context, d Descriptor) (Resolution, error)

	// Delete removes the given assets in a single bulk operation.
	Delete(ctx context.Context, ids []string) error

	// Type returns the provider type identifier ("local", "pg", "s3", "memory").
	Type() string

	// Close releases any resources held by the provider.
	Close() error
}
