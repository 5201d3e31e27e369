package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/photosweep/photosweep/internal/photostore"
	"github.com/photosweep/photosweep/internal/photostore/memory"
)

func seedProvider(t *testing.T, n int) (*memory.Provider, []photostore.Descriptor) {
	t.Helper()
	p := memory.New()
	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC).UnixMilli()
	descs := make([]photostore.Descriptor, n)
	for i := 0; i < n; i++ {
		d := photostore.Descriptor{
			ID:      fmt.Sprintf("photo-%03d", i),
			TakenAt: base - int64(i)*60_000,
			Width:   4000,
			Height:  3000,
		}
		p.Add(d, int64(1_000_000+i))
		descs[i] = d
	}
	return p, descs
}

func TestLoadPriorityResolvesAll(t *testing.T) {
	p, descs := seedProvider(t, 5)
	l := NewStagedLoader(p, 3, 8, 0)

	assets := l.LoadPriority(context.Background(), descs)
	if len(assets) != 5 {
		t.Fatalf("expected 5 assets, got %d", len(assets))
	}
	for i, a := range assets {
		if a.ID != descs[i].ID {
			t.Errorf("asset %d out of order: got %s want %s", i, a.ID, descs[i].ID)
		}
		if !a.Loaded() {
			t.Errorf("asset %s not loaded", a.ID)
		}
		if !a.SizeExact {
			t.Errorf("asset %s missing exact size", a.ID)
		}
	}
}

func TestLoadPriorityFailureDegradesToPlaceholder(t *testing.T) {
	p, descs := seedProvider(t, 3)
	p.SetResolveErr(descs[1].ID, errors.New("blob missing"))
	l := NewStagedLoader(p, 2, 8, 0)

	assets := l.LoadPriority(context.Background(), descs)
	if assets[0].State != StateLoaded || assets[2].State != StateLoaded {
		t.Error("healthy assets not loaded")
	}
	if assets[1].State != StatePlaceholder {
		t.Errorf("failed asset state = %v, want placeholder", assets[1].State)
	}
	if assets[1].ByteSize != EstimateByteSize(descs[1].Width, descs[1].Height) {
		t.Error("failed asset did not keep its size estimate")
	}
}

func TestLoadBackgroundBatches(t *testing.T) {
	p, descs := seedProvider(t, 10)
	l := NewStagedLoader(p, 3, 4, 0)

	ctrl := NewController()
	sess := ctrl.Begin(photostore.Scope{AlbumID: "a"})

	var applied [][]Asset
	var progress []int
	l.LoadBackground(context.Background(), ctrl, sess, descs,
		func(batch []Asset) bool {
			applied = append(applied, batch)
			return true
		},
		func(loaded, total int) {
			progress = append(progress, loaded)
			if total != 10 {
				t.Errorf("total = %d, want 10", total)
			}
		},
	)

	if len(applied) != 3 {
		t.Fatalf("expected 3 batches (4+4+2), got %d", len(applied))
	}
	if len(applied[2]) != 2 {
		t.Errorf("final batch size = %d, want 2", len(applied[2]))
	}
	want := []int{4, 8, 10}
	for i, got := range progress {
		if got != want[i] {
			t.Errorf("progress[%d] = %d, want %d", i, got, want[i])
		}
	}
}

func TestLoadBackgroundStopsWhenSuperseded(t *testing.T) {
	p, descs := seedProvider(t, 20)
	l := NewStagedLoader(p, 3, 4, 0)

	ctrl := NewController()
	sess := ctrl.Begin(photostore.Scope{AlbumID: "a"})

	batches := 0
	l.LoadBackground(context.Background(), ctrl, sess, descs,
		func(batch []Asset) bool {
			batches++
			if batches == 2 {
				// A new scope supersedes the session mid-load.
				ctrl.Begin(photostore.Scope{AlbumID: "b"})
			}
			return true
		},
		nil,
	)

	if batches != 2 {
		t.Fatalf("expected loading to stop after 2 batches, got %d", batches)
	}
}

func TestLoadBackgroundStopsWhenApplyRejects(t *testing.T) {
	p, descs := seedProvider(t, 12)
	l := NewStagedLoader(p, 3, 4, 0)

	ctrl := NewController()
	sess := ctrl.Begin(photostore.Scope{AlbumID: "a"})

	batches := 0
	l.LoadBackground(context.Background(), ctrl, sess, descs,
		func(batch []Asset) bool {
			batches++
			return false
		},
		nil,
	)
	if batches != 1 {
		t.Fatalf("expected loading to stop after rejected apply, got %d batches", batches)
	}
}

func TestLoadBackgroundHonorsContext(t *testing.T) {
	p, descs := seedProvider(t, 12)
	l := NewStagedLoader(p, 3, 4, 0)

	ctrl := NewController()
	sess := ctrl.Begin(photostore.Scope{AlbumID: "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l.LoadBackground(ctx, ctrl, sess, descs,
		func(batch []Asset) bool {
			t.Error("apply called under cancelled context")
			return true
		},
		nil,
	)
}
