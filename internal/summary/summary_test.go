package summary

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/photosweep/photosweep/internal/photostore"
	"github.com/photosweep/photosweep/internal/photostore/memory"
	"github.com/photosweep/photosweep/internal/scopecache"
)

func seedMonth(p *memory.Provider, year int, month time.Month, n int) {
	base := time.Date(year, month, 10, 0, 0, 0, 0, time.UTC).UnixMilli()
	for i := 0; i < n; i++ {
		p.Add(photostore.Descriptor{
			ID:      fmt.Sprintf("%d-%02d-%03d", year, month, i),
			TakenAt: base - int64(i)*1000,
			Width:   2000,
			Height:  1500,
		}, 1000)
	}
}

func TestMonthsNewestFirstSkippingEmpty(t *testing.T) {
	p := memory.New()
	seedMonth(p, 2024, time.March, 4)
	seedMonth(p, 2024, time.January, 2) // february empty
	seedMonth(p, 2023, time.December, 1)

	s := New(p, nil)
	months, err := s.Months(context.Background(), 10)
	if err != nil {
		t.Fatalf("Months: %v", err)
	}

	want := []string{"2024-03", "2024-01", "2023-12"}
	if len(months) != len(want) {
		t.Fatalf("got %d months, want %d", len(months), len(want))
	}
	for i, m := range months {
		if m.Month != want[i] {
			t.Errorf("months[%d] = %s, want %s", i, m.Month, want[i])
		}
	}
	if months[0].Count != 4 {
		t.Errorf("march count = %d, want 4", months[0].Count)
	}
	if months[0].Bytes <= 0 {
		t.Error("march byte total missing")
	}
}

func TestMonthsHonorsLimit(t *testing.T) {
	p := memory.New()
	seedMonth(p, 2024, time.March, 1)
	seedMonth(p, 2024, time.February, 1)
	seedMonth(p, 2024, time.January, 1)

	s := New(p, nil)
	months, err := s.Months(context.Background(), 2)
	if err != nil {
		t.Fatalf("Months: %v", err)
	}
	if len(months) != 2 {
		t.Fatalf("got %d months, want 2", len(months))
	}
}

func TestMonthsEmptyLibrary(t *testing.T) {
	s := New(memory.New(), nil)
	months, err := s.Months(context.Background(), 5)
	if err != nil {
		t.Fatalf("Months: %v", err)
	}
	if len(months) != 0 {
		t.Fatalf("got %d months for empty library", len(months))
	}
}

func TestMonthsMemoizesInCache(t *testing.T) {
	p := memory.New()
	seedMonth(p, 2024, time.January, 3)

	cache, err := scopecache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	s := New(p, cache)
	if _, err := s.Months(context.Background(), 5); err != nil {
		t.Fatalf("first Months: %v", err)
	}

	cached, hit := cache.GetSummary("2024-01")
	if !hit {
		t.Fatal("summary not cached after build")
	}
	if cached.Count != 3 {
		t.Fatalf("cached count = %d, want 3", cached.Count)
	}

	// A second pass serves the stored summary even if the library shrank.
	p.Delete(context.Background(), []string{"2024-01-000"})
	months, err := s.Months(context.Background(), 5)
	if err != nil {
		t.Fatalf("second Months: %v", err)
	}
	if len(months) != 1 || months[0].Count != 3 {
		t.Fatalf("expected cached summary, got %+v", months)
	}
}
