package photostore

import (
	"fmt"
	"testing"
)

func all(Descriptor) bool { return true }

func indexOf(n int) *Index {
	ix := NewIndex()
	descs := make([]Descriptor, n)
	for i := 0; i < n; i++ {
		descs[i] = Descriptor{
			ID:      fmt.Sprintf("d%03d", i),
			TakenAt: int64(1000 + i),
		}
	}
	ix.Replace(descs)
	return ix
}

func TestIndexOrdering(t *testing.T) {
	ix := NewIndex()
	ix.Replace([]Descriptor{
		{ID: "a", TakenAt: 100},
		{ID: "c", TakenAt: 300},
		{ID: "b", TakenAt: 200},
	})

	page := ix.Page(all, "", 10)
	got := []string{page.Items[0].ID, page.Items[1].ID, page.Items[2].ID}
	want := []string{"c", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestIndexTiebreakByID(t *testing.T) {
	ix := NewIndex()
	ix.Replace([]Descriptor{
		{ID: "x", TakenAt: 100},
		{ID: "z", TakenAt: 100},
		{ID: "y", TakenAt: 100},
	})

	page := ix.Page(all, "", 10)
	if page.Items[0].ID != "z" || page.Items[2].ID != "x" {
		t.Fatalf("tiebreak order wrong: %v", page.Items)
	}
}

func TestIndexAddKeepsOrder(t *testing.T) {
	ix := indexOf(5)
	ix.Add(Descriptor{ID: "mid", TakenAt: 1002})

	page := ix.Page(all, "", 10)
	prev := page.Items[0]
	for _, d := range page.Items[1:] {
		if d.TakenAt > prev.TakenAt {
			t.Fatalf("order broken after insert: %v before %v", prev.ID, d.ID)
		}
		prev = d
	}
	if ix.Len() != 6 {
		t.Fatalf("len = %d, want 6", ix.Len())
	}
}

func TestIndexPagination(t *testing.T) {
	ix := indexOf(7)

	first := ix.Page(all, "", 3)
	if len(first.Items) != 3 || !first.HasNextPage {
		t.Fatalf("first page: %d items, hasNext=%v", len(first.Items), first.HasNextPage)
	}

	second := ix.Page(all, first.EndCursor, 3)
	if len(second.Items) != 3 || !second.HasNextPage {
		t.Fatalf("second page: %d items, hasNext=%v", len(second.Items), second.HasNextPage)
	}
	if second.Items[0].ID == first.Items[2].ID {
		t.Fatal("cursor item repeated on the next page")
	}

	third := ix.Page(all, second.EndCursor, 3)
	if len(third.Items) != 1 || third.HasNextPage {
		t.Fatalf("third page: %d items, hasNext=%v", len(third.Items), third.HasNextPage)
	}
}

func TestIndexUnresolvableCursor(t *testing.T) {
	ix := indexOf(5)
	page := ix.Page(all, "no-such-id", 3)
	if len(page.Items) != 0 || page.HasNextPage {
		t.Fatalf("expected exhausted page for bad cursor, got %+v", page)
	}
}

func TestIndexRemove(t *testing.T) {
	ix := indexOf(5)
	ix.Remove([]string{"d001", "d003"})

	if ix.Len() != 3 {
		t.Fatalf("len = %d after remove, want 3", ix.Len())
	}
	if _, ok := ix.Get("d001"); ok {
		t.Fatal("removed descriptor still present")
	}
	if _, ok := ix.Get("d002"); !ok {
		t.Fatal("surviving descriptor lost")
	}
}

func TestIndexNearestBefore(t *testing.T) {
	ix := indexOf(5) // TakenAt 1000..1004

	if ts, ok := ix.NearestBefore(1003); !ok || ts != 1002 {
		t.Fatalf("NearestBefore(1003) = %d, %v; want 1002, true", ts, ok)
	}
	if _, ok := ix.NearestBefore(1000); ok {
		t.Fatal("expected no match strictly before the oldest entry")
	}
}
