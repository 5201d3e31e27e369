package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/photosweep/photosweep/internal/photostore"
)

func seed(p *Provider, n int) {
	base := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC).UnixMilli()
	for i := 0; i < n; i++ {
		p.Add(photostore.Descriptor{
			ID:      fmt.Sprintf("p%03d", i),
			TakenAt: base - int64(i)*1000,
			Width:   2000,
			Height:  1500,
		}, int64(100+i))
	}
}

func TestPagingNewestFirst(t *testing.T) {
	p := New()
	seed(p, 5)
	scope := photostore.MonthScope(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	page, err := p.FirstPage(context.Background(), scope, 3)
	if err != nil {
		t.Fatalf("FirstPage: %v", err)
	}
	if len(page.Items) != 3 || !page.HasNextPage {
		t.Fatalf("page: %d items, hasNext=%v", len(page.Items), page.HasNextPage)
	}
	if page.Items[0].ID != "p000" {
		t.Fatalf("first item = %s, want newest p000", page.Items[0].ID)
	}

	next, err := p.NextPage(context.Background(), scope, page.EndCursor, 3)
	if err != nil {
		t.Fatalf("NextPage: %v", err)
	}
	if len(next.Items) != 2 || next.HasNextPage {
		t.Fatalf("next page: %d items, hasNext=%v", len(next.Items), next.HasNextPage)
	}
}

func TestAlbumScopeByPrefix(t *testing.T) {
	p := New()
	now := time.Now().UnixMilli()
	p.Add(photostore.Descriptor{ID: "trip/a", TakenAt: now}, 1)
	p.Add(photostore.Descriptor{ID: "trip/b", TakenAt: now - 1}, 1)
	p.Add(photostore.Descriptor{ID: "other/c", TakenAt: now - 2}, 1)

	page, err := p.FirstPage(context.Background(), photostore.Scope{AlbumID: "trip"}, 10)
	if err != nil {
		t.Fatalf("FirstPage: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("album page has %d items, want 2", len(page.Items))
	}
	for _, d := range page.Items {
		if d.ID == "other/c" {
			t.Fatal("foreign album leaked into page")
		}
	}
}

func TestResolveReportsExactSize(t *testing.T) {
	p := New()
	seed(p, 1)

	res, err := p.Resolve(context.Background(), photostore.Descriptor{ID: "p000"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.ByteSize != 100 {
		t.Errorf("size = %d, want 100", res.ByteSize)
	}
	if res.URI == "" {
		t.Error("resolution missing URI")
	}

	if _, err := p.Resolve(context.Background(), photostore.Descriptor{ID: "missing"}); err == nil {
		t.Error("expected error for unknown asset")
	}
}

func TestDeleteAllOrNothing(t *testing.T) {
	p := New()
	seed(p, 3)
	ctx := context.Background()

	if err := p.Delete(ctx, []string{"p000", "missing"}); err == nil {
		t.Fatal("expected error for partially unknown batch")
	}
	if p.Len() != 3 {
		t.Fatalf("partial delete happened: %d assets left", p.Len())
	}

	if err := p.Delete(ctx, []string{"p000", "p002"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if p.Len() != 1 {
		t.Fatalf("len = %d after delete, want 1", p.Len())
	}
}

func TestFaultInjection(t *testing.T) {
	p := New()
	seed(p, 2)
	ctx := context.Background()
	scope := photostore.MonthScope(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	boom := errors.New("boom")
	p.SetPageErr(boom)
	if _, err := p.FirstPage(ctx, scope, 10); !errors.Is(err, boom) {
		t.Errorf("page error not injected: %v", err)
	}
	p.SetPageErr(nil)
	if _, err := p.FirstPage(ctx, scope, 10); err != nil {
		t.Errorf("page error not cleared: %v", err)
	}

	p.SetResolveErr("p000", boom)
	if _, err := p.Resolve(ctx, photostore.Descriptor{ID: "p000"}); !errors.Is(err, boom) {
		t.Errorf("resolve error not injected: %v", err)
	}
	p.SetResolveErr("p000", nil)
	if _, err := p.Resolve(ctx, photostore.Descriptor{ID: "p000"}); err != nil {
		t.Errorf("resolve error not cleared: %v", err)
	}
}
