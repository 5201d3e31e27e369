package photostore

import (
	"testing"
	"time"
)

func TestScopeValidate(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	if err := (Scope{AlbumID: "trip"}).Validate(); err != nil {
		t.Errorf("album scope rejected: %v", err)
	}
	if err := (Scope{Start: jan, End: feb}).Validate(); err != nil {
		t.Errorf("range scope rejected: %v", err)
	}
	if err := (Scope{}).Validate(); err == nil {
		t.Error("empty scope accepted")
	}
	if err := (Scope{Start: feb, End: jan}).Validate(); err == nil {
		t.Error("inverted range accepted")
	}
	if err := (Scope{AlbumID: "trip", Start: jan, End: feb}).Validate(); err == nil {
		t.Error("scope with both album and range accepted")
	}
}

func TestScopeKeyAndLabel(t *testing.T) {
	scope := MonthScope(time.Date(2024, 3, 17, 10, 0, 0, 0, time.UTC))

	if got := scope.Key(); got != "month/2024-03" {
		t.Errorf("key = %s, want month/2024-03", got)
	}
	if got := scope.Label(); got != "March 2024" {
		t.Errorf("label = %s, want March 2024", got)
	}

	album := Scope{AlbumID: "trip"}
	if got := album.Key(); got != "album/trip" {
		t.Errorf("album key = %s", got)
	}
	if got := album.Label(); got != "trip" {
		t.Errorf("album label = %s", got)
	}
}

func TestMonthScopeBounds(t *testing.T) {
	scope := MonthScope(time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC))

	wantStart := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	wantEnd := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	if scope.Start != wantStart || scope.End != wantEnd {
		t.Fatalf("february scope = [%d, %d), want [%d, %d)",
			scope.Start, scope.End, wantStart, wantEnd)
	}
	if !scope.IsRange() {
		t.Fatal("month scope not a range")
	}
}
