package engine

import "testing"

func TestEstimateByteSizeTiers(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		want   int64
	}{
		{"large sensor", 4000, 4000, int64(16_000_000 * 0.4)},
		{"mid sensor", 3000, 3000, int64(9_000_000 * 0.35)},
		{"default tier", 2000, 2000, int64(4_000_000 * 0.3)},
		{"small image", 1500, 1000, int64(1_500_000 * 0.25)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateByteSize(tt.width, tt.height)
			if got != tt.want {
				t.Errorf("EstimateByteSize(%d, %d) = %d, want %d",
					tt.width, tt.height, got, tt.want)
			}
		})
	}
}

func TestEstimateByteSizeFloor(t *testing.T) {
	if got := EstimateByteSize(100, 100); got != minEstimate {
		t.Errorf("expected floor %d for tiny image, got %d", minEstimate, got)
	}
	if got := EstimateByteSize(0, 0); got != minEstimate {
		t.Errorf("expected floor %d for zero dimensions, got %d", minEstimate, got)
	}
}

func TestEstimateByteSizeDeterministic(t *testing.T) {
	a := EstimateByteSize(4032, 3024)
	b := EstimateByteSize(4032, 3024)
	if a != b {
		t.Errorf("estimate not deterministic: %d vs %d", a, b)
	}
}
