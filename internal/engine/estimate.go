package engine

// minEstimate is the floor for estimated asset sizes.
const minEstimate = 50 * 1024

// EstimateByteSize estimates a photo's on-disk size from its pixel count
// using a tiered bytes-per-pixel heuristic. The estimate is a pure function
// of width and height.
func EstimateByteSize(width, height int) int64 {
	pixels := float64(width) * float64(height)

	bytesPerPixel := 0.3
	switch {
	case pixels > 12_000_000:
		bytesPerPixel = 0.4
	case pixels > 8_000_000:
		bytesPerPixel = 0.35
	case pixels < 2_000_000:
		bytesPerPixel = 0.25
	}

	size := int64(pixels * bytesPerPixel)
	if size < minEstimate {
		return minEstimate
	}
	return size
}
