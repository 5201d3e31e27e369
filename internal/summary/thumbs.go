package summary

import (
	"bytes"
	"image/jpeg"
	"os"

	"github.com/disintegration/imaging"
)

const (
	thumbMaxSize = 240
	thumbQuality = 80
)

// thumbFromFile reads a device-local image file and returns a JPEG
// thumbnail fitting within thumbMaxSize. Non-file URIs (s3://...) and
// undecodable images are reported as errors; callers treat a missing
// thumbnail as cosmetic.
func thumbFromFile(uri string) ([]byte, error) {
	f, err := os.Open(uri)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	thumb := imaging.Fit(img, thumbMaxSize, thumbMaxSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: thumbQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
