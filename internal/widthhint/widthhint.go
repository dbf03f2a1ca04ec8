// Package widthhint derives a display-width annotation for an image from
// its decoded pixel width using three configurable size tiers.
package widthhint

import (
	"bytes"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Tiers holds the three ascending pixel thresholds and the display width
// each maps to. Widths at or below SmallThreshold keep their own value, so
// small images are never scaled.
type Tiers struct {
	LargeThreshold  int
	MediumThreshold int
	SmallThreshold  int
	LargeWidth      int
	MediumWidth     int
	SmallWidth      int
}

// DefaultTiers returns the shipped tier configuration.
func DefaultTiers() Tiers {
	return Tiers{
		LargeThreshold:  1600,
		MediumThreshold: 1200,
		SmallThreshold:  800,
		LargeWidth:      800,
		MediumWidth:     600,
		SmallWidth:      400,
	}
}

// Classify maps a pixel width to a display width. Comparisons are strict,
// so a width exactly on a threshold falls into the tier below it.
func (t Tiers) Classify(pixelWidth int) int {
	switch {
	case pixelWidth > t.LargeThreshold:
		return t.LargeWidth
	case pixelWidth > t.MediumThreshold:
		return t.MediumWidth
	case pixelWidth > t.SmallThreshold:
		return t.SmallWidth
	default:
		return pixelWidth
	}
}

// Detect decodes just the image header of data and returns the classified
// display width. Undecodable bytes yield ok=false; the caller omits the
// annotation instead of failing the upload.
func (t Tiers) Detect(data []byte) (width int, ok bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, false
	}
	return t.Classify(cfg.Width), true
}
