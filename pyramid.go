package facedetect

import (
	"math"

	"github.com/pkg/errors"
)

// Config holds the geometry of the window search.
type Config struct {
	// PatchHeight and PatchWidth define the size of the classifier window in the scaled image.
	PatchHeight int `yaml:"patch_height"`
	PatchWidth  int `yaml:"patch_width"`
	// Distance is the step in pixels between two neighboring windows of the scaled image.
	Distance int `yaml:"distance"`
	// ScaleBase is the logarithmic distance between two scales, in (0, 1).
	ScaleBase float64 `yaml:"scale_base"`
	// FirstScale is the largest scale that is considered.
	FirstScale float64 `yaml:"first_scale"`
	// MinimumScale stops the pyramid once the scale drops below it.
	// When zero, the pyramid stops once the patch does not fit into the scaled image anymore.
	MinimumScale float64 `yaml:"minimum_scale"`
	// LowestScale is the smallest face size relative to the image resolution which is searched.
	// When set, the first scale is lowered so that smaller faces are not scanned for. Zero disables it.
	LowestScale float64 `yaml:"lowest_scale"`
}

// DefaultConfig returns the configuration used for detection.
func DefaultConfig() Config {
	return Config{
		PatchHeight: 24,
		PatchWidth:  20,
		Distance:    2,
		ScaleBase:   math.Pow(2, -1./16.),
		FirstScale:  1,
		LowestScale: 0.125,
	}
}

// Validate checks that the configuration describes a finite search space.
func (c Config) Validate() error {
	switch {
	case c.PatchHeight <= 0 || c.PatchWidth <= 0:
		return errors.Errorf("invalid patch size %dx%d", c.PatchHeight, c.PatchWidth)
	case c.Distance <= 0:
		return errors.Errorf("invalid distance %d", c.Distance)
	case !(c.ScaleBase > 0 && c.ScaleBase < 1):
		return errors.Errorf("scale base %v must lie in (0, 1)", c.ScaleBase)
	case !(c.FirstScale > 0):
		return errors.Errorf("invalid first scale %v", c.FirstScale)
	case c.MinimumScale < 0 || c.LowestScale < 0:
		return errors.New("scale bounds must not be negative")
	}
	return nil
}

// Level is a single entry of the scale pyramid.
type Level struct {
	// Scale is the factor the image is resized with.
	Scale float64
	// ScaledHeight and ScaledWidth are the size of the resized image.
	ScaledHeight int
	ScaledWidth  int
	// Window is the patch mapped into original image coordinates, positioned at the origin.
	Window BoundingBox
	// Stride is the distance between two windows in original image coordinates.
	Stride float64
	// Rows and Cols count the window positions. Both are zero when the patch does not fit.
	Rows int
	Cols int
}

// Positions returns the number of windows of the level.
func (l Level) Positions() int { return l.Rows * l.Cols }

// fitScale is the smallest scale at which the patch still fits into the image.
func (c Config) fitScale(height, width int) float64 {
	return math.Max(float64(c.PatchHeight)/float64(height), float64(c.PatchWidth)/float64(width))
}

// Scales returns the strictly decreasing sequence of scales for an image of the given size.
func (c Config) Scales(height, width int) []float64 {
	if c.Validate() != nil || height <= 0 || width <= 0 {
		return nil
	}
	fit := c.fitScale(height, width)
	first := c.FirstScale
	if c.LowestScale > 0 {
		first = math.Min(first, fit/c.LowestScale)
	}
	floor := c.MinimumScale
	if floor <= 0 {
		floor = fit
	}
	if c.MinimumScale > 0 && c.MinimumScale >= c.FirstScale {
		return nil
	}

	var scales []float64
	for scale := first; scale >= floor; scale *= c.ScaleBase {
		scales = append(scales, scale)
	}
	return scales
}

// Pyramid computes all levels for an image of the given size, largest scale first.
func (c Config) Pyramid(height, width int) []Level {
	scales := c.Scales(height, width)
	levels := make([]Level, 0, len(scales))
	for _, scale := range scales {
		sh, sw := ScaledSize(height, width, scale)
		l := Level{
			Scale:        scale,
			ScaledHeight: sh,
			ScaledWidth:  sw,
			Window: BoundingBox{
				Height: float64(c.PatchHeight) / scale,
				Width:  float64(c.PatchWidth) / scale,
			},
			Stride: float64(c.Distance) / scale,
		}
		if sh >= c.PatchHeight && sw >= c.PatchWidth {
			l.Rows = (sh-c.PatchHeight)/c.Distance + 1
			l.Cols = (sw-c.PatchWidth)/c.Distance + 1
		}
		levels = append(levels, l)
	}
	return levels
}

// patch returns the window with the given row and column index in scaled image coordinates.
func (c Config) patch(row, col int) BoundingBox {
	return BoundingBox{
		Top:    float64(row * c.Distance),
		Left:   float64(col * c.Distance),
		Height: float64(c.PatchHeight),
		Width:  float64(c.PatchWidth),
	}
}
