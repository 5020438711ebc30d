package facedetect

import (
	"math"

	"github.com/pkg/errors"
)

// MaxLabel is the number of different codes a single LBP feature can produce.
const MaxLabel = 256

// ExtractorConfig defines the set of multi-block LBP features computed on a patch.
type ExtractorConfig struct {
	PatchHeight int `yaml:"patch_height"`
	PatchWidth  int `yaml:"patch_width"`
	// Square restricts the blocks to the same height and width.
	Square bool `yaml:"square"`
	// Overlap lets neighboring blocks share their border row or column.
	Overlap bool `yaml:"overlap"`
	// MinSize and MaxSize bound the block size. A MaxSize of zero is limited by the patch size only.
	MinSize int `yaml:"min_size"`
	MaxSize int `yaml:"max_size,omitempty"`
}

// Feature is a single multi-block LBP: a 3x3 grid of blocks with the given
// block size and top-left corner relative to the patch.
type Feature struct {
	Y, X                    int
	BlockHeight, BlockWidth int
	// step is the offset between two neighboring blocks.
	stepY, stepX int
}

// extent returns the height and width covered by the 3x3 block grid.
func (f Feature) extent() (int, int) {
	return 2*f.stepY + f.BlockHeight, 2*f.stepX + f.BlockWidth
}

// neighbors lists the block offsets in clockwise order, starting at the top-left block.
var neighbors = [8][2]int{{0, 0}, {0, 1}, {0, 2}, {1, 2}, {2, 2}, {2, 1}, {2, 0}, {1, 0}}

// LBPExtractor computes multi-block local binary pattern codes from the integral image.
type LBPExtractor struct {
	config   ExtractorConfig
	features []Feature
}

// NewLBPExtractor enumerates every feature which fits into the configured patch.
func NewLBPExtractor(cfg ExtractorConfig) (*LBPExtractor, error) {
	if cfg.PatchHeight <= 0 || cfg.PatchWidth <= 0 {
		return nil, errors.Errorf("invalid patch size %dx%d", cfg.PatchHeight, cfg.PatchWidth)
	}
	if cfg.MinSize <= 0 {
		cfg.MinSize = 1
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = math.MaxInt32
	}

	step := func(size int) int {
		if cfg.Overlap {
			return size - 1
		}
		return size
	}

	e := &LBPExtractor{config: cfg}
	for bh := cfg.MinSize; bh <= maxSize; bh++ {
		if cfg.Overlap && bh < 2 {
			continue
		}
		if 2*step(bh)+bh > cfg.PatchHeight {
			break
		}
		for bw := cfg.MinSize; bw <= maxSize; bw++ {
			if cfg.Square && bw > bh {
				break
			}
			if (cfg.Square && bw != bh) || (cfg.Overlap && bw < 2) {
				continue
			}
			f := Feature{BlockHeight: bh, BlockWidth: bw, stepY: step(bh), stepX: step(bw)}
			h, w := f.extent()
			if w > cfg.PatchWidth {
				break
			}
			for y := 0; y+h <= cfg.PatchHeight; y++ {
				for x := 0; x+w <= cfg.PatchWidth; x++ {
					f.Y, f.X = y, x
					e.features = append(e.features, f)
				}
			}
		}
	}
	if len(e.features) == 0 {
		return nil, errors.Errorf("no LBP feature fits into a %dx%d patch", cfg.PatchHeight, cfg.PatchWidth)
	}
	return e, nil
}

// Config returns the configuration the extractor was created with.
func (e *LBPExtractor) Config() ExtractorConfig { return e.config }

// NumFeatures returns the length of the extracted feature vector.
func (e *LBPExtractor) NumFeatures() int { return len(e.features) }

// Feature returns the feature with the given index.
func (e *LBPExtractor) Feature(index int) Feature { return e.features[index] }

// Code computes the LBP code of the feature with the given index for the patch
// whose top-left corner is at (top, left) in img.
func (e *LBPExtractor) Code(img *Image, top, left, index int) uint8 {
	f := e.features[index]
	y0, x0 := top+f.Y, left+f.X
	center := img.BlockSum(y0+f.stepY, x0+f.stepX, f.BlockHeight, f.BlockWidth)

	var code uint8
	for bit, n := range neighbors {
		s := img.BlockSum(y0+n[0]*f.stepY, x0+n[1]*f.stepX, f.BlockHeight, f.BlockWidth)
		if s >= center {
			code |= 1 << uint(7-bit)
		}
	}
	return code
}

// Extract computes all feature codes of the patch at the given window of img.
// The window must have the patch size of the extractor and lie inside the image.
func (e *LBPExtractor) Extract(img *Image, box BoundingBox) []uint8 {
	top, left := e.origin(box)
	codes := make([]uint8, len(e.features))
	for i := range e.features {
		codes[i] = e.Code(img, top, left, i)
	}
	return codes
}

func (e *LBPExtractor) origin(box BoundingBox) (int, int) {
	return int(math.Round(box.Top)), int(math.Round(box.Left))
}
