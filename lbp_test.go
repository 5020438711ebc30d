package facedetect

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// grayImage builds an image from the given rows of gray values.
func grayImage(rows [][]uint8) *Image {
	gray := image.NewGray(image.Rect(0, 0, len(rows[0]), len(rows)))
	for y, row := range rows {
		for x, v := range row {
			gray.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return NewImage(gray)
}

func TestLBPExtractor_FeatureCount(t *testing.T) {
	testCases := []struct {
		name string
		cfg  ExtractorConfig
		want int
	}{
		{name: "single", cfg: ExtractorConfig{PatchHeight: 3, PatchWidth: 3}, want: 1},
		{name: "all", cfg: ExtractorConfig{PatchHeight: 6, PatchWidth: 6}, want: 25},
		{name: "square", cfg: ExtractorConfig{PatchHeight: 6, PatchWidth: 6, Square: true}, want: 17},
		{name: "overlap", cfg: ExtractorConfig{PatchHeight: 6, PatchWidth: 6, Overlap: true}, want: 9},
		{name: "max size", cfg: ExtractorConfig{PatchHeight: 6, PatchWidth: 6, MaxSize: 1}, want: 16},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := NewLBPExtractor(tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.want, e.NumFeatures())
		})
	}
}

func TestLBPExtractor_ShouldRejectTinyPatch(t *testing.T) {
	_, err := NewLBPExtractor(ExtractorConfig{PatchHeight: 2, PatchWidth: 2})
	assert.Error(t, err)
	_, err = NewLBPExtractor(ExtractorConfig{})
	assert.Error(t, err)
}

func TestLBPExtractor_FeaturesShouldFitIntoPatch(t *testing.T) {
	cfg := ExtractorConfig{PatchHeight: 24, PatchWidth: 20, Overlap: true}
	e, err := NewLBPExtractor(cfg)
	require.NoError(t, err)
	for i := 0; i < e.NumFeatures(); i++ {
		f := e.Feature(i)
		h, w := f.extent()
		assert.LessOrEqual(t, f.Y+h, cfg.PatchHeight)
		assert.LessOrEqual(t, f.X+w, cfg.PatchWidth)
	}
}

func TestLBPExtractor_Code(t *testing.T) {
	img := grayImage([][]uint8{
		{10, 20, 30},
		{40, 25, 5},
		{25, 0, 100},
	})
	e, err := NewLBPExtractor(ExtractorConfig{PatchHeight: 3, PatchWidth: 3})
	require.NoError(t, err)

	// clockwise from the top-left neighbor, neighbors not darker than the center set their bit
	assert.Equal(t, uint8(0b00101011), e.Code(img, 0, 0, 0))
	assert.Equal(t, []uint8{0b00101011}, e.Extract(img, box(0, 0, 3, 3)))
}

func TestLBPExtractor_CodeOfUniformPatch(t *testing.T) {
	img := blankImage(12, 12)
	e, err := NewLBPExtractor(ExtractorConfig{PatchHeight: 6, PatchWidth: 6})
	require.NoError(t, err)
	for _, c := range e.Extract(img, box(3, 3, 6, 6)) {
		assert.Equal(t, uint8(0xff), c)
	}
}

func TestBoostedScorer(t *testing.T) {
	assert := assert.New(t)

	img := gradientImage(30, 30)
	e, err := NewLBPExtractor(ExtractorConfig{PatchHeight: 6, PatchWidth: 6})
	require.NoError(t, err)

	lut := func(scale float64) []float64 {
		l := make([]float64, MaxLabel)
		for i := range l {
			l[i] = float64(i) * scale
		}
		return l
	}
	weak := []WeakClassifier{{Feature: 0, LUT: lut(1)}, {Feature: 24, LUT: lut(-0.5)}}
	s, err := NewBoostedScorer(e, weak)
	require.NoError(t, err)

	bb := box(7, 4, 6, 6)
	features := e.Extract(img, bb)
	want := float64(features[0]) - 0.5*float64(features[24])
	assert.Equal(want, s.Score(img, bb))
	assert.Equal(want, s.ScoreFeatures(features))

	_, err = NewBoostedScorer(e, []WeakClassifier{{Feature: 25, LUT: lut(1)}})
	assert.Error(err)
	_, err = NewBoostedScorer(e, []WeakClassifier{{Feature: 0, LUT: lut(1)[:10]}})
	assert.Error(err)
	_, err = NewBoostedScorer(e, nil)
	assert.Error(err)
	_, err = NewBoostedScorer(nil, weak)
	assert.Error(err)
}
