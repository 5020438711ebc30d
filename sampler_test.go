package facedetect

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scorerOfPatch scores a window by the mean gray value of the patch.
var scorerOfPatch = ScorerFunc(func(img *Image, bb BoundingBox) float64 {
	r := bb.Rect()
	return float64(img.BlockSum(r.Min.Y, r.Min.X, r.Dy(), r.Dx())) / float64(r.Dx()*r.Dy())
})

func gradientImage(h, w int) *Image {
	gray := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray.SetGray(x, y, color.Gray{Y: uint8((x*3 + y*5) % 256)})
		}
	}
	return NewImage(gray)
}

func testSampler(t *testing.T) *Sampler {
	cfg := Config{PatchHeight: 24, PatchWidth: 20, Distance: 4, ScaleBase: math.Pow(2, -1./4.), FirstScale: 1}
	s, err := NewSampler(cfg)
	require.NoError(t, err)
	return s
}

func TestSampler_ShouldRejectInvalidConfig(t *testing.T) {
	_, err := NewSampler(Config{})
	assert.Error(t, err)
}

func TestSampler_ScanShouldVisitEveryWindow(t *testing.T) {
	assert := assert.New(t)

	s := testSampler(t)
	img := blankImage(96, 80)
	scorer := &countingScorer{score: 1}

	var expected int
	for _, l := range s.Pyramid(img.Height(), img.Width()) {
		expected += l.Positions()
	}

	var visited int
	sc := s.Scan(img, Single(scorer, 0))
	assert.Equal(Level{}, sc.Level(), "no level before the first window")
	for sc.Next() {
		c := sc.Candidate()
		scale := sc.Level().Scale
		// the scaled image size is rounded, so a window may exceed the border by half a scaled pixel
		assert.GreaterOrEqual(c.Box.Top, 0.0)
		assert.GreaterOrEqual(c.Box.Left, 0.0)
		assert.LessOrEqual(c.Box.Bottom(), float64(img.Height())+0.5/scale+1e-9)
		assert.LessOrEqual(c.Box.Right(), float64(img.Width())+0.5/scale+1e-9)
		assert.InDelta(24/scale, c.Box.Height, 1e-9)
		visited++
	}
	assert.Equal(expected, visited)
	assert.EqualValues(expected, scorer.calls)
	assert.False(sc.Next(), "a finished scan stays finished")
	assert.Equal(Level{}, sc.Level())
}

func TestSampler_ScanOrder(t *testing.T) {
	s := testSampler(t)
	sc := s.Scan(blankImage(28, 28), Single(&countingScorer{}, 0))

	var boxes []BoundingBox
	for sc.Next() {
		boxes = append(boxes, sc.Candidate().Box)
	}
	// the first level is scanned row by row
	require.GreaterOrEqual(t, len(boxes), 4)
	assert.Equal(t, box(0, 0, 24, 20), boxes[0])
	assert.Equal(t, box(0, 4, 24, 20), boxes[1])
	assert.Equal(t, box(0, 8, 24, 20), boxes[2])
	assert.Equal(t, box(4, 0, 24, 20), boxes[3])
}

func TestSampler_DetectShouldMatchFilteredScan(t *testing.T) {
	img := gradientImage(120, 100)
	c := Single(scorerOfPatch, 100)
	threshold := 120.0

	for _, workers := range []int{1, 3, 8} {
		s := testSampler(t)
		s.Workers = workers

		var want []Candidate
		sc := s.Scan(img, c)
		for sc.Next() {
			cand := sc.Candidate()
			if cand.Accepted && cand.Score > threshold {
				want = append(want, cand)
			}
		}
		got := s.Detect(img, c, &threshold)
		assert.NotEmpty(t, got)
		assert.Equal(t, want, got, "workers: %d", workers)
	}
}

func TestSampler_DetectWithoutThreshold(t *testing.T) {
	s := testSampler(t)
	img := gradientImage(60, 50)

	all := s.Detect(img, Single(&countingScorer{score: 1}, 0), nil)
	var windows int
	for _, l := range s.Pyramid(img.Height(), img.Width()) {
		windows += l.Positions()
	}
	assert.Len(t, all, windows)

	none := s.Detect(img, Single(&countingScorer{score: -1}, 0), nil)
	assert.Empty(t, none)
}

func TestSampler_SmallImageShouldYieldNothing(t *testing.T) {
	s := testSampler(t)
	img := blankImage(10, 10)

	assert.False(t, s.Scan(img, Single(&countingScorer{}, 0)).Next())
	assert.Empty(t, s.Detect(img, Single(&countingScorer{score: 1}, 0), nil))
}
