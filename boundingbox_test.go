package facedetect

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(top, left, height, width float64) BoundingBox {
	return BoundingBox{Top: top, Left: left, Height: height, Width: width}
}

func TestBoundingBox_ShouldRejectInvalidGeometry(t *testing.T) {
	assert := assert.New(t)

	for _, size := range [][2]float64{{0, 10}, {10, 0}, {-1, 5}, {5, -3}} {
		_, err := NewBoundingBox(0, 0, size[0], size[1])
		assert.ErrorIs(err, ErrInvalidGeometry)
	}
	bb, err := NewBoundingBox(1, 2, 3, 4)
	assert.NoError(err)
	assert.Equal(4.0, bb.Bottom())
	assert.Equal(6.0, bb.Right())
}

func TestBoundingBox_Overlap(t *testing.T) {
	testCases := []struct {
		name string
		a, b BoundingBox
		want float64
	}{
		{name: "identical", a: box(0, 0, 10, 10), b: box(0, 0, 10, 10), want: 1},
		{name: "disjoint", a: box(0, 0, 10, 10), b: box(20, 20, 10, 10), want: 0},
		{name: "touching", a: box(0, 0, 10, 10), b: box(0, 10, 10, 10), want: 0},
		{name: "half shifted", a: box(0, 0, 10, 10), b: box(0, 5, 10, 10), want: 50. / 150.},
		{name: "contained", a: box(0, 0, 10, 10), b: box(2, 2, 5, 5), want: 25. / 100.},
		{name: "diagonal", a: box(0, 0, 10, 10), b: box(1, 1, 10, 10), want: 81. / 119.},
		{name: "degenerate", a: box(0, 0, 0, 10), b: box(0, 0, 10, 10), want: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, tc.a.Overlap(tc.b), 1e-9)
			assert.Equal(t, tc.a.Overlap(tc.b), tc.b.Overlap(tc.a), "overlap should be symmetric")
		})
	}
}

func TestBoundingBox_OverlapShouldStayInRange(t *testing.T) {
	boxes := []BoundingBox{
		box(0, 0, 10, 10), box(3.3, 1.7, 8.2, 12.1), box(-5, -5, 7, 7),
		box(100, 100, 1, 1), box(0.5, 0.5, 9, 9), box(2, 2, 0.1, 50),
	}
	for _, a := range boxes {
		assert.Equal(t, 1.0, a.Overlap(a))
		for _, b := range boxes {
			o := a.Overlap(b)
			assert.GreaterOrEqual(t, o, 0.0)
			assert.LessOrEqual(t, o, 1.0)
		}
	}
}

func TestBoundingBox_ScaleRoundTrip(t *testing.T) {
	bb := box(12.5, 7.25, 24, 20)
	for _, f := range []float64{0.5, 0.840896, 2, 3.7} {
		back := bb.Scale(f).Scale(1 / f)
		assert.InDelta(t, bb.Top, back.Top, 1e-9)
		assert.InDelta(t, bb.Left, back.Left, 1e-9)
		assert.InDelta(t, bb.Height, back.Height, 1e-9)
		assert.InDelta(t, bb.Width, back.Width, 1e-9)
	}
	assert.Equal(t, box(15, 12, 24, 20), bb.Shift(2.5, 4.75))
}

func TestBoundingBox_IsValidFor(t *testing.T) {
	assert := assert.New(t)

	assert.True(box(0, 0, 10, 10).IsValidFor(10, 10, FullyContained))
	assert.False(box(1, 0, 10, 10).IsValidFor(10, 10, FullyContained))
	assert.False(box(-1, 0, 5, 5).IsValidFor(10, 10, FullyContained))
	assert.True(box(-1, 0, 5, 5).IsValidFor(10, 10, Overlapping))
	assert.False(box(10, 10, 5, 5).IsValidFor(10, 10, Overlapping))
	assert.False(box(0, 0, 0, 5).IsValidFor(10, 10, Overlapping))
	assert.False(box(0, 0, 5, 5).IsValidFor(0, 10, Overlapping))
}

func TestBoundingBox_Rect(t *testing.T) {
	require.Equal(t, image.Rect(2, 1, 7, 11), box(1.2, 1.6, 9.6, 5.2).Rect())
	assert.Equal(t, "<BB topleft=(1.00,2.00), bottomright=(4.00,6.00)>", box(1, 2, 3, 4).String())
}
