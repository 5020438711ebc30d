package facedetect

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
)

func whiteImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return img
}

func rgbAt(img image.Image, x, y int) (int, int, int) {
	c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	return int(c.R), int(c.G), int(c.B)
}

func TestAnnotate_ShouldDrawBestDetection(t *testing.T) {
	assert := assert.New(t)

	src := whiteImage(60, 60)
	loc := Localization{Detections: []Candidate{
		{Box: box(10, 10, 20, 20), Score: 2},
		{Box: box(35, 35, 15, 15), Score: 1},
	}}
	out := Annotate(src, loc, nil, DefaultDrawOptions())
	assert.Equal(src.Bounds(), out.Bounds())

	r, g, b := rgbAt(out, 10, 20)
	assert.Greater(r, 200)
	assert.Less(g, 50)
	assert.Less(b, 50)

	// only the best detection is drawn by default
	r, g, b = rgbAt(out, 35, 42)
	assert.Equal([3]int{255, 255, 255}, [3]int{r, g, b})

	// the source is left untouched
	r, g, b = rgbAt(src, 10, 20)
	assert.Equal([3]int{255, 255, 255}, [3]int{r, g, b})
}

func TestAnnotate_ShouldShadeDetectionsByScore(t *testing.T) {
	opts := DefaultDrawOptions()
	opts.All = true
	loc := Localization{Detections: []Candidate{
		{Box: box(10, 10, 20, 20), Score: 2},
		{Box: box(35, 35, 15, 15), Score: 1},
	}}
	out := Annotate(whiteImage(60, 60), loc, []BoundingBox{box(2, 2, 5, 5)}, opts)

	r, g, _ := rgbAt(out, 35, 42)
	assert.InDelta(t, 127, r, 10)
	assert.Less(t, g, 50)

	r, g, _ = rgbAt(out, 2, 4)
	assert.Less(t, r, 50)
	assert.Greater(t, g, 200)
}

func TestAnnotate_ShouldDrawLandmarks(t *testing.T) {
	loc := Localization{
		Detections: []Candidate{{Box: box(10, 10, 40, 40), Score: 1}},
		Landmarks:  []Landmark{{Name: "reye", Point: Point{Y: 25, X: 25}}},
	}
	out := Annotate(whiteImage(100, 100), loc, nil, DefaultDrawOptions())
	r, _, b := rgbAt(out, 25, 25)
	assert.Less(t, r, 50)
	assert.Greater(t, b, 200)
}

func TestCrop(t *testing.T) {
	src := makeNRGBAImage(image.Rect(0, 0, 16, 16), distinctColors())
	crop := Crop(src, box(2, 3, 10, 8))
	assert.Equal(t, image.Rect(0, 0, 8, 10), crop.Bounds())
	assert.Equal(t, src.At(3, 2), crop.At(0, 0))

	clipped := Crop(src, box(10, 10, 20, 20))
	assert.Equal(t, image.Rect(0, 0, 6, 6), clipped.Bounds())
}

// distinctColors returns 256 distinct colors.
func distinctColors() []color.Color {
	colors := make([]color.Color, 256)
	for i := range colors {
		colors[i] = color.NRGBA{R: uint8(i), G: uint8(255 - i), B: uint8(i * 7), A: 255}
	}
	return colors
}
