package facedetect

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/xfacereclib/facedetect/utils"
)

// DrawOptions defines how the detections are drawn onto the image.
type DrawOptions struct {
	// All draws every detection, shaded by its score relative to the best one. Otherwise only the best detection is drawn.
	All            bool
	DetectionColor string
	TruthColor     string
	LandmarkColor  string
	LineWidth      float64
}

// DefaultDrawOptions draws the best detection in red, the ground truth in green and the landmarks in blue.
func DefaultDrawOptions() DrawOptions {
	return DrawOptions{
		DetectionColor: "#ff0000",
		TruthColor:     "#00ff00",
		LandmarkColor:  "#0000ff",
		LineWidth:      2,
	}
}

// Annotate draws the localization result and the ground truth boxes onto a copy of src.
func Annotate(src image.Image, loc Localization, truth []BoundingBox, opts DrawOptions) image.Image {
	dc := gg.NewContextForImage(src)
	dc.SetLineWidth(opts.LineWidth)

	dets := loc.Detections
	if !opts.All && len(dets) > 1 {
		dets = dets[:1]
	}
	if len(dets) > 0 {
		highest := dets[0].Score
		col := utils.HexToRGBA(opts.DetectionColor)
		// draw the weakest first, so that the best detection stays on top
		for i := len(dets) - 1; i >= 0; i-- {
			shade := 1.0
			if highest > 0 && i > 0 {
				shade = utils.Clamp(dets[i].Score/highest, 0, 1)
			}
			dc.SetRGBA255(int(float64(col.R)*shade), int(float64(col.G)*shade), int(float64(col.B)*shade), 255)
			drawBox(dc, dets[i].Box)
		}
	}

	dc.SetColor(utils.HexToRGBA(opts.TruthColor))
	for _, bb := range truth {
		drawBox(dc, bb)
	}

	radius := math.Max(float64(src.Bounds().Dx()), float64(src.Bounds().Dy())) / 100
	dc.SetColor(utils.HexToRGBA(opts.LandmarkColor))
	for _, l := range loc.Landmarks {
		drawCross(dc, l.Point, radius)
	}
	return dc.Image()
}

// drawBox strokes the rectangle of the box, clipped to the image.
func drawBox(dc *gg.Context, bb BoundingBox) {
	top := math.Max(bb.Top, 0)
	left := math.Max(bb.Left, 0)
	bottom := math.Min(bb.Bottom(), float64(dc.Height()-1))
	right := math.Min(bb.Right(), float64(dc.Width()-1))
	if bottom <= top || right <= left {
		return
	}
	dc.DrawRectangle(left, top, right-left, bottom-top)
	dc.Stroke()
}

func drawCross(dc *gg.Context, p Point, radius float64) {
	dc.DrawLine(p.X-radius, p.Y, p.X+radius, p.Y)
	dc.DrawLine(p.X, p.Y-radius, p.X, p.Y+radius)
	dc.Stroke()
}

// Crop cuts the box out of src, clipped to the image bounds.
func Crop(src image.Image, bb BoundingBox) *image.NRGBA {
	return imaging.Crop(src, bb.Rect().Add(src.Bounds().Min))
}
