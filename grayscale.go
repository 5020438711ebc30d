package facedetect

import (
	"image"
)

// toGray converts the image to grayscale mode using the luminance weights of ITU-R BT.601.
func toGray(src *image.NRGBA) *image.Gray {
	dx, dy := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewGray(image.Rect(0, 0, dx, dy))

	for y := 0; y < dy; y++ {
		si := src.PixOffset(src.Bounds().Min.X, src.Bounds().Min.Y+y)
		di := y * dst.Stride
		for x := 0; x < dx; x++ {
			r, g, b := src.Pix[si], src.Pix[si+1], src.Pix[si+2]
			lum := float32(r)*0.299 + float32(g)*0.587 + float32(b)*0.114
			dst.Pix[di+x] = uint8(lum + 0.5)
			si += 4
		}
	}
	return dst
}
