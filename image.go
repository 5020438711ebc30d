package facedetect

import (
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/xfacereclib/facedetect/utils"
	"golang.org/x/image/bmp"
)

// Image is a grayscale image prepared for window scanning.
// Besides the pixels it holds the integral image used for constant time block sums.
type Image struct {
	Gray     *image.Gray
	integral []int64
}

// NewImage converts any image to grayscale with min-point at (0, 0) and computes its integral image.
func NewImage(src image.Image) *Image {
	var gray *image.Gray
	if g, ok := src.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		gray = g
	} else {
		gray = toGray(imgToNRGBA(src))
	}
	img := &Image{Gray: gray}
	img.computeIntegral()
	return img
}

// Height returns the number of image rows.
func (img *Image) Height() int { return img.Gray.Bounds().Dy() }

// Width returns the number of image columns.
func (img *Image) Width() int { return img.Gray.Bounds().Dx() }

// At returns the gray value at row y and column x.
func (img *Image) At(y, x int) uint8 {
	return img.Gray.Pix[y*img.Gray.Stride+x]
}

// Pixels returns the gray values as a dense, row-major slice.
func (img *Image) Pixels() []uint8 {
	w, h := img.Width(), img.Height()
	if img.Gray.Stride == w {
		return img.Gray.Pix[:w*h]
	}
	pix := make([]uint8, 0, w*h)
	for y := 0; y < h; y++ {
		pix = append(pix, img.Gray.Pix[y*img.Gray.Stride:y*img.Gray.Stride+w]...)
	}
	return pix
}

func (img *Image) computeIntegral() {
	w, h := img.Width(), img.Height()
	stride := w + 1
	ii := make([]int64, (h+1)*stride)
	for y := 0; y < h; y++ {
		var row int64
		for x := 0; x < w; x++ {
			row += int64(img.At(y, x))
			ii[(y+1)*stride+x+1] = ii[y*stride+x+1] + row
		}
	}
	img.integral = ii
}

// BlockSum returns the sum of the gray values inside the given block.
// The block must lie inside the image.
func (img *Image) BlockSum(top, left, height, width int) int64 {
	stride := img.Width() + 1
	b, r := top+height, left+width
	return img.integral[b*stride+r] - img.integral[top*stride+r] -
		img.integral[b*stride+left] + img.integral[top*stride+left]
}

// ScaledSize returns the image size after scaling with the given factor.
func ScaledSize(height, width int, scale float64) (int, int) {
	return int(math.Floor(float64(height)*scale + 0.5)), int(math.Floor(float64(width)*scale + 0.5))
}

// Resize returns a new image scaled by the given factor.
func (img *Image) Resize(scale float64) *Image {
	h, w := ScaledSize(img.Height(), img.Width(), scale)
	if h == img.Height() && w == img.Width() {
		return img
	}
	if h <= 0 || w <= 0 {
		return &Image{Gray: image.NewGray(image.Rect(0, 0, 0, 0)), integral: []int64{0}}
	}
	res := imaging.Resize(img.Gray, w, h, imaging.Linear)
	scaled := &Image{Gray: toGray(res)}
	scaled.computeIntegral()
	return scaled
}

// LoadImage reads and decodes the image at the given path or URL.
// Any failure is reported as ErrUnreadableImage.
func LoadImage(src string) (image.Image, error) {
	if utils.IsValidUrl(src) {
		f, err := utils.DownloadImage(src)
		if f != nil {
			defer os.Remove(f.Name())
			f.Close()
		}
		if err != nil {
			return nil, errors.Wrap(ErrUnreadableImage, err.Error())
		}
		src = f.Name()
	}
	file, err := os.Open(src)
	if err != nil {
		return nil, errors.Wrapf(ErrUnreadableImage, "could not open the image file: %v", err)
	}
	defer file.Close()
	return decodeImg(file)
}

// decodeImg decodes an image stream to type image.Image.
func decodeImg(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrapf(ErrUnreadableImage, "could not decode the image: %v", err)
	}
	return img, nil
}

// SaveImage encodes the image into the given file. The format is taken from the file extension.
func SaveImage(dst string, img image.Image) error {
	f, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "unable to create the destination file")
	}
	if err := EncodeImage(f, filepath.Ext(dst), img); err != nil {
		f.Close()
		os.Remove(dst)
		return err
	}
	return f.Close()
}

// EncodeImage encodes an image to a destination of type io.Writer using the format of the given extension.
func EncodeImage(w io.Writer, ext string, img image.Image) error {
	switch strings.ToLower(ext) {
	case "", ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 100})
	case ".png":
		return png.Encode(w, img)
	case ".bmp":
		return bmp.Encode(w, img)
	default:
		return errors.Errorf("unsupported image format %q", ext)
	}
}

// imgToNRGBA converts any image type to *image.NRGBA with min-point at (0, 0).
func imgToNRGBA(img image.Image) *image.NRGBA {
	srcBounds := img.Bounds()
	if srcBounds.Min.X == 0 && srcBounds.Min.Y == 0 {
		if src0, ok := img.(*image.NRGBA); ok {
			return src0
		}
	}
	srcMinX := srcBounds.Min.X
	srcMinY := srcBounds.Min.Y

	dstBounds := srcBounds.Sub(srcBounds.Min)
	dstW := dstBounds.Dx()
	dstH := dstBounds.Dy()
	dst := image.NewNRGBA(dstBounds)

	switch src := img.(type) {
	case *image.NRGBA:
		rowSize := srcBounds.Dx() * 4
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			si := src.PixOffset(srcMinX, srcMinY+dstY)
			copy(dst.Pix[di:di+rowSize], src.Pix[si:si+rowSize])
		}
	case *image.YCbCr:
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			for dstX := 0; dstX < dstW; dstX++ {
				srcX := srcMinX + dstX
				srcY := srcMinY + dstY
				siy := src.YOffset(srcX, srcY)
				sic := src.COffset(srcX, srcY)
				r, g, b := color.YCbCrToRGB(src.Y[siy], src.Cb[sic], src.Cr[sic])
				dst.Pix[di+0] = r
				dst.Pix[di+1] = g
				dst.Pix[di+2] = b
				dst.Pix[di+3] = 0xff
				di += 4
			}
		}
	default:
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			for dstX := 0; dstX < dstW; dstX++ {
				c := color.NRGBAModel.Convert(img.At(srcMinX+dstX, srcMinY+dstY)).(color.NRGBA)
				dst.Pix[di+0] = c.R
				dst.Pix[di+1] = c.G
				dst.Pix[di+2] = c.B
				dst.Pix[di+3] = c.A
				di += 4
			}
		}
	}

	return dst
}
