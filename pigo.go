package facedetect

import (
	"os"

	pigo "github.com/esimov/pigo/core"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Detector returns the candidate faces of an image, before any reduction.
type Detector interface {
	Detect(img *Image) ([]Candidate, error)
}

// SlidingWindow detects faces by classifying every window of the scale pyramid.
type SlidingWindow struct {
	Sampler    *Sampler
	Classifier Classifier
	// Threshold drops accepted windows with a score not above it. Nil keeps all accepted windows.
	Threshold *float64
}

var _ Detector = (*SlidingWindow)(nil)

// patchSizer is implemented by classifiers bound to a fixed window size.
type patchSizer interface {
	PatchSize() (height, width int)
}

// Detect implements the Detector interface.
func (sw *SlidingWindow) Detect(img *Image) ([]Candidate, error) {
	if sw.Classifier == nil {
		return nil, errors.Wrap(ErrInvalidCascade, "no classifier given")
	}
	if ps, ok := sw.Classifier.(patchSizer); ok {
		if h, w := ps.PatchSize(); h > 0 && (h != sw.Sampler.PatchHeight || w != sw.Sampler.PatchWidth) {
			return nil, errors.Wrapf(ErrInvalidCascade, "cascade patch %dx%d does not match sampler patch %dx%d",
				h, w, sw.Sampler.PatchHeight, sw.Sampler.PatchWidth)
		}
	}
	return sw.Sampler.Detect(img, sw.Classifier, sw.Threshold), nil
}

// PigoDetector detects faces with the pixel intensity comparison cascade of pigo.
// Its detections are reported as square candidates which go through the same reducers.
type PigoDetector struct {
	classifier *pigo.Pigo

	MinSize     int
	MaxSize     int
	ShiftFactor float64
	ScaleFactor float64
	// Angle is the in-plane rotation of the faces, as a fraction of a full turn.
	Angle  float64
	Logger *zap.Logger
}

var _ Detector = (*PigoDetector)(nil)

// NewPigoDetector unpacks the binary pigo face cascade.
func NewPigoDetector(cascade []byte) (*PigoDetector, error) {
	// Unpack the binary file. This will return the number of cascade trees,
	// the tree depth, the threshold and the prediction from tree's leaf nodes.
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidCascade, "error unpacking the cascade file: %v", err)
	}
	return &PigoDetector{
		classifier:  classifier,
		MinSize:     20,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		Logger:      zap.NewNop(),
	}, nil
}

// LoadPigoDetector reads the pigo face cascade from the given file.
func LoadPigoDetector(path string) (*PigoDetector, error) {
	cascade, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read the cascade file")
	}
	return NewPigoDetector(cascade)
}

// Detect implements the Detector interface.
func (pd *PigoDetector) Detect(img *Image) ([]Candidate, error) {
	maxSize := pd.MaxSize
	if maxSize <= 0 {
		maxSize = img.Width()
		if img.Height() > maxSize {
			maxSize = img.Height()
		}
	}
	cParams := pigo.CascadeParams{
		MinSize:     pd.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: pd.ShiftFactor,
		ScaleFactor: pd.ScaleFactor,
		ImageParams: imageParams(img),
	}

	// The result contains quadruplets representing the row, column, scale and detection score.
	dets := pd.classifier.RunCascade(cParams, pd.Angle)
	cands := make([]Candidate, 0, len(dets))
	for _, d := range dets {
		size := float64(d.Scale)
		cands = append(cands, Candidate{
			Box: BoundingBox{
				Top:    float64(d.Row) - size/2,
				Left:   float64(d.Col) - size/2,
				Height: size,
				Width:  size,
			},
			Score:    float64(d.Q),
			Accepted: true,
		})
	}
	if pd.Logger != nil {
		pd.Logger.Debug("pigo cascade", zap.Int("detections", len(cands)))
	}
	return cands, nil
}

func imageParams(img *Image) pigo.ImageParams {
	return pigo.ImageParams{
		Pixels: img.Pixels(),
		Rows:   img.Height(),
		Cols:   img.Width(),
		Dim:    img.Width(),
	}
}
