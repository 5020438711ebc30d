package facedetect

import (
	"os"
	"path/filepath"

	pigo "github.com/esimov/pigo/core"
	"github.com/pkg/errors"
)

// Landmark is a named facial feature point.
type Landmark struct {
	Name string
	Point
}

// LandmarkRefiner localizes the facial landmarks inside a detected face.
type LandmarkRefiner interface {
	Refine(img *Image, box BoundingBox) ([]Landmark, error)
}

// RefinerKind selects the landmark refiner.
type RefinerKind string

const (
	// GeometryRefiner places the eyes where the bounding box geometry expects them.
	GeometryRefiner RefinerKind = "geometry"
	// PupilRefiner localizes the pupils with the pigo pupil cascade.
	PupilRefiner RefinerKind = "puploc"
	// FacialLandmarkRefiner adds the pigo facial landmark point cascades to the pupils.
	FacialLandmarkRefiner RefinerKind = "landmarks"
)

// RefinerConfig holds the model files of the refiners.
type RefinerConfig struct {
	Kind RefinerKind
	// PuplocCascade is the pigo pupil localization cascade file.
	PuplocCascade string
	// LandmarkDir is the directory of the pigo facial landmark cascades.
	LandmarkDir string
	// Perturbs is the number of perturbations the pigo localizers average over.
	Perturbs int
}

// NewRefiner creates the refiner of the configured kind.
func NewRefiner(cfg RefinerConfig) (LandmarkRefiner, error) {
	if cfg.Perturbs <= 0 {
		cfg.Perturbs = 63
	}
	switch cfg.Kind {
	case GeometryRefiner, "":
		return geometryRefiner{}, nil
	case PupilRefiner, FacialLandmarkRefiner:
		data, err := os.ReadFile(cfg.PuplocCascade)
		if err != nil {
			return nil, errors.Wrap(err, "cannot read the pupil cascade")
		}
		plc, err := (&pigo.PuplocCascade{}).UnpackCascade(data)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidCascade, "error unpacking the pupil cascade: %v", err)
		}
		pr := &pupilRefiner{cascade: plc, perturbs: cfg.Perturbs}
		if cfg.Kind == PupilRefiner {
			return pr, nil
		}
		entries, err := os.ReadDir(cfg.LandmarkDir)
		if err != nil {
			return nil, errors.Wrap(err, "cannot read the landmark cascades")
		}
		lr := &landmarkRefiner{pupils: pr}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			flpc, err := plc.UnpackFlp(filepath.Join(cfg.LandmarkDir, e.Name()))
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidCascade, "landmark cascade %s: %v", e.Name(), err)
			}
			lr.cascades = append(lr.cascades, namedCascade{name: e.Name(), cascade: flpc})
		}
		if len(lr.cascades) == 0 {
			return nil, errors.Wrapf(ErrInvalidCascade, "no landmark cascade in %s", cfg.LandmarkDir)
		}
		return lr, nil
	}
	return nil, errors.Errorf("unknown landmark refiner %q", cfg.Kind)
}

type geometryRefiner struct{}

func (geometryRefiner) Refine(_ *Image, box BoundingBox) ([]Landmark, error) {
	reye, leye := ExpectedEyePositions(box)
	return []Landmark{{Name: "reye", Point: reye}, {Name: "leye", Point: leye}}, nil
}

type pupilRefiner struct {
	cascade  *pigo.PuplocCascade
	perturbs int
}

// pupils returns the pupils on the left and the right side of the image, which are the
// right and the left eye of the person. Failed localizations fall back to the expected positions.
func (pr *pupilRefiner) pupils(img *Image, box BoundingBox) (*pigo.Puploc, *pigo.Puploc) {
	params := imageParams(img)
	cy, cx := box.Center()
	scale := box.Width
	reye, leye := ExpectedEyePositions(box)

	locate := func(dx float64, fallback Point) *pigo.Puploc {
		pl := pigo.Puploc{
			Row:      int(cy - 0.085*scale),
			Col:      int(cx + dx*scale),
			Scale:    float32(scale) * 0.4,
			Perturbs: pr.perturbs,
		}
		res := pr.cascade.RunDetector(pl, params, 0.0, false)
		if res != nil && res.Row > 0 && res.Col > 0 {
			return res
		}
		return &pigo.Puploc{Row: int(fallback.Y), Col: int(fallback.X), Scale: pl.Scale}
	}
	return locate(-0.185, reye), locate(0.185, leye)
}

func (pr *pupilRefiner) Refine(img *Image, box BoundingBox) ([]Landmark, error) {
	right, left := pr.pupils(img, box)
	return []Landmark{
		{Name: "reye", Point: Point{Y: float64(right.Row), X: float64(right.Col)}},
		{Name: "leye", Point: Point{Y: float64(left.Row), X: float64(left.Col)}},
	}, nil
}

type namedCascade struct {
	name    string
	cascade *pigo.PuplocCascade
}

type landmarkRefiner struct {
	pupils   *pupilRefiner
	cascades []namedCascade
}

func (lr *landmarkRefiner) Refine(img *Image, box BoundingBox) ([]Landmark, error) {
	right, left := lr.pupils.pupils(img, box)
	landmarks := []Landmark{
		{Name: "reye", Point: Point{Y: float64(right.Row), X: float64(right.Col)}},
		{Name: "leye", Point: Point{Y: float64(left.Row), X: float64(left.Col)}},
	}
	params := imageParams(img)
	for _, c := range lr.cascades {
		for _, flip := range []bool{false, true} {
			flp := c.cascade.GetLandmarkPoint(right, left, params, lr.pupils.perturbs, flip)
			if flp == nil || flp.Row <= 0 || flp.Col <= 0 {
				continue
			}
			name := c.name
			if flip {
				name += "-flipped"
			}
			landmarks = append(landmarks, Landmark{Name: name, Point: Point{Y: float64(flp.Row), X: float64(flp.Col)}})
		}
	}
	return landmarks, nil
}
