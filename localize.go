package facedetect

import (
	"image"
	"runtime"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Localizer detects the face of an image and localizes its landmarks.
// The detector, the reducer and the refiner are chosen once when the localizer is set up.
type Localizer struct {
	Detector Detector
	Reducer  Reducer
	// Refiner localizes the landmarks in the best detection. Nil uses the expected eye positions.
	Refiner LandmarkRefiner
	// Source selects the landmarks the ground truth box of a batch image is computed from.
	Source  AnnotationSource
	Workers int
	Logger  *zap.Logger
}

// Localization is the result of a single image.
type Localization struct {
	// Detections are the reduced detections, best first.
	Detections []Candidate
	Landmarks  []Landmark
}

// Best returns the best detection.
func (loc Localization) Best() Candidate { return loc.Detections[0] }

func (l *Localizer) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// Localize runs the detection on img. An image without any detection yields ErrNoDetections.
func (l *Localizer) Localize(img *Image) (Localization, error) {
	var loc Localization
	cands, err := l.Detector.Detect(img)
	if err != nil {
		return loc, err
	}
	l.logger().Debug("number of detections", zap.Int("candidates", len(cands)))

	reducer := l.Reducer
	if reducer == nil {
		reducer = Best{}
	}
	if loc.Detections, err = reducer.Reduce(cands); err != nil {
		return loc, err
	}
	if len(loc.Detections) == 0 {
		return loc, ErrNoDetections
	}

	refiner := l.Refiner
	if refiner == nil {
		refiner = geometryRefiner{}
	}
	loc.Landmarks, err = refiner.Refine(img, loc.Best().Box)
	return loc, err
}

// FileResult is the localization of a single file of a batch.
type FileResult struct {
	Path  string
	Truth []Annotation
	// TruthBox is the bounding box of the first annotated face. It is only set with an annotation provider.
	TruthBox BoundingBox
	Source   image.Image
	Localization
}

// BatchReport summarizes a batch localization.
type BatchReport struct {
	Processed            int
	IncompleteAnnotation int
	UnreadableImage      int
	NoDetections         int
	// Err accumulates the errors of all skipped images.
	Err error
}

// Run localizes the faces of the given files. The files are processed concurrently and the results
// are handed to emit in the given order. Images with incomplete annotations, unreadable images and
// images without detections are skipped and counted. An error of emit stops the batch.
func (l *Localizer) Run(files []string, provider AnnotationProvider, load ImageLoader, emit func(FileResult) error) (BatchReport, error) {
	var rep BatchReport
	if load == nil {
		load = LoadImage
	}
	workers := l.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	type item struct {
		res FileResult
		err error
	}
	for start := 0; start < len(files); start += workers {
		end := start + workers
		if end > len(files) {
			end = len(files)
		}
		items := make([]item, end-start)

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				res, err := l.localizeFile(files[i], provider, load)
				items[i-start] = item{res: res, err: err}
				return nil
			})
		}
		_ = g.Wait()

		for _, it := range items {
			if it.err != nil {
				if !skipErr(it.err) && !errors.Is(it.err, ErrNoDetections) {
					return rep, errors.Wrap(it.err, it.res.Path)
				}
				switch {
				case errors.Is(it.err, ErrIncompleteAnnotation):
					rep.IncompleteAnnotation++
				case errors.Is(it.err, ErrUnreadableImage):
					rep.UnreadableImage++
				default:
					rep.NoDetections++
				}
				rep.Err = multierr.Append(rep.Err, errors.Wrap(it.err, it.res.Path))
				l.logger().Warn("skipping image", zap.String("file", it.res.Path), zap.Error(it.err))
				continue
			}
			if err := emit(it.res); err != nil {
				return rep, err
			}
			rep.Processed++
		}
	}
	return rep, nil
}

func (l *Localizer) localizeFile(file string, provider AnnotationProvider, load ImageLoader) (FileResult, error) {
	res := FileResult{Path: file}
	if provider != nil {
		truth, err := provider.Annotations(file)
		if err != nil {
			return res, err
		}
		if len(truth) == 0 {
			return res, errors.Wrap(ErrIncompleteAnnotation, "no annotated face")
		}
		res.Truth = truth
		if res.TruthBox, err = BoundingBoxFromAnnotation(truth[0], l.Source); err != nil {
			return res, err
		}
	}
	src, err := load(file)
	if err != nil {
		if !errors.Is(err, ErrUnreadableImage) {
			err = errors.Wrap(ErrUnreadableImage, err.Error())
		}
		return res, err
	}
	l.logger().Info("localizing image", zap.String("file", file))
	res.Source = src
	res.Localization, err = l.Localize(NewImage(src))
	return res, err
}
