package facedetect

import (
	"image"
	"io"
	"math"
	"runtime"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Label is the class of a training window.
type Label int

const (
	// Ignored windows lie in the margin between the two similarity thresholds.
	Ignored Label = iota
	Negative
	Positive
)

func (l Label) String() string {
	switch l {
	case Negative:
		return "negative"
	case Positive:
		return "positive"
	}
	return "ignored"
}

// TrainingConfig defines which windows are sampled as training examples.
type TrainingConfig struct {
	// Windows whose maximum overlap with the ground truth is below LowThreshold are negative,
	// windows with an overlap above HighThreshold are positive.
	LowThreshold  float64 `yaml:"low_threshold"`
	HighThreshold float64 `yaml:"high_threshold"`
	// PositivesPerScale and NegativesPerScale limit the examples of a single image scale.
	PositivesPerScale int `yaml:"positives_per_scale"`
	NegativesPerScale int `yaml:"negatives_per_scale"`
	// MaxPositives and MaxNegatives limit the size of the whole training set.
	MaxPositives int `yaml:"max_positives"`
	MaxNegatives int `yaml:"max_negatives"`
}

// DefaultTrainingConfig returns the quotas and thresholds used for training.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		LowThreshold:      0.3,
		HighThreshold:     0.7,
		PositivesPerScale: 100,
		NegativesPerScale: 100,
		MaxPositives:      10000,
		MaxNegatives:      10000,
	}
}

// DefaultTrainingSampling returns the window search used for training.
func DefaultTrainingSampling() Config {
	cfg := DefaultConfig()
	cfg.Distance = 4
	cfg.ScaleBase = math.Pow(2, -1./4.)
	cfg.LowestScale = 0
	return cfg
}

// Validate checks the thresholds and quotas.
func (c TrainingConfig) Validate() error {
	if !(c.LowThreshold >= 0 && c.LowThreshold <= c.HighThreshold && c.HighThreshold <= 1) {
		return errors.Errorf("invalid similarity thresholds (%v, %v)", c.LowThreshold, c.HighThreshold)
	}
	if c.PositivesPerScale < 0 || c.NegativesPerScale < 0 || c.MaxPositives < 0 || c.MaxNegatives < 0 {
		return errors.New("example quotas must not be negative")
	}
	return nil
}

// LabelFor classifies a window by its maximum overlap with the ground truth.
// Both comparisons are strict: an overlap equal to a threshold is ignored.
func (c TrainingConfig) LabelFor(overlap float64) Label {
	switch {
	case overlap < c.LowThreshold:
		return Negative
	case overlap > c.HighThreshold:
		return Positive
	}
	return Ignored
}

// QuasiRandomIndices selects k of n indices spread evenly over the whole range.
// The selection is deterministic. All indices are returned when k is negative or not smaller than n.
func QuasiRandomIndices(n, k int) []int {
	if k < 0 || k >= n {
		k = n
	}
	indices := make([]int, k)
	for i := range indices {
		if k == n {
			indices[i] = i
		} else {
			indices[i] = int((float64(i) + 0.5) * float64(n) / float64(k))
		}
	}
	return indices
}

// Example is a labeled training window.
type Example struct {
	Source string
	// Box is the window in original image coordinates.
	Box      BoundingBox
	Scale    float64
	Label    Label
	Features []uint8
}

// Examples samples the labeled windows of a single image. The ground truth is given in image
// coordinates. At every scale the positive and negative windows are subsampled to the per-scale
// quotas. When an extractor is given, the features of the selected windows are extracted.
func (s *Sampler) Examples(img *Image, truth []BoundingBox, cfg TrainingConfig, e *LBPExtractor) ([]Example, error) {
	if len(truth) == 0 {
		return nil, errors.Wrap(ErrIncompleteAnnotation, "no ground truth")
	}
	if e != nil && (e.Config().PatchHeight != s.PatchHeight || e.Config().PatchWidth != s.PatchWidth) {
		return nil, errors.Errorf("extractor patch %dx%d does not match sampler patch %dx%d",
			e.Config().PatchHeight, e.Config().PatchWidth, s.PatchHeight, s.PatchWidth)
	}

	var examples []Example
	for _, l := range s.Pyramid(img.Height(), img.Width()) {
		if l.Positions() == 0 {
			continue
		}
		var pos, neg []Example
		for row := 0; row < l.Rows; row++ {
			for col := 0; col < l.Cols; col++ {
				patch := s.patch(row, col)
				box := patch.Scale(1 / l.Scale)
				var best float64
				for _, t := range truth {
					best = math.Max(best, box.Overlap(t))
				}
				switch cfg.LabelFor(best) {
				case Positive:
					pos = append(pos, Example{Box: patch, Scale: l.Scale, Label: Positive})
				case Negative:
					neg = append(neg, Example{Box: patch, Scale: l.Scale, Label: Negative})
				}
			}
		}
		pos = subsample(pos, cfg.PositivesPerScale)
		neg = subsample(neg, cfg.NegativesPerScale)
		if len(pos)+len(neg) == 0 {
			continue
		}

		var scaled *Image
		if e != nil {
			scaled = img.Resize(l.Scale)
		}
		for _, ex := range append(pos, neg...) {
			if e != nil {
				ex.Features = e.Extract(scaled, ex.Box)
			}
			ex.Box = ex.Box.Scale(1 / ex.Scale)
			examples = append(examples, ex)
		}
		s.logger().Debug("sampled scale",
			zap.Float64("scale", l.Scale),
			zap.Int("positives", len(pos)),
			zap.Int("negatives", len(neg)))
	}
	return examples, nil
}

func subsample(examples []Example, quota int) []Example {
	if len(examples) <= quota {
		return examples
	}
	selected := make([]Example, 0, quota)
	for _, i := range QuasiRandomIndices(len(examples), quota) {
		selected = append(selected, examples[i])
	}
	return selected
}

// ImageLoader reads the image with the given file name.
type ImageLoader func(path string) (image.Image, error)

// Report summarizes a training set collection.
type Report struct {
	Images    int
	Positives int
	Negatives int
	// SkippedByQuota counts the images which were not used because the global quotas were full.
	SkippedByQuota       int
	IncompleteAnnotation int
	UnreadableImage      int
	Failed               int
	// Err accumulates the errors of all skipped or failed images.
	Err error
}

// TrainingSet collects the examples of many annotated images.
type TrainingSet struct {
	Sampler   *Sampler
	Config    TrainingConfig
	Extractor *LBPExtractor
	Source    AnnotationSource
	// Load reads the images. It defaults to LoadImage.
	Load    ImageLoader
	Workers int
	Logger  *zap.Logger

	Positives []Example
	Negatives []Example
}

type itemResult struct {
	examples []Example
	err      error
}

func (ts *TrainingSet) logger() *zap.Logger {
	if ts.Logger == nil {
		return zap.NewNop()
	}
	return ts.Logger
}

// Collect samples the examples of the given images. The images are processed concurrently in
// batches and merged in the given order, so the result does not depend on the number of workers.
// Once both global quotas are full the remaining images are skipped.
// Per image failures are counted in the report and never stop the collection.
func (ts *TrainingSet) Collect(files []string, provider AnnotationProvider) (Report, error) {
	var rep Report
	if err := ts.Config.Validate(); err != nil {
		return rep, err
	}
	workers := ts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	for start := 0; start < len(files); start += workers {
		if ts.full() {
			rep.SkippedByQuota += len(files) - start
			break
		}
		end := start + workers
		if end > len(files) {
			end = len(files)
		}
		results := make([]itemResult, end-start)

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				ex, err := ts.process(files[i], provider)
				results[i-start] = itemResult{examples: ex, err: err}
				return nil
			})
		}
		_ = g.Wait()

		for i, r := range results {
			file := files[start+i]
			if ts.full() {
				rep.SkippedByQuota++
				continue
			}
			if r.err != nil {
				rep.Err = multierr.Append(rep.Err, errors.Wrap(r.err, file))
				switch {
				case errors.Is(r.err, ErrIncompleteAnnotation):
					rep.IncompleteAnnotation++
				case errors.Is(r.err, ErrUnreadableImage):
					rep.UnreadableImage++
				default:
					rep.Failed++
				}
				ts.logger().Warn("skipping image", zap.String("file", file), zap.Error(r.err))
				continue
			}
			rep.Images++
			ts.merge(r.examples)
		}
	}
	rep.Positives, rep.Negatives = len(ts.Positives), len(ts.Negatives)
	return rep, nil
}

func (ts *TrainingSet) full() bool {
	return len(ts.Positives) >= ts.Config.MaxPositives && len(ts.Negatives) >= ts.Config.MaxNegatives
}

func (ts *TrainingSet) merge(examples []Example) {
	for _, ex := range examples {
		switch {
		case ex.Label == Positive && len(ts.Positives) < ts.Config.MaxPositives:
			ts.Positives = append(ts.Positives, ex)
		case ex.Label == Negative && len(ts.Negatives) < ts.Config.MaxNegatives:
			ts.Negatives = append(ts.Negatives, ex)
		}
	}
}

func (ts *TrainingSet) process(file string, provider AnnotationProvider) ([]Example, error) {
	annotations, err := provider.Annotations(file)
	if err != nil {
		return nil, err
	}
	if len(annotations) == 0 {
		return nil, errors.Wrap(ErrIncompleteAnnotation, "no annotated face")
	}
	truth := make([]BoundingBox, len(annotations))
	for i, a := range annotations {
		if truth[i], err = BoundingBoxFromAnnotation(a, ts.Source); err != nil {
			return nil, err
		}
	}

	load := ts.Load
	if load == nil {
		load = LoadImage
	}
	src, err := load(file)
	if err != nil {
		if !errors.Is(err, ErrUnreadableImage) {
			err = errors.Wrap(ErrUnreadableImage, err.Error())
		}
		return nil, err
	}
	ts.logger().Debug("sampling image", zap.String("file", file), zap.Int("faces", len(truth)))

	examples, err := ts.Sampler.Examples(NewImage(src), truth, ts.Config, ts.Extractor)
	for i := range examples {
		examples[i].Source = file
	}
	return examples, err
}

// Dataset returns the features of all examples, positives first, and their labels (+1 or -1).
func (ts *TrainingSet) Dataset() (*mat.Dense, *mat.VecDense, error) {
	examples := append(append([]Example(nil), ts.Positives...), ts.Negatives...)
	if len(examples) == 0 {
		return nil, nil, errors.New("the training set is empty")
	}
	cols := len(examples[0].Features)
	if cols == 0 {
		return nil, nil, errors.New("the examples carry no features")
	}
	x := mat.NewDense(len(examples), cols, nil)
	y := mat.NewVecDense(len(examples), nil)
	for i, ex := range examples {
		if len(ex.Features) != cols {
			return nil, nil, errors.Errorf("example %d has %d features instead of %d", i, len(ex.Features), cols)
		}
		for j, f := range ex.Features {
			x.Set(i, j, float64(f))
		}
		if ex.Label == Positive {
			y.SetVec(i, 1)
		} else {
			y.SetVec(i, -1)
		}
	}
	return x, y, nil
}

// WriteDataset writes the features and labels in gonum's binary matrix format.
func (ts *TrainingSet) WriteDataset(w io.Writer) error {
	x, y, err := ts.Dataset()
	if err != nil {
		return err
	}
	if _, err := x.MarshalBinaryTo(w); err != nil {
		return errors.Wrap(err, "cannot write features")
	}
	if _, err := y.MarshalBinaryTo(w); err != nil {
		return errors.Wrap(err, "cannot write labels")
	}
	return nil
}

// ReadDataset reads a dataset written by WriteDataset.
func ReadDataset(r io.Reader) (*mat.Dense, *mat.VecDense, error) {
	var x mat.Dense
	var y mat.VecDense
	if _, err := x.UnmarshalBinaryFrom(r); err != nil {
		return nil, nil, errors.Wrap(err, "cannot read features")
	}
	if _, err := y.UnmarshalBinaryFrom(r); err != nil {
		return nil, nil, errors.Wrap(err, "cannot read labels")
	}
	return &x, &y, nil
}
