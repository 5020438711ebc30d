package facedetect

import (
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Candidate is a scored window in original image coordinates.
type Candidate struct {
	Box      BoundingBox
	Score    float64
	Accepted bool
}

// Sampler enumerates the windows of an image over the scale pyramid.
// It holds no image data between calls and is safe for concurrent use.
type Sampler struct {
	Config
	// Workers limits the number of levels which are processed concurrently.
	Workers int
	Logger  *zap.Logger
}

// NewSampler returns a sampler for the given configuration.
func NewSampler(cfg Config) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sampler{
		Config:  cfg,
		Workers: runtime.NumCPU(),
		Logger:  zap.NewNop(),
	}, nil
}

func (s *Sampler) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Sampler) workers() int {
	if s.Workers <= 0 {
		return runtime.NumCPU()
	}
	return s.Workers
}

// Scan is a lazy iteration over all windows of an image.
// It is finite and cannot be restarted; start a new scan with Sampler.Scan instead.
type Scan struct {
	sampler    *Sampler
	classifier Classifier
	source     *Image
	levels     []Level

	level    int
	row, col int
	scaled   *Image
	current  Candidate
}

// Scan starts the window scan of img. Windows are visited level by level (largest scale first),
// top to bottom and left to right within a level, and each one is classified when visited.
func (s *Sampler) Scan(img *Image, c Classifier) *Scan {
	return &Scan{
		sampler:    s,
		classifier: c,
		source:     img,
		levels:     s.Pyramid(img.Height(), img.Width()),
		level:      -1,
	}
}

// Next advances to the next window. It returns false once all windows have been visited.
func (sc *Scan) Next() bool {
	for {
		if sc.level >= 0 && sc.level < len(sc.levels) {
			l := sc.levels[sc.level]
			if sc.row < l.Rows {
				patch := sc.sampler.patch(sc.row, sc.col)
				score, ok := sc.classifier.Classify(sc.scaled, patch)
				sc.current = Candidate{Box: patch.Scale(1 / l.Scale), Score: score, Accepted: ok}
				if sc.col++; sc.col == l.Cols {
					sc.col = 0
					sc.row++
				}
				return true
			}
		}
		sc.level++
		if sc.level >= len(sc.levels) {
			sc.scaled = nil
			return false
		}
		sc.row, sc.col = 0, 0
		if sc.levels[sc.level].Positions() > 0 {
			sc.scaled = sc.source.Resize(sc.levels[sc.level].Scale)
		} else {
			sc.sampler.logger().Debug("patch does not fit, skipping scale",
				zap.Float64("scale", sc.levels[sc.level].Scale))
		}
	}
}

// Candidate returns the window produced by the last call to Next.
func (sc *Scan) Candidate() Candidate { return sc.current }

// Level returns the pyramid level of the current window. It returns the zero Level when there is
// no current window, before the first call to Next or once Next has returned false.
func (sc *Scan) Level() Level {
	if sc.level < 0 || sc.level >= len(sc.levels) {
		return Level{}
	}
	return sc.levels[sc.level]
}

// Detect classifies all windows of img and returns the accepted ones whose score exceeds
// the threshold (if given). Levels are processed concurrently, the result is in scan order.
func (s *Sampler) Detect(img *Image, c Classifier, threshold *float64) []Candidate {
	levels := s.Pyramid(img.Height(), img.Width())
	results := make([][]Candidate, len(levels))

	var g errgroup.Group
	g.SetLimit(s.workers())
	for i, l := range levels {
		if l.Positions() == 0 {
			continue
		}
		i, l := i, l
		g.Go(func() error {
			results[i] = s.detectLevel(img, l, c, threshold)
			return nil
		})
	}
	_ = g.Wait()

	var detections []Candidate
	for i, r := range results {
		s.logger().Debug("scanned level",
			zap.Float64("scale", levels[i].Scale),
			zap.Int("windows", levels[i].Positions()),
			zap.Int("detections", len(r)))
		detections = append(detections, r...)
	}
	return detections
}

// detectLevel scans a single level of the pyramid.
func (s *Sampler) detectLevel(img *Image, l Level, c Classifier, threshold *float64) []Candidate {
	scaled := img.Resize(l.Scale)
	var out []Candidate
	for row := 0; row < l.Rows; row++ {
		for col := 0; col < l.Cols; col++ {
			patch := s.patch(row, col)
			score, ok := c.Classify(scaled, patch)
			if !ok || (threshold != nil && !(score > *threshold)) {
				continue
			}
			out = append(out, Candidate{Box: patch.Scale(1 / l.Scale), Score: score, Accepted: true})
		}
	}
	return out
}
