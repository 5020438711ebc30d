package facedetect

import (
	"math"

	"github.com/pkg/errors"
)

// Stage is one step of a cascade: an independent scorer and the rejection threshold
// the accumulated score is compared to after the stage has been evaluated.
type Stage struct {
	Scorer    Scorer
	Threshold float64
}

// Cascade is an ordered sequence of stages with early rejection.
// Most negative windows are rejected after the first one or two stages,
// so the later (and larger) stages are evaluated only for promising windows.
type Cascade struct {
	stages []Stage
	// patch is the window size the stages were trained on, zero when unknown.
	patchHeight, patchWidth int
}

var _ Classifier = (*Cascade)(nil)

// NewCascade creates a cascade from the given stages.
func NewCascade(stages ...Stage) (*Cascade, error) {
	if len(stages) == 0 {
		return nil, errors.Wrap(ErrInvalidCascade, "no stages")
	}
	for i, s := range stages {
		if s.Scorer == nil {
			return nil, errors.Wrapf(ErrInvalidCascade, "stage %d has no scorer", i)
		}
		if math.IsNaN(s.Threshold) {
			return nil, errors.Wrapf(ErrInvalidCascade, "stage %d has no valid threshold", i)
		}
	}
	return &Cascade{stages: append([]Stage(nil), stages...)}, nil
}

// PatchSize returns the window size the cascade expects. Both values are zero when the cascade
// was not built from a model.
func (c *Cascade) PatchSize() (height, width int) { return c.patchHeight, c.patchWidth }

// Stages returns the number of stages.
func (c *Cascade) Stages() int { return len(c.stages) }

// Evaluate runs the stages in order on the given window. It returns the accumulated
// score, whether all stages passed, and how many stages have been evaluated.
func (c *Cascade) Evaluate(img *Image, box BoundingBox) (score float64, accepted bool, evaluated int) {
	for i, s := range c.stages {
		score += s.Scorer.Score(img, box)
		if score < s.Threshold {
			return score, false, i + 1
		}
	}
	return score, true, len(c.stages)
}

// Classify implements the Classifier interface.
func (c *Cascade) Classify(img *Image, box BoundingBox) (float64, bool) {
	score, accepted, _ := c.Evaluate(img, box)
	return score, accepted
}
