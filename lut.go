package facedetect

import (
	"github.com/pkg/errors"
)

// WeakClassifier is a look-up table over the codes of a single LBP feature.
type WeakClassifier struct {
	Feature int       `yaml:"feature"`
	LUT     []float64 `yaml:"lut,flow"`
}

// BoostedScorer sums the responses of its weak classifiers on a patch.
type BoostedScorer struct {
	extractor *LBPExtractor
	weak      []WeakClassifier
}

var _ Scorer = (*BoostedScorer)(nil)

// NewBoostedScorer checks the weak classifiers against the extractor.
func NewBoostedScorer(e *LBPExtractor, weak []WeakClassifier) (*BoostedScorer, error) {
	if e == nil {
		return nil, errors.New("no feature extractor given")
	}
	if len(weak) == 0 {
		return nil, errors.New("no weak classifiers given")
	}
	for i, w := range weak {
		if w.Feature < 0 || w.Feature >= e.NumFeatures() {
			return nil, errors.Errorf("weak classifier %d uses feature %d of %d", i, w.Feature, e.NumFeatures())
		}
		if len(w.LUT) != MaxLabel {
			return nil, errors.Errorf("weak classifier %d has %d table entries instead of %d", i, len(w.LUT), MaxLabel)
		}
	}
	return &BoostedScorer{extractor: e, weak: weak}, nil
}

// Score evaluates the weak classifiers on the patch at box. Only the features used by the
// weak classifiers are computed, not the complete feature vector.
func (b *BoostedScorer) Score(img *Image, box BoundingBox) float64 {
	top, left := b.extractor.origin(box)
	var score float64
	for _, w := range b.weak {
		score += w.LUT[b.extractor.Code(img, top, left, w.Feature)]
	}
	return score
}

// ScoreFeatures evaluates the weak classifiers on an already extracted feature vector.
func (b *BoostedScorer) ScoreFeatures(features []uint8) float64 {
	var score float64
	for _, w := range b.weak {
		score += w.LUT[features[w.Feature]]
	}
	return score
}
