package facedetect

// Scorer evaluates a classifier on a single window of a prepared image.
// The box is given in the coordinates of img. Implementations must be pure:
// the same window of the same image always yields the same score.
type Scorer interface {
	Score(img *Image, box BoundingBox) float64
}

// ScorerFunc adapts an ordinary function to the Scorer interface.
type ScorerFunc func(img *Image, box BoundingBox) float64

// Score calls f(img, box).
func (f ScorerFunc) Score(img *Image, box BoundingBox) float64 { return f(img, box) }

// Classifier decides whether a window contains a face and reports its score.
type Classifier interface {
	Classify(img *Image, box BoundingBox) (score float64, accepted bool)
}

// single is a non-cascaded classifier.
type single struct {
	scorer    Scorer
	threshold float64
}

// Single returns a classifier which accepts every window scoring at least threshold.
func Single(s Scorer, threshold float64) Classifier {
	return single{scorer: s, threshold: threshold}
}

func (s single) Classify(img *Image, box BoundingBox) (float64, bool) {
	score := s.scorer.Score(img, box)
	return score, !(score < s.threshold)
}
