package facedetect

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// sortByScore returns a copy of the candidates in descending score order.
// Candidates with the same score keep their scan order.
func sortByScore(cands []Candidate) []Candidate {
	sorted := append([]Candidate(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	return sorted
}

// Prune performs non-maximum suppression: the best remaining candidate is accepted and all
// remaining candidates which overlap with it by more than threshold are removed.
// Exact duplicates are always removed. The result is ordered by descending score.
func Prune(cands []Candidate, threshold float64) []Candidate {
	return PruneLimit(cands, threshold, 0)
}

// PruneLimit prunes like Prune but stops after limit candidates have been accepted.
// A limit of zero or less accepts any number of candidates.
func PruneLimit(cands []Candidate, threshold float64, limit int) []Candidate {
	sorted := sortByScore(cands)
	removed := make([]bool, len(sorted))
	kept := make([]Candidate, 0, len(sorted))
	for i, c := range sorted {
		if removed[i] {
			continue
		}
		kept = append(kept, c)
		if limit > 0 && len(kept) == limit {
			break
		}
		for j := i + 1; j < len(sorted); j++ {
			if removed[j] {
				continue
			}
			if o := c.Box.Overlap(sorted[j].Box); o > threshold || o == 1 {
				removed[j] = true
			}
		}
	}
	return kept
}

// Highest returns the best scored candidate only. Ties are resolved in favor of the earlier candidate.
func Highest(cands []Candidate) []Candidate {
	if len(cands) == 0 {
		return nil
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return []Candidate{best}
}

// BestDetection averages the geometry of all candidates overlapping by more than minOverlap with
// the best scored candidate. When weighted is set, each box is weighted by its score and boxes with
// non-positive scores are left out. The returned score is the maximum score of the cluster.
func BestDetection(cands []Candidate, minOverlap float64, weighted bool) (Candidate, error) {
	if len(cands) == 0 {
		return Candidate{}, ErrNoDetections
	}
	top := Highest(cands)[0]

	var tops, lefts, bottoms, rights, weights []float64
	for _, c := range cands {
		if c != top && !(c.Box.Overlap(top.Box) > minOverlap) {
			continue
		}
		if weighted {
			if c.Score <= 0 {
				continue
			}
			weights = append(weights, c.Score)
		}
		tops = append(tops, c.Box.Top)
		lefts = append(lefts, c.Box.Left)
		bottoms = append(bottoms, c.Box.Bottom())
		rights = append(rights, c.Box.Right())
	}
	if len(tops) == 0 {
		// only reachable in weighted mode without any positive score
		return top, nil
	}

	t, l := stat.Mean(tops, weights), stat.Mean(lefts, weights)
	b, r := stat.Mean(bottoms, weights), stat.Mean(rights, weights)
	box, err := NewBoundingBox(t, l, b-t, r-l)
	if err != nil {
		return Candidate{}, errors.Wrap(err, "averaged detection")
	}
	return Candidate{Box: box, Score: top.Score, Accepted: top.Accepted}, nil
}

// Reducer turns the candidates of an image into the final detections.
type Reducer interface {
	Reduce(cands []Candidate) ([]Candidate, error)
}

// NMS keeps the locally best candidates, see PruneLimit.
type NMS struct {
	Threshold float64
	Limit     int
}

func (r NMS) Reduce(cands []Candidate) ([]Candidate, error) {
	return PruneLimit(cands, r.Threshold, r.Limit), nil
}

// Best keeps the single best scored candidate.
type Best struct{}

func (Best) Reduce(cands []Candidate) ([]Candidate, error) {
	return Highest(cands), nil
}

// Average returns the averaged best detection, see BestDetection.
type Average struct {
	MinOverlap float64
	Weighted   bool
}

func (r Average) Reduce(cands []Candidate) ([]Candidate, error) {
	c, err := BestDetection(cands, r.MinOverlap, r.Weighted)
	if err != nil {
		return nil, err
	}
	return []Candidate{c}, nil
}
