package facedetect

import (
	"image"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingScorer returns a constant score and counts its evaluations.
type countingScorer struct {
	score float64
	calls int64
}

func (c *countingScorer) Score(*Image, BoundingBox) float64 {
	atomic.AddInt64(&c.calls, 1)
	return c.score
}

func blankImage(h, w int) *Image {
	return NewImage(image.NewGray(image.Rect(0, 0, w, h)))
}

func TestCascade_ShouldRejectEmptyAndMalformed(t *testing.T) {
	_, err := NewCascade()
	assert.ErrorIs(t, err, ErrInvalidCascade)

	_, err = NewCascade(Stage{Threshold: 0})
	assert.ErrorIs(t, err, ErrInvalidCascade)

	_, err = NewCascade(Stage{Scorer: &countingScorer{}, Threshold: math.NaN()})
	assert.ErrorIs(t, err, ErrInvalidCascade)
}

func TestCascade_ShouldExitEarly(t *testing.T) {
	assert := assert.New(t)

	s1 := &countingScorer{score: 1}
	s2 := &countingScorer{score: -5}
	s3 := &countingScorer{score: 10}
	c, err := NewCascade(
		Stage{Scorer: s1, Threshold: 0},
		Stage{Scorer: s2, Threshold: 0},
		Stage{Scorer: s3, Threshold: 0},
	)
	require.NoError(t, err)
	assert.Equal(3, c.Stages())

	score, accepted, evaluated := c.Evaluate(blankImage(1, 1), box(0, 0, 1, 1))
	assert.False(accepted)
	assert.Equal(2, evaluated)
	assert.Equal(-4.0, score)
	assert.EqualValues(1, s1.calls)
	assert.EqualValues(1, s2.calls)
	assert.EqualValues(0, s3.calls, "stages after the rejection must not be evaluated")
}

func TestCascade_ShouldAccumulateAcceptedScore(t *testing.T) {
	c, err := NewCascade(
		Stage{Scorer: &countingScorer{score: 0.5}, Threshold: 0.5},
		Stage{Scorer: &countingScorer{score: 1.5}, Threshold: 1},
	)
	require.NoError(t, err)

	score, accepted := c.Classify(blankImage(1, 1), box(0, 0, 1, 1))
	assert.True(t, accepted, "an accumulated score equal to the threshold passes")
	assert.Equal(t, 2.0, score)
}

func TestCascade_SingleStageShouldEqualSingleClassifier(t *testing.T) {
	img := blankImage(1, 1)
	for _, score := range []float64{-1, 0, 0.25, 0.5, 3} {
		s := ScorerFunc(func(*Image, BoundingBox) float64 { return score })
		c, err := NewCascade(Stage{Scorer: s, Threshold: 0.25})
		require.NoError(t, err)

		cs, ca := c.Classify(img, box(0, 0, 1, 1))
		ss, sa := Single(s, 0.25).Classify(img, box(0, 0, 1, 1))
		assert.Equal(t, ss, cs)
		assert.Equal(t, sa, ca)
	}
}
