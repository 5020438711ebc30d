package facedetect

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantLUT(v float64) []float64 {
	lut := make([]float64, MaxLabel)
	for i := range lut {
		lut[i] = v
	}
	return lut
}

func testModel() *CascadeModel {
	return &CascadeModel{
		Extractor: ExtractorConfig{PatchHeight: 6, PatchWidth: 6, MinSize: 1},
		Stages: []StageModel{
			{Threshold: 0.5, Weak: []WeakClassifier{{Feature: 0, LUT: constantLUT(1)}}},
			{Threshold: 1, Weak: []WeakClassifier{{Feature: 3, LUT: constantLUT(-0.25)}, {Feature: 7, LUT: constantLUT(0.5)}}},
		},
	}
}

func TestCascadeModel_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cascade.yaml")
	m := testModel()
	require.NoError(t, SaveCascade(path, m))

	loaded, err := LoadCascade(path)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)

	cascade, e, err := loaded.Build()
	require.NoError(t, err)
	assert.Equal(t, 2, cascade.Stages())
	assert.Equal(t, 25, e.NumFeatures())

	score, accepted := cascade.Classify(blankImage(6, 6), box(0, 0, 6, 6))
	assert.True(t, accepted)
	assert.Equal(t, 1.25, score)
}

func TestCascadeModel_BuildShouldRejectInvalidModels(t *testing.T) {
	for name, mutate := range map[string]func(*CascadeModel){
		"no stages":       func(m *CascadeModel) { m.Stages = nil },
		"bad extractor":   func(m *CascadeModel) { m.Extractor.PatchHeight = 0 },
		"unknown feature": func(m *CascadeModel) { m.Stages[0].Weak[0].Feature = 100 },
		"short table":     func(m *CascadeModel) { m.Stages[1].Weak[0].LUT = []float64{1} },
		"no weak":         func(m *CascadeModel) { m.Stages[1].Weak = nil },
		"infinite":        func(m *CascadeModel) { m.Stages[0].Threshold = math.Inf(1) },
	} {
		t.Run(name, func(t *testing.T) {
			m := testModel()
			mutate(m)
			_, _, err := m.Build()
			assert.ErrorIs(t, err, ErrInvalidCascade)
		})
	}
}

func TestReadCascade_ShouldRejectMalformedInput(t *testing.T) {
	_, err := ReadCascade(strings.NewReader("stages: [oops"))
	assert.ErrorIs(t, err, ErrInvalidCascade)

	_, err = LoadCascade(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
