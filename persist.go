package facedetect

import (
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// StageModel is the serialized form of a single cascade stage.
type StageModel struct {
	Threshold float64          `yaml:"threshold"`
	Weak      []WeakClassifier `yaml:"weak"`
}

// CascadeModel is the serialized classifier: the feature extractor configuration
// and the ordered stages of weak classifiers with their rejection thresholds.
type CascadeModel struct {
	Extractor ExtractorConfig `yaml:"extractor"`
	Stages    []StageModel    `yaml:"stages"`
}

// Build creates the extractor and the cascade described by the model.
func (m *CascadeModel) Build() (*Cascade, *LBPExtractor, error) {
	if len(m.Stages) == 0 {
		return nil, nil, errors.Wrap(ErrInvalidCascade, "model has no stages")
	}
	e, err := NewLBPExtractor(m.Extractor)
	if err != nil {
		return nil, nil, errors.Wrap(ErrInvalidCascade, err.Error())
	}
	stages := make([]Stage, len(m.Stages))
	for i, s := range m.Stages {
		if math.IsInf(s.Threshold, 0) && s.Threshold > 0 {
			return nil, nil, errors.Wrapf(ErrInvalidCascade, "stage %d rejects every window", i)
		}
		scorer, err := NewBoostedScorer(e, s.Weak)
		if err != nil {
			return nil, nil, errors.Wrapf(ErrInvalidCascade, "stage %d: %v", i, err)
		}
		stages[i] = Stage{Scorer: scorer, Threshold: s.Threshold}
	}
	c, err := NewCascade(stages...)
	if err != nil {
		return nil, nil, err
	}
	c.patchHeight, c.patchWidth = m.Extractor.PatchHeight, m.Extractor.PatchWidth
	return c, e, nil
}

// ReadCascade decodes a cascade model from r.
func ReadCascade(r io.Reader) (*CascadeModel, error) {
	var m CascadeModel
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, errors.Wrapf(ErrInvalidCascade, "cannot decode cascade: %v", err)
	}
	return &m, nil
}

// LoadCascade reads a cascade model file.
func LoadCascade(path string) (*CascadeModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open cascade file")
	}
	defer f.Close()
	m, err := ReadCascade(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return m, nil
}

// SaveCascade writes the cascade model to the given file.
func SaveCascade(path string, m *CascadeModel) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "cannot create cascade file")
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return errors.Wrap(err, "cannot encode cascade")
	}
	return enc.Close()
}
