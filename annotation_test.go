package facedetect

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPoint_YAML(t *testing.T) {
	var a Annotation
	require.NoError(t, yaml.Unmarshal([]byte("{reye: [120, 95], leye: [118.5, 160]}"), &a))
	assert.Equal(t, Annotation{"reye": {Y: 120, X: 95}, "leye": {Y: 118.5, X: 160}}, a)

	out, err := yaml.Marshal(Annotation{"eye": {Y: 1.5, X: 2}})
	require.NoError(t, err)
	assert.Equal(t, "eye: [1.5, 2]\n", string(out))

	var p Point
	assert.Error(t, yaml.Unmarshal([]byte("[1, 2, 3]"), &p))
}

func TestBoundingBoxFromAnnotation_Eyes(t *testing.T) {
	assert := assert.New(t)

	a := Annotation{"reye": {Y: 100, X: 80}, "leye": {Y: 100, X: 120}}
	bb, err := BoundingBoxFromAnnotation(a, EyesSource)
	require.NoError(t, err)
	// the eye distance is 40
	assert.InDelta(100-0.7*40, bb.Top, 1e-9)
	assert.InDelta(60, bb.Left, 1e-9)
	assert.InDelta(2.4*40, bb.Height, 1e-9)
	assert.InDelta(80, bb.Width, 1e-9)

	reye, leye := ExpectedEyePositions(bb)
	assert.InDelta(a["reye"].Y, reye.Y, 1e-9)
	assert.InDelta(a["reye"].X, reye.X, 1e-9)
	assert.InDelta(a["leye"].Y, leye.Y, 1e-9)
	assert.InDelta(a["leye"].X, leye.X, 1e-9)

	auto, err := BoundingBoxFromAnnotation(a, AutoSource)
	require.NoError(t, err)
	assert.Equal(bb, auto)
}

func TestBoundingBoxFromAnnotation_ExpectedEyesShouldInvertBox(t *testing.T) {
	for _, bb := range []BoundingBox{box(10, 20, 48, 40), box(-3.5, 7.25, 120, 100)} {
		reye, leye := ExpectedEyePositions(bb)
		back, err := BoundingBoxFromAnnotation(Annotation{"reye": reye, "leye": leye}, EyesSource)
		require.NoError(t, err)
		assert.InDelta(t, bb.Top, back.Top, 1e-9)
		assert.InDelta(t, bb.Left, back.Left, 1e-9)
		assert.InDelta(t, bb.Height, back.Height, 1e-9)
		assert.InDelta(t, bb.Width, back.Width, 1e-9)
	}
}

func TestBoundingBoxFromAnnotation_DirectAndProfile(t *testing.T) {
	assert := assert.New(t)

	bb, err := BoundingBoxFromAnnotation(faceAt(5, 6, 30, 20), AutoSource)
	require.NoError(t, err)
	assert.Equal(box(5, 6, 30, 20), bb)

	profile := Annotation{"eye": {Y: 40, X: 50}, "mouth": {Y: 80, X: 55}}
	left, err := BoundingBoxFromAnnotation(profile, LeftProfileSource)
	require.NoError(t, err)
	assert.InDelta(20, left.Top, 1e-9)
	assert.InDelta(42, left.Left, 1e-9)
	assert.InDelta(80, left.Height, 1e-9)
	assert.InDelta(40, left.Width, 1e-9)

	right, err := BoundingBoxFromAnnotation(profile, RightProfileSource)
	require.NoError(t, err)
	assert.InDelta(18, right.Left, 1e-9)
	assert.InDelta(math.Abs(left.Width), right.Width, 1e-9)
}

func TestBoundingBoxFromAnnotation_ShouldReportIncompleteAnnotation(t *testing.T) {
	for name, tc := range map[string]struct {
		a      Annotation
		source AnnotationSource
	}{
		"missing eye":    {a: Annotation{"reye": {Y: 1, X: 1}}, source: EyesSource},
		"missing mouth":  {a: Annotation{"eye": {Y: 1, X: 1}}, source: LeftProfileSource},
		"missing corner": {a: Annotation{"topleft": {Y: 1, X: 1}}, source: AutoSource},
		"same eyes":      {a: Annotation{"reye": {Y: 1, X: 1}, "leye": {Y: 1, X: 1}}, source: EyesSource},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := BoundingBoxFromAnnotation(tc.a, tc.source)
			assert.ErrorIs(t, err, ErrIncompleteAnnotation)
		})
	}
	_, err := BoundingBoxFromAnnotation(Annotation{}, "frontal")
	assert.Error(t, err)
}

const testDatabase = `
root: images
source: eyes
images:
  - path: a.png
    group: train
    faces:
      - {reye: [120, 95], leye: [118, 160]}
  - path: b.png
    group: test
    faces:
      - {reye: [20, 10], leye: [20, 30]}
      - {reye: [60, 10], leye: [60, 30]}
  - path: c.png
    group: train
  - path: d.png
    group: train
    faces:
      - {topleft: [0, 0], bottomright: [10, 10]}
`

func TestDatabase(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "db.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDatabase), 0644))

	db, err := LoadDatabase(path)
	require.NoError(t, err)
	assert.Equal(EyesSource, db.Source)
	assert.Equal(filepath.Join(dir, "images"), db.Root)

	train := db.Files(TrainGroup, -1)
	assert.Equal([]string{
		filepath.Join(dir, "images", "a.png"),
		filepath.Join(dir, "images", "c.png"),
		filepath.Join(dir, "images", "d.png"),
	}, train)
	assert.Equal([]string{filepath.Join(dir, "images", "c.png")}, db.Files(TrainGroup, 1))
	assert.Len(db.Files(TestGroup, 5), 1)

	faces, err := db.Annotations(filepath.Join(dir, "images", "b.png"))
	require.NoError(t, err)
	assert.Len(faces, 2)
	assert.Equal(Point{Y: 60, X: 10}, faces[1]["reye"])

	_, err = db.Annotations(filepath.Join(dir, "images", "c.png"))
	assert.ErrorIs(err, ErrIncompleteAnnotation)
	_, err = db.Annotations("unknown.png")
	assert.ErrorIs(err, ErrIncompleteAnnotation)

	_, err = LoadDatabase(filepath.Join(dir, "missing.yaml"))
	assert.Error(err)
}

func TestDatabase_WithoutIndex(t *testing.T) {
	db := &Database{Root: "/data", Images: []DatabaseEntry{
		{Path: "x.png", Group: TestGroup, Faces: []Annotation{faceAt(0, 0, 10, 10)}},
	}}
	faces, err := db.Annotations(filepath.Join("/data", "x.png"))
	require.NoError(t, err)
	assert.Len(t, faces, 1)
}
