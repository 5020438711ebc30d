package facedetect

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Group separates the images of a database.
type Group string

const (
	TrainGroup Group = "train"
	TestGroup  Group = "test"
)

// DatabaseEntry is a single image of a database with the annotations of all of its faces.
type DatabaseEntry struct {
	Path  string       `yaml:"path"`
	Group Group        `yaml:"group"`
	Faces []Annotation `yaml:"faces"`
}

// Database is a list of annotated images, read from a YAML file.
//
//	root: images
//	source: eyes
//	images:
//	  - path: person1.png
//	    group: train
//	    faces:
//	      - {reye: [120, 95], leye: [118, 160]}
type Database struct {
	// Root is the image directory. Relative roots are resolved against the database file.
	Root   string           `yaml:"root"`
	Source AnnotationSource `yaml:"source"`
	Images []DatabaseEntry  `yaml:"images"`
	byPath map[string]int
}

var _ AnnotationProvider = (*Database)(nil)

// LoadDatabase reads the database file.
func LoadDatabase(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read database")
	}
	var db Database
	if err := yaml.Unmarshal(data, &db); err != nil {
		return nil, errors.Wrapf(err, "cannot decode database %s", path)
	}
	if !filepath.IsAbs(db.Root) {
		db.Root = filepath.Join(filepath.Dir(path), db.Root)
	}
	db.index()
	return &db, nil
}

func (db *Database) index() {
	db.byPath = make(map[string]int, len(db.Images))
	for i, e := range db.Images {
		db.byPath[db.Path(e)] = i
	}
}

// lookup finds the entry of the given file name. Databases which were not loaded from a file
// are searched linearly, so that concurrent readers never write to the database.
func (db *Database) lookup(path string) (int, bool) {
	if db.byPath != nil {
		i, ok := db.byPath[path]
		return i, ok
	}
	for i, e := range db.Images {
		if db.Path(e) == path {
			return i, true
		}
	}
	return 0, false
}

// Path returns the image file name of the entry.
func (db *Database) Path(e DatabaseEntry) string {
	if filepath.IsAbs(e.Path) {
		return e.Path
	}
	return filepath.Join(db.Root, e.Path)
}

// Annotations returns the annotated faces of the image with the given file name.
// Unknown images and images without any face are reported as ErrIncompleteAnnotation.
func (db *Database) Annotations(path string) ([]Annotation, error) {
	i, ok := db.lookup(path)
	if !ok {
		return nil, errors.Wrapf(ErrIncompleteAnnotation, "%s is not part of the database", path)
	}
	if len(db.Images[i].Faces) == 0 {
		return nil, errors.Wrapf(ErrIncompleteAnnotation, "%s has no annotated face", path)
	}
	return db.Images[i].Faces, nil
}

// Files returns the image file names of the given group. When limit is non-negative and smaller
// than the number of images, a deterministic, evenly spread subset of limit images is returned.
func (db *Database) Files(group Group, limit int) []string {
	var files []string
	for _, e := range db.Images {
		if e.Group == group {
			files = append(files, db.Path(e))
		}
	}
	selected := make([]string, 0, len(files))
	for _, i := range QuasiRandomIndices(len(files), limit) {
		selected = append(selected, files[i])
	}
	return selected
}
