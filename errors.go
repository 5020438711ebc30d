package facedetect

import "github.com/pkg/errors"

var (
	// ErrInvalidGeometry is returned when a bounding box with a non-positive height or width is constructed.
	ErrInvalidGeometry = errors.New("invalid bounding box geometry")

	// ErrInvalidCascade is returned for a cascade without stages or with malformed stages.
	ErrInvalidCascade = errors.New("invalid cascade")

	// ErrNoDetections is returned when a single detection is required but none is available.
	ErrNoDetections = errors.New("no detections")

	// ErrIncompleteAnnotation marks an image skipped because required landmarks are missing.
	ErrIncompleteAnnotation = errors.New("incomplete annotation")

	// ErrUnreadableImage marks an image that could not be loaded or decoded.
	ErrUnreadableImage = errors.New("unreadable image")
)

// skipErr reports whether err is a per-item failure which is counted instead of aborting a batch.
func skipErr(err error) bool {
	return errors.Is(err, ErrIncompleteAnnotation) || errors.Is(err, ErrUnreadableImage)
}
