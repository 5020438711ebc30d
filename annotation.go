package facedetect

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Point is a landmark position in image coordinates.
type Point struct {
	Y, X float64
}

func (p Point) String() string { return fmt.Sprintf("(%.2f,%.2f)", p.Y, p.X) }

// UnmarshalYAML decodes a point given as a [y, x] sequence.
func (p *Point) UnmarshalYAML(node *yaml.Node) error {
	var yx []float64
	if err := node.Decode(&yx); err != nil {
		return err
	}
	if len(yx) != 2 {
		return errors.Errorf("line %d: a point needs exactly two coordinates, got %d", node.Line, len(yx))
	}
	p.Y, p.X = yx[0], yx[1]
	return nil
}

// MarshalYAML encodes the point as a [y, x] flow sequence.
func (p Point) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range []float64{p.Y, p.X} {
		var n yaml.Node
		if err := n.Encode(v); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &n)
	}
	return node, nil
}

// Annotation holds the named landmarks of a single face.
type Annotation map[string]Point

// AnnotationProvider lists the annotated faces of an image.
type AnnotationProvider interface {
	Annotations(path string) ([]Annotation, error)
}

// AnnotationSource selects the landmarks a face bounding box is computed from.
type AnnotationSource string

const (
	// AutoSource uses the corners when they are annotated and the eyes otherwise.
	AutoSource AnnotationSource = ""
	// DirectSource reads the "topleft" and "bottomright" corners.
	DirectSource AnnotationSource = "direct"
	// EyesSource places the box around the "leye" and "reye" positions.
	EyesSource AnnotationSource = "eyes"
	// LeftProfileSource and RightProfileSource use the "eye" and "mouth" of a profile face.
	LeftProfileSource  AnnotationSource = "left-profile"
	RightProfileSource AnnotationSource = "right-profile"
)

// padding is given in units of the landmark distance, relative to the landmark center.
type padding struct {
	top, bottom, left, right float64
}

var paddings = map[AnnotationSource]padding{
	EyesSource:         {top: -0.7, bottom: 1.7, left: -1, right: 1},
	LeftProfileSource:  {top: -1, bottom: 1, left: -0.2, right: 0.8},
	RightProfileSource: {top: -1, bottom: 1, left: -0.8, right: 0.2},
}

func (a Annotation) points(names ...string) ([]Point, error) {
	pts := make([]Point, len(names))
	for i, n := range names {
		p, ok := a[n]
		if !ok {
			return nil, errors.Wrapf(ErrIncompleteAnnotation, "missing landmark %q", n)
		}
		pts[i] = p
	}
	return pts, nil
}

// BoundingBoxFromAnnotation computes the face bounding box from the landmarks of the given source.
// Missing landmarks are reported as ErrIncompleteAnnotation.
func BoundingBoxFromAnnotation(a Annotation, source AnnotationSource) (BoundingBox, error) {
	if source == AutoSource {
		source = EyesSource
		if _, ok := a["topleft"]; ok {
			source = DirectSource
		}
	}

	switch source {
	case DirectSource:
		pts, err := a.points("topleft", "bottomright")
		if err != nil {
			return BoundingBox{}, err
		}
		return NewBoundingBox(pts[0].Y, pts[0].X, pts[1].Y-pts[0].Y, pts[1].X-pts[0].X)

	case EyesSource:
		pts, err := a.points("reye", "leye")
		if err != nil {
			return BoundingBox{}, err
		}
		d := math.Hypot(pts[1].Y-pts[0].Y, pts[1].X-pts[0].X)
		cy, cx := (pts[0].Y+pts[1].Y)/2, (pts[0].X+pts[1].X)/2
		return paddings[source].around(cy, cx, d)

	case LeftProfileSource, RightProfileSource:
		pts, err := a.points("eye", "mouth")
		if err != nil {
			return BoundingBox{}, err
		}
		d := math.Abs(pts[1].Y - pts[0].Y)
		return paddings[source].around((pts[0].Y+pts[1].Y)/2, pts[0].X, d)
	}
	return BoundingBox{}, errors.Errorf("unknown annotation source %q", source)
}

func (p padding) around(cy, cx, d float64) (BoundingBox, error) {
	bb, err := NewBoundingBox(cy+p.top*d, cx+p.left*d, (p.bottom-p.top)*d, (p.right-p.left)*d)
	if err != nil {
		return BoundingBox{}, errors.Wrap(ErrIncompleteAnnotation, err.Error())
	}
	return bb, nil
}

// ExpectedEyePositions returns the right and left eye positions for which
// BoundingBoxFromAnnotation with the eyes source would produce the given box.
func ExpectedEyePositions(bb BoundingBox) (reye, leye Point) {
	p := paddings[EyesSource]
	d := bb.Width / (p.right - p.left)
	y := bb.Top - p.top*d
	reye = Point{Y: y, X: bb.Left - p.left/2*d}
	leye = Point{Y: y, X: bb.Right() - p.right/2*d}
	return reye, leye
}
