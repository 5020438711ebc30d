package facedetect

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// RunHeader describes the detection configuration a result file was created with.
type RunHeader struct {
	CascadeFile         string
	Distance            int
	ScaleBase           float64
	LowestScale         float64
	PredictionThreshold *float64
}

func (h RunHeader) String() string {
	threshold := "None"
	if h.PredictionThreshold != nil {
		threshold = fmt.Sprintf("%f", *h.PredictionThreshold)
	}
	return fmt.Sprintf("# --cascade-file %s --distance %d --scale-base %f --lowest-scale %s --prediction-threshold %s",
		h.CascadeFile, h.Distance, h.ScaleBase, strconv.FormatFloat(h.LowestScale, 'g', -1, 64), threshold)
}

// columnHeader names the columns of every result file.
const columnHeader = "# file re-y re-x le-y le-x ..."

// ResultWriter writes one line of landmark positions per image:
//
//	path y1 x1 y2 x2 ...
type ResultWriter struct {
	w   *bufio.Writer
	err error
}

// NewResultWriter writes the file header. The configuration line is left out when header is nil.
func NewResultWriter(w io.Writer, header *RunHeader) *ResultWriter {
	rw := &ResultWriter{w: bufio.NewWriter(w)}
	if header != nil {
		rw.line(header.String())
	}
	rw.line(columnHeader)
	return rw
}

func (rw *ResultWriter) line(s string) {
	if rw.err != nil {
		return
	}
	_, rw.err = rw.w.WriteString(s + "\n")
}

// Write adds the row of the given image.
func (rw *ResultWriter) Write(path string, points []Point) error {
	row := path
	for _, p := range points {
		row += fmt.Sprintf(" %f %f", p.Y, p.X)
	}
	rw.line(row)
	return rw.err
}

// WriteLandmarks adds the row of the given image, in the order of the landmarks.
func (rw *ResultWriter) WriteLandmarks(path string, landmarks []Landmark) error {
	points := make([]Point, len(landmarks))
	for i, l := range landmarks {
		points[i] = l.Point
	}
	return rw.Write(path, points)
}

// Flush writes the buffered rows to the underlying writer.
func (rw *ResultWriter) Flush() error {
	if rw.err != nil {
		return errors.Wrap(rw.err, "cannot write results")
	}
	return errors.Wrap(rw.w.Flush(), "cannot write results")
}
