package facedetect

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xfacereclib/facedetect/utils"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// maxWorkers sets the maximum number of concurrently running workers.
const maxWorkers = 20

// validExtensions lists the supported image files.
var validExtensions = []string{".jpg", ".png", ".jpeg", ".bmp", ".gif"}

// Ops defines the source and the destination of a display run.
// Both may be the pipe name, a directory or a single file; the source may also be a URL.
type Ops struct {
	Src, Dst, PipeName string
	Workers            int
	Draw               DrawOptions
	// Spinner is shown while the images are processed. It may be nil.
	Spinner *utils.Spinner
}

// result holds the relevant information about the detection process and the generated image.
type result struct {
	path string
	err  error
}

// Execute detects the faces in the source image(s) and writes the annotated image(s) to the destination.
// The images of a source directory are processed concurrently; one failing image does not stop the others.
func (l *Localizer) Execute(op *Ops) error {
	if op.Spinner != nil {
		op.Spinner.Start()
		defer op.Spinner.Stop()
	}
	now := time.Now()

	var (
		fs  os.FileInfo
		err error
	)
	switch {
	case utils.IsValidUrl(op.Src):
		// URLs are resolved by LoadImage.
	case op.Src == op.PipeName:
		fs, err = os.Stdin.Stat()
	default:
		fs, err = os.Stat(op.Src)
	}
	if err != nil {
		return errors.Wrap(err, "failed to load the source image")
	}

	if fs != nil && fs.IsDir() {
		err = l.executeDir(op)
	} else {
		ext := filepath.Ext(op.Dst)
		if !isValidExtension(ext, validExtensions) && op.Dst != op.PipeName {
			return errors.Errorf("%v file type not supported", ext)
		}
		err = l.process(op, op.Src, op.Dst)
		op.printOpStatus(op.Dst, err)
	}
	if err == nil {
		fmt.Fprintf(os.Stderr, "\nExecution time: %s\n", utils.DecorateText(utils.FormatTime(time.Since(now)), utils.SuccessMessage))
	}
	return err
}

func (l *Localizer) executeDir(op *Ops) error {
	if _, err := os.Stat(op.Dst); err != nil {
		if err := os.MkdirAll(op.Dst, 0755); err != nil {
			return errors.Wrap(err, "unable to create the destination directory")
		}
	}

	// Limit the concurrently running workers to maxWorkers.
	workers := op.Workers
	if workers <= 0 || workers > maxWorkers {
		workers = runtime.NumCPU()
	}

	// Process recursively the image files from the specified directory concurrently.
	ch := make(chan result)
	done := make(chan interface{})
	defer close(done)

	paths, errc := walkDir(done, op.Src, validExtensions)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			l.consumer(op, ch, done, paths)
		}()
	}

	// Close the channel after the values are consumed.
	go func() {
		defer close(ch)
		wg.Wait()
	}()

	var errs error
	for res := range ch {
		if res.err != nil {
			errs = multierr.Append(errs, errors.Wrap(res.err, res.path))
		}
		op.printOpStatus(res.path, res.err)
	}
	if err := <-errc; err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// consumer reads the path names from the paths channel and runs the detection on the source image.
func (l *Localizer) consumer(
	op *Ops,
	res chan<- result,
	done <-chan interface{},
	paths <-chan string,
) {
	for src := range paths {
		dst := filepath.Join(op.Dst, filepath.Base(src))
		err := l.process(op, src, dst)

		select {
		case <-done:
			return
		case res <- result{
			path: src,
			err:  err,
		}:
		}
	}
}

// process detects the faces of a single image and writes the annotated image.
func (l *Localizer) process(op *Ops, in, out string) error {
	src, err := op.readImage(in)
	if err != nil {
		return err
	}
	loc, err := l.Localize(NewImage(src))
	if err != nil {
		return err
	}
	best := loc.Best()
	l.logger().Info("best detection",
		zap.String("file", in),
		zap.Float64("score", best.Score),
		zap.Stringer("box", best.Box))

	dst, err := op.writer(out)
	if err != nil {
		return err
	}
	ext := filepath.Ext(out)
	if out == op.PipeName {
		ext = ".png"
	}
	err = EncodeImage(dst, ext, Annotate(src, loc, nil, op.Draw))
	if f, ok := dst.(*os.File); ok && f != os.Stdout {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			// remove the generated image file in case of an error
			os.Remove(out)
		}
	}
	return err
}

// readImage decodes the image at the given path, URL or pipe.
func (op *Ops) readImage(in string) (image.Image, error) {
	if in == op.PipeName {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, errors.New("`-` should be used with a pipe for stdin")
		}
		return decodeImg(os.Stdin)
	}
	return LoadImage(in)
}

// writer opens the destination file or the pipe.
func (op *Ops) writer(out string) (io.Writer, error) {
	if out == op.PipeName {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return nil, errors.New("`-` should be used with a pipe for stdout")
		}
		return os.Stdout, nil
	}
	f, err := os.OpenFile(out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create the destination file")
	}
	return f, nil
}

// printOpStatus displays the relevant information about the detection process.
func (op *Ops) printOpStatus(fname string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n%s %s\n",
			utils.DecorateText("Error detecting the faces of "+filepath.Base(fname)+":", utils.ErrorMessage),
			utils.DecorateText(err.Error(), utils.DefaultMessage),
		)
		return
	}
	if fname != op.PipeName {
		fmt.Fprintf(os.Stderr, "\nThe image has been saved as: %s %s\n",
			utils.DecorateText(filepath.Base(fname), utils.SuccessMessage),
			utils.DefaultColor,
		)
	}
}

// walkDir starts a new goroutine to walk the specified directory tree
// in recursive manner and sends the path of each regular file to a new channel.
// It finishes in case the done channel is getting closed.
func walkDir(
	done <-chan interface{},
	src string,
	srcExts []string,
) (<-chan string, <-chan error) {
	pathChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		// Close the paths channel after Walk returns.
		defer close(pathChan)

		errChan <- filepath.Walk(src, func(path string, f os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !f.Mode().IsRegular() || !isValidExtension(filepath.Ext(f.Name()), srcExts) {
				return nil
			}
			select {
			case <-done:
				return errors.New("directory walk cancelled")
			case pathChan <- path:
			}
			return nil
		})
	}()
	return pathChan, errChan
}

// isValidExtension checks for the supported extensions.
func isValidExtension(ext string, extensions []string) bool {
	ext = strings.ToLower(ext)
	for _, ex := range extensions {
		if ex == ext {
			return true
		}
	}
	return false
}
