package main

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"github.com/xfacereclib/facedetect"
	"github.com/xfacereclib/facedetect/utils"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const HelpBanner = `
┌─┐┌─┐┌─┐┌─┐  ┌┬┐┌─┐┌┬┐┌─┐┌─┐┌┬┐
├┤ ├─┤│  ├┤    ││├┤  │ ├┤ │   │
└  ┴ ┴└─┘└─┘  ─┴┘└─┘ ┴ └─┘└─┘ ┴

Sliding window face detection.
    Version: %s

`

// pipeName is the file name that indicates stdin/stdout is being used.
const pipeName = "-"

// Version indicates the current build version.
var Version string

const (
	// Flags.
	flagVerbose              = "verbose"
	flagWorkers              = "conc"
	flagDatabase             = "database"
	flagSource               = "annotation-source"
	flagLimitFiles           = "limit-files"
	flagCascadeFile          = "cascade-file"
	flagDetector             = "detector"
	flagPigoCascade          = "pigo-cascade"
	flagDistance             = "distance"
	flagScaleBase            = "scale-base"
	flagFirstScale           = "first-scale"
	flagLowestScale          = "lowest-scale"
	flagMinimumScale         = "minimum-scale"
	flagPredictionThreshold  = "prediction-threshold"
	flagSimilarityThresholds = "similarity-thresholds"
	flagPrune                = "prune-detections"
	flagBestOverlap          = "best-detection-overlap"
	flagWeighted             = "weighted"
	flagExamplesPerScale     = "examples-per-image-scale"
	flagTrainingExamples     = "training-examples"
	flagLBPSquare            = "lbp-square"
	flagLBPOverlap           = "lbp-overlap"
	flagLBPMinSize           = "lbp-min-size"
	flagLBPMaxSize           = "lbp-max-size"
	flagDatasetFile          = "dataset-file"
	flagModelFile            = "model-file"
	flagWriteExamples        = "write-examples"
	flagRefiner              = "refiner"
	flagPuplocCascade        = "puploc-cascade"
	flagLandmarkDir          = "landmark-dir"
	flagResultDirectory      = "result-directory"
	flagGroundTruthFile      = "ground-truth-file"
	flagDetectionFile        = "detection-error-file"
	flagLandmarkFile         = "landmark-error-file"
	flagOutputDirectory      = "output-directory"
	flagIn                   = "in"
	flagOut                  = "out"

	detectorBoosted = "boosted"
	detectorPigo    = "pigo"
)

func main() {
	var logger *zap.Logger

	app := &cli.App{
		Name:    "facedetect",
		Usage:   "sliding window face detection",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagVerbose,
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
				EnvVars: []string{"FACEDETECT_VERBOSE"},
			},
			&cli.IntFlag{
				Name:    flagWorkers,
				Value:   runtime.NumCPU(),
				Usage:   "number of images or scales to process concurrently",
				EnvVars: []string{"FACEDETECT_WORKERS"},
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			logger, err = newLogger(c.Bool(flagVerbose))
			return err
		},
		After: func(c *cli.Context) error {
			if logger != nil {
				_ = logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "train",
				Usage: "collect the training examples of a database and extract their features",
				Description: "The features are written as a dataset for an external boosting step. The model file only\n" +
					"holds the feature extractor configuration: append the boosted stages to it before passing it\n" +
					"to localize or display with --cascade-file.",
				Flags: append(samplingFlags(4, math.Pow(2, -1./4.), 1, 0),
					&cli.PathFlag{
						Name:     flagDatabase,
						Aliases:  []string{"d"},
						Required: true,
						Usage:    "the database `FILE` to get the training images from",
						EnvVars:  []string{"FACEDETECT_DATABASE"},
					},
					&cli.StringFlag{Name: flagSource, Aliases: []string{"a"}, Usage: "the landmarks the face boxes are computed from (direct, eyes, left-profile, right-profile)"},
					&cli.IntFlag{Name: flagLimitFiles, Aliases: []string{"y"}, Value: -1, Usage: "limit the number of training files"},
					&cli.Float64SliceFlag{Name: flagSimilarityThresholds, Aliases: []string{"t"}, Value: cli.NewFloat64Slice(0.3, 0.7), Usage: "overlap below the first value is negative, above the second value positive"},
					&cli.IntSliceFlag{Name: flagExamplesPerScale, Aliases: []string{"e"}, Value: cli.NewIntSlice(100, 100), Usage: "positive and negative examples per image scale"},
					&cli.IntSliceFlag{Name: flagTrainingExamples, Aliases: []string{"E"}, Value: cli.NewIntSlice(10000, 10000), Usage: "positive and negative examples of the whole training set"},
					&cli.BoolFlag{Name: flagLBPSquare, Aliases: []string{"Q"}, Usage: "generate only square LBP features"},
					&cli.BoolFlag{Name: flagLBPOverlap, Aliases: []string{"o"}, Usage: "generate LBP features with overlapping blocks"},
					&cli.IntFlag{Name: flagLBPMinSize, Value: 1, Usage: "the minimum LBP block size"},
					&cli.IntFlag{Name: flagLBPMaxSize, Usage: "the maximum LBP block size, limited by the patch size when 0"},
					&cli.PathFlag{Name: flagDatasetFile, Value: "dataset.bin", Usage: "the `FILE` to write the feature matrix and the labels into"},
					&cli.PathFlag{Name: flagModelFile, Value: "cascade.yaml", Usage: "the `FILE` to write the feature extractor configuration into, without any boosted stage"},
					&cli.PathFlag{Name: flagWriteExamples, Aliases: []string{"x"}, Usage: "write the positive training examples into the given directory"},
				),
				Action: func(c *cli.Context) error {
					return exitOnError(train(c, logger))
				},
			},
			{
				Name:  "localize",
				Usage: "detect the faces of the test images of a database and write the result files",
				Flags: append(append(samplingFlags(2, math.Pow(2, -1./16.), 1, 0.125), detectionFlags()...),
					&cli.PathFlag{
						Name:     flagDatabase,
						Aliases:  []string{"d"},
						Required: true,
						Usage:    "the database `FILE` to get the test images from",
						EnvVars:  []string{"FACEDETECT_DATABASE"},
					},
					&cli.StringFlag{Name: flagSource, Aliases: []string{"a"}, Usage: "the landmarks the ground truth boxes are computed from"},
					&cli.IntFlag{Name: flagLimitFiles, Aliases: []string{"y"}, Value: -1, Usage: "limit the number of test files"},
					&cli.PathFlag{Name: flagResultDirectory, Aliases: []string{"D"}, Usage: "the directory the result files are placed into"},
					&cli.StringFlag{Name: flagGroundTruthFile, Aliases: []string{"g"}, Value: "ground_truth.txt", Usage: "the file to write the ground truth eyes into"},
					&cli.StringFlag{Name: flagDetectionFile, Aliases: []string{"e"}, Value: "detections.txt", Usage: "the file to write the eyes of the detected faces into"},
					&cli.StringFlag{Name: flagLandmarkFile, Aliases: []string{"E"}, Value: "landmarks.txt", Usage: "the file to write the refined landmarks into"},
					&cli.PathFlag{Name: flagOutputDirectory, Aliases: []string{"o"}, Usage: "write the detected faces into the given directory"},
				),
				Action: func(c *cli.Context) error {
					return exitOnError(localize(c, logger))
				},
			},
			{
				Name:  "display",
				Usage: "draw the detected faces of an image or a directory of images",
				Flags: append(append(samplingFlags(5, math.Pow(2, -1./16.), 0.5, 0), detectionFlags()...),
					&cli.StringFlag{Name: flagIn, Aliases: []string{"i"}, Value: pipeName, Usage: "source image, directory or URL"},
					&cli.StringFlag{Name: flagOut, Value: pipeName, Usage: "destination image or directory"},
				),
				Action: func(c *cli.Context) error {
					return exitOnError(display(c, logger))
				},
			},
		},
	}

	cli.AppHelpTemplate = fmt.Sprintf(HelpBanner, Version) + cli.AppHelpTemplate
	if err := app.Run(os.Args); err != nil {
		// command errors have been reported by cli.Exit already
		if _, ok := err.(cli.ExitCoder); !ok {
			fmt.Fprintln(os.Stderr, utils.DecorateText(err.Error(), utils.ErrorMessage))
		}
		os.Exit(1)
	}
}

// exitOnError turns a command error into a colored message and a non-zero exit status.
func exitOnError(err error) error {
	if err == nil {
		return nil
	}
	return cli.Exit(utils.DecorateText(err.Error(), utils.ErrorMessage), 1)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func samplingFlags(distance int, scaleBase, firstScale, lowestScale float64) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: flagDistance, Aliases: []string{"s"}, Value: distance, Usage: "the distance with which the image should be scanned", EnvVars: []string{"FACEDETECT_DISTANCE"}},
		&cli.Float64Flag{Name: flagScaleBase, Aliases: []string{"S"}, Value: scaleBase, Usage: "the logarithmic distance between two scales (between 0 and 1)", EnvVars: []string{"FACEDETECT_SCALE_BASE"}},
		&cli.Float64Flag{Name: flagFirstScale, Aliases: []string{"f"}, Value: firstScale, Usage: "the first scale of the image to consider"},
		&cli.Float64Flag{Name: flagLowestScale, Value: lowestScale, Usage: "faces smaller than the given scale times the image resolution are not searched for"},
		&cli.Float64Flag{Name: flagMinimumScale, Usage: "the smallest scale of the image to consider, limited by the patch size when 0"},
	}
}

func detectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.PathFlag{Name: flagCascadeFile, Aliases: []string{"r"}, Usage: "the cascade `FILE` of the boosted detector", EnvVars: []string{"FACEDETECT_CASCADE"}},
		&cli.StringFlag{Name: flagDetector, Value: detectorBoosted, Usage: "the face detector (boosted or pigo)"},
		&cli.PathFlag{Name: flagPigoCascade, Usage: "the pigo face finder cascade `FILE`"},
		&cli.Float64Flag{Name: flagPredictionThreshold, Aliases: []string{"H"}, Usage: "detections with values not above this threshold are rejected"},
		&cli.Float64Flag{Name: flagPrune, Aliases: []string{"p"}, Usage: "prune detections overlapping by more than the given value"},
		&cli.Float64Flag{Name: flagBestOverlap, Aliases: []string{"b"}, Usage: "average the detections overlapping with the best one by more than the given value"},
		&cli.BoolFlag{Name: flagWeighted, Usage: "weight the averaged detections by their score"},
		&cli.StringFlag{Name: flagRefiner, Aliases: []string{"L"}, Value: string(facedetect.GeometryRefiner), Usage: "the landmark refiner (geometry, puploc or landmarks)"},
		&cli.PathFlag{Name: flagPuplocCascade, Usage: "the pigo pupil localization cascade `FILE`"},
		&cli.PathFlag{Name: flagLandmarkDir, Usage: "the directory of the pigo facial landmark cascades"},
	}
}

func samplingConfig(c *cli.Context) (facedetect.Config, error) {
	cfg := facedetect.DefaultConfig()
	cfg.Distance = c.Int(flagDistance)
	cfg.ScaleBase = c.Float64(flagScaleBase)
	cfg.FirstScale = c.Float64(flagFirstScale)
	cfg.LowestScale = c.Float64(flagLowestScale)
	cfg.MinimumScale = c.Float64(flagMinimumScale)
	return cfg, cfg.Validate()
}

func optionalFloat(c *cli.Context, name string) *float64 {
	if !c.IsSet(name) {
		return nil
	}
	v := c.Float64(name)
	return &v
}

func pair[T any](values []T, name string) (T, T, error) {
	var zero T
	if len(values) != 2 {
		return zero, zero, errors.Errorf("--%s expects two values, got %d", name, len(values))
	}
	return values[0], values[1], nil
}

func spinner(msg string) *utils.Spinner {
	text := fmt.Sprintf("%s %s",
		utils.DecorateText("⚡ FACEDETECT", utils.StatusMessage),
		utils.DecorateText(msg, utils.DefaultMessage))
	return utils.NewSpinner(text, time.Millisecond*200, true)
}

func train(c *cli.Context, logger *zap.Logger) error {
	cfg, err := samplingConfig(c)
	if err != nil {
		return err
	}
	sampler, err := facedetect.NewSampler(cfg)
	if err != nil {
		return err
	}
	sampler.Logger = logger

	tcfg := facedetect.DefaultTrainingConfig()
	if tcfg.LowThreshold, tcfg.HighThreshold, err = pair(c.Float64Slice(flagSimilarityThresholds), flagSimilarityThresholds); err != nil {
		return err
	}
	if tcfg.PositivesPerScale, tcfg.NegativesPerScale, err = pair(c.IntSlice(flagExamplesPerScale), flagExamplesPerScale); err != nil {
		return err
	}
	if tcfg.MaxPositives, tcfg.MaxNegatives, err = pair(c.IntSlice(flagTrainingExamples), flagTrainingExamples); err != nil {
		return err
	}

	ecfg := facedetect.ExtractorConfig{
		PatchHeight: cfg.PatchHeight,
		PatchWidth:  cfg.PatchWidth,
		Square:      c.Bool(flagLBPSquare),
		Overlap:     c.Bool(flagLBPOverlap),
		MinSize:     c.Int(flagLBPMinSize),
		MaxSize:     c.Int(flagLBPMaxSize),
	}
	extractor, err := facedetect.NewLBPExtractor(ecfg)
	if err != nil {
		return err
	}

	db, err := facedetect.LoadDatabase(c.Path(flagDatabase))
	if err != nil {
		return err
	}
	source := db.Source
	if c.IsSet(flagSource) {
		source = facedetect.AnnotationSource(c.String(flagSource))
	}
	files := db.Files(facedetect.TrainGroup, c.Int(flagLimitFiles))
	logger.Info("loading training images", zap.Int("files", len(files)), zap.Int("features", extractor.NumFeatures()))

	ts := &facedetect.TrainingSet{
		Sampler:   sampler,
		Config:    tcfg,
		Extractor: extractor,
		Source:    source,
		Workers:   c.Int(flagWorkers),
		Logger:    logger,
	}
	now := time.Now()
	s := spinner("is collecting the training examples...")
	s.Start()
	rep, err := ts.Collect(files, db)
	s.Stop()
	if err != nil {
		return err
	}
	logger.Info("collected training set",
		zap.Int("images", rep.Images),
		zap.Int("positives", rep.Positives),
		zap.Int("negatives", rep.Negatives),
		zap.Int("skipped_by_quota", rep.SkippedByQuota),
		zap.Int("incomplete_annotation", rep.IncompleteAnnotation),
		zap.Int("unreadable_image", rep.UnreadableImage),
		zap.Int("failed", rep.Failed))

	if dir := c.Path(flagWriteExamples); dir != "" {
		if err := writeExamples(dir, ts.Positives); err != nil {
			return err
		}
	}

	f, err := os.Create(c.Path(flagDatasetFile))
	if err != nil {
		return errors.Wrap(err, "cannot create the dataset file")
	}
	if err := ts.WriteDataset(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := facedetect.SaveCascade(c.Path(flagModelFile), &facedetect.CascadeModel{Extractor: ecfg}); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\nThe dataset has been saved as: %s %s\nExecution time: %s\n",
		utils.DecorateText(filepath.Base(c.Path(flagDatasetFile)), utils.SuccessMessage),
		utils.DefaultColor,
		utils.DecorateText(utils.FormatTime(time.Since(now)), utils.SuccessMessage))
	return nil
}

// writeExamples saves the image patches of the examples, one file per example.
func writeExamples(dir string, examples []facedetect.Example) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "cannot create the examples directory")
	}
	var (
		source string
		img    image.Image
	)
	for i, ex := range examples {
		if ex.Source != source {
			src, err := facedetect.LoadImage(ex.Source)
			if err != nil {
				return err
			}
			source, img = ex.Source, src
		}
		name := filepath.Join(dir, fmt.Sprintf("image_%d.png", i))
		if err := facedetect.SaveImage(name, facedetect.Crop(img, ex.Box)); err != nil {
			return err
		}
	}
	return nil
}

func buildLocalizer(c *cli.Context, logger *zap.Logger, cfg facedetect.Config) (*facedetect.Localizer, error) {
	loc := &facedetect.Localizer{Workers: c.Int(flagWorkers), Logger: logger}

	switch c.String(flagDetector) {
	case detectorBoosted:
		if c.Path(flagCascadeFile) == "" {
			return nil, errors.Errorf("the boosted detector requires --%s", flagCascadeFile)
		}
		model, err := facedetect.LoadCascade(c.Path(flagCascadeFile))
		if err != nil {
			return nil, err
		}
		cascade, extractor, err := model.Build()
		if err != nil {
			return nil, err
		}
		// the window of the scan is the patch the cascade was trained on
		cfg.PatchHeight, cfg.PatchWidth = extractor.Config().PatchHeight, extractor.Config().PatchWidth
		sampler, err := facedetect.NewSampler(cfg)
		if err != nil {
			return nil, err
		}
		sampler.Workers, sampler.Logger = c.Int(flagWorkers), logger
		loc.Detector = &facedetect.SlidingWindow{
			Sampler:    sampler,
			Classifier: cascade,
			Threshold:  optionalFloat(c, flagPredictionThreshold),
		}
	case detectorPigo:
		pd, err := facedetect.LoadPigoDetector(c.Path(flagPigoCascade))
		if err != nil {
			return nil, err
		}
		pd.Logger = logger
		loc.Detector = pd
	default:
		return nil, errors.Errorf("unknown detector %q", c.String(flagDetector))
	}

	switch {
	case c.IsSet(flagBestOverlap):
		loc.Reducer = facedetect.Average{MinOverlap: c.Float64(flagBestOverlap), Weighted: c.Bool(flagWeighted)}
	case c.IsSet(flagPrune):
		loc.Reducer = facedetect.NMS{Threshold: c.Float64(flagPrune)}
	default:
		loc.Reducer = facedetect.Best{}
	}

	refiner, err := facedetect.NewRefiner(facedetect.RefinerConfig{
		Kind:          facedetect.RefinerKind(c.String(flagRefiner)),
		PuplocCascade: c.Path(flagPuplocCascade),
		LandmarkDir:   c.Path(flagLandmarkDir),
	})
	if err != nil {
		return nil, err
	}
	loc.Refiner = refiner
	return loc, nil
}

func localize(c *cli.Context, logger *zap.Logger) (err error) {
	cfg, err := samplingConfig(c)
	if err != nil {
		return err
	}
	loc, err := buildLocalizer(c, logger, cfg)
	if err != nil {
		return err
	}
	db, err := facedetect.LoadDatabase(c.Path(flagDatabase))
	if err != nil {
		return err
	}
	source := db.Source
	if c.IsSet(flagSource) {
		source = facedetect.AnnotationSource(c.String(flagSource))
	}
	loc.Source = source
	files := db.Files(facedetect.TestGroup, c.Int(flagLimitFiles))

	dir := c.Path(flagResultDirectory)
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "cannot create the result directory")
		}
	}
	out := c.Path(flagOutputDirectory)
	if out != "" {
		if err := os.MkdirAll(out, 0755); err != nil {
			return errors.Wrap(err, "cannot create the output directory")
		}
	}

	header := &facedetect.RunHeader{
		CascadeFile:         c.Path(flagCascadeFile),
		Distance:            cfg.Distance,
		ScaleBase:           cfg.ScaleBase,
		LowestScale:         cfg.LowestScale,
		PredictionThreshold: optionalFloat(c, flagPredictionThreshold),
	}
	names := []string{c.String(flagGroundTruthFile), c.String(flagDetectionFile), c.String(flagLandmarkFile)}
	writers := make([]*facedetect.ResultWriter, len(names))
	for i, name := range names {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return errors.Wrap(err, "cannot create the result file")
		}
		defer f.Close()
		if i == 0 {
			writers[i] = facedetect.NewResultWriter(f, nil)
		} else {
			writers[i] = facedetect.NewResultWriter(f, header)
		}
	}
	truthWriter, detectionWriter, landmarkWriter := writers[0], writers[1], writers[2]
	// the rows of the images localized so far are kept even when the batch fails
	defer func() {
		for _, w := range writers {
			err = multierr.Append(err, w.Flush())
		}
	}()

	now := time.Now()
	s := spinner("is localizing the faces...")
	s.Start()
	var done int
	rep, err := loc.Run(files, db, nil, func(res facedetect.FileResult) error {
		done++
		s.Progress("%d/%d", done, len(files))
		reye, leye := facedetect.ExpectedEyePositions(res.TruthBox)
		if p, ok := res.Truth[0]["reye"]; ok {
			reye = p
		}
		if p, ok := res.Truth[0]["leye"]; ok {
			leye = p
		}
		if err := truthWriter.Write(res.Path, []facedetect.Point{reye, leye}); err != nil {
			return err
		}
		reye, leye = facedetect.ExpectedEyePositions(res.Best().Box)
		if err := detectionWriter.Write(res.Path, []facedetect.Point{reye, leye}); err != nil {
			return err
		}
		if err := landmarkWriter.WriteLandmarks(res.Path, res.Landmarks); err != nil {
			return err
		}
		if out != "" {
			name := filepath.Join(out, strings.TrimSuffix(filepath.Base(res.Path), filepath.Ext(res.Path))+".png")
			if err := facedetect.SaveImage(name, facedetect.Crop(res.Source, res.Best().Box)); err != nil {
				return err
			}
			logger.Info("wrote image", zap.String("file", name))
		}
		return nil
	})
	s.Stop()
	if err != nil {
		return err
	}
	logger.Info("localized test set",
		zap.Int("processed", rep.Processed),
		zap.Int("incomplete_annotation", rep.IncompleteAnnotation),
		zap.Int("unreadable_image", rep.UnreadableImage),
		zap.Int("no_detections", rep.NoDetections))
	fmt.Fprintf(os.Stderr, "\nExecution time: %s\n", utils.DecorateText(utils.FormatTime(time.Since(now)), utils.SuccessMessage))
	return nil
}

func display(c *cli.Context, logger *zap.Logger) error {
	cfg, err := samplingConfig(c)
	if err != nil {
		return err
	}
	loc, err := buildLocalizer(c, logger, cfg)
	if err != nil {
		return err
	}
	// each image is handled by a single worker, which scans its scales sequentially
	if sw, ok := loc.Detector.(*facedetect.SlidingWindow); ok {
		sw.Sampler.Workers = 1
	}

	draw := facedetect.DefaultDrawOptions()
	draw.All = c.IsSet(flagPredictionThreshold)
	op := &facedetect.Ops{
		Src:      c.String(flagIn),
		Dst:      c.String(flagOut),
		PipeName: pipeName,
		Workers:  c.Int(flagWorkers),
		Draw:     draw,
		Spinner:  spinner("is detecting the faces..."),
	}
	return loc.Execute(op)
}
