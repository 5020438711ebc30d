/*
Package facedetect is a sliding window face detection library. The image is scanned at multiple scales
and positions, every window is evaluated by a boosted classifier over multi-block LBP features (optionally
as a cascade with early rejection), and the overlapping detections are reduced to their best estimate.

The package also collects balanced positive and negative training windows from annotated images
and extracts their features into a labeled dataset.

The package provides a command line interface with the train, localize and display commands.
To check the supported commands type:

	$ facedetect --help

In case you wish to integrate the API in a self constructed environment here is a simple example:

	package main

	import (
		"fmt"

		"github.com/xfacereclib/facedetect"
	)

	func main() {
		model, err := facedetect.LoadCascade("cascade.yaml")
		if err != nil {
			panic(err)
		}
		cascade, _, err := model.Build()
		if err != nil {
			panic(err)
		}
		cfg := facedetect.DefaultConfig()
		cfg.PatchHeight, cfg.PatchWidth = cascade.PatchSize()
		sampler, _ := facedetect.NewSampler(cfg)

		src, err := facedetect.LoadImage("face.jpg")
		if err != nil {
			panic(err)
		}
		cands := sampler.Detect(facedetect.NewImage(src), cascade, nil)
		best, err := facedetect.BestDetection(cands, 0.5, false)
		if err != nil {
			fmt.Printf("Error detecting the face: %s", err.Error())
			return
		}
		fmt.Println(best.Box)
	}
*/
package facedetect
