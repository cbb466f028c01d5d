package main

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/config"
	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/inference"
	"github.com/dudu/faceswap/internal/pipeline"
)

// buildDetector creates the configured backend and optional contour model
func buildDetector(c config.Config) (*detector.Detector, error) {
	opts := detector.Options{MaxDimension: c.MaxDimension}

	switch c.Backend {
	case config.BackendPigo:
		pg, err := detector.NewPigo(detector.DefaultPigoConfig(c.PigoCascadeDir))
		if err != nil {
			return nil, fmt.Errorf("failed to load pigo cascades: %w", err)
		}
		return detector.New(pg, nil, opts), nil

	case config.BackendSCRFD:
		if err := inference.Initialize(c.ORTLibrary); err != nil {
			return nil, err
		}

		session := inference.SessionOptions{IntraOpThreads: c.Threads, CoreML: c.CoreML}
		scrfd, err := detector.NewSCRFD(detector.SCRFDConfig{
			ModelPath:     c.SCRFDModel,
			InputSize:     c.DetectionSize,
			ConfThreshold: c.ConfThreshold,
			NMSThreshold:  c.NMSThreshold,
			Session:       session,
		})
		if err != nil {
			return nil, err
		}

		if c.LandmarkModel == "" {
			return detector.New(scrfd, nil, opts), nil
		}

		lm, err := detector.NewLandmark106(c.LandmarkModel, session)
		if err != nil {
			scrfd.Close()
			return nil, fmt.Errorf("failed to load landmark model: %w", err)
		}
		return detector.New(scrfd, lm, opts), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// buildPipeline wires a detector and settings into a pipeline
func buildPipeline(c config.Config, settings pipeline.SettingsProvider, verbose bool) (*pipeline.Pipeline, error) {
	det, err := buildDetector(c)
	if err != nil {
		return nil, err
	}

	p, err := pipeline.New(det, settings, pipeline.Config{Verbose: verbose})
	if err != nil {
		det.Close()
		return nil, err
	}
	return p, nil
}

// readImage loads a color image from disk
func readImage(path string) (gocv.Mat, error) {
	if path == "" {
		return gocv.NewMat(), fmt.Errorf("no image path given")
	}
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), fmt.Errorf("failed to read image %s", path)
	}
	return img, nil
}
