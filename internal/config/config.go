// Package config loads the faceswap settings: built-in defaults, then an
// optional JSON file, then FACESWAP_* environment variables. Command-line
// flags are applied on top by the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dudu/faceswap/internal/swapper"
)

// Detection backends
const (
	BackendSCRFD = "scrfd"
	BackendPigo  = "pigo"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "FACESWAP_"

// BlendSettings mirrors swapper.BlendConfig in the file format
type BlendSettings struct {
	Intensity     float64 `json:"intensity"`
	PreserveMouth bool    `json:"preserveMouth"`
	PreserveEyes  bool    `json:"preserveEyes"`
	ConvexMask    bool    `json:"convexMask"`
	Feather       int     `json:"feather"`
}

// Config holds every tunable of the CLI and the pipeline
type Config struct {
	Backend        string  `json:"backend"`
	ORTLibrary     string  `json:"ortLibrary"`
	CoreML         bool    `json:"coreml"`
	Threads        int     `json:"threads"`
	SCRFDModel     string  `json:"scrfdModel"`
	LandmarkModel  string  `json:"landmarkModel"`
	DetectionSize  int     `json:"detectionSize"`
	ConfThreshold  float32 `json:"confThreshold"`
	NMSThreshold   float32 `json:"nmsThreshold"`
	PigoCascadeDir string  `json:"pigoCascadeDir"`
	MaxDimension   int     `json:"maxDimension"`

	Blend BlendSettings `json:"blend"`

	Workers   int `json:"workers"`
	QueueSize int `json:"queueSize"`

	Camera       int `json:"camera"`
	CameraWidth  int `json:"cameraWidth"`
	CameraHeight int `json:"cameraHeight"`
	FPS          int `json:"fps"`

	OutputDir   string `json:"outputDir"`
	JPEGQuality int    `json:"jpegQuality"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Backend:        BackendSCRFD,
		SCRFDModel:     "models/scrfd_2.5g.onnx",
		DetectionSize:  640,
		ConfThreshold:  0.5,
		NMSThreshold:   0.4,
		PigoCascadeDir: "cascade",
		MaxDimension:   1280,
		Blend:          BlendSettings{Intensity: 1},
		Workers:        2,
		QueueSize:      2,
		CameraWidth:    1280,
		CameraHeight:   720,
		FPS:            30,
		OutputDir:      "output",
		JPEGQuality:    95,
	}
}

// Load reads a JSON file over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	log.Printf("[config] loaded %s", path)
	return cfg, nil
}

// ApplyEnv overrides fields from FACESWAP_* environment variables. Malformed
// values are reported together and leave the field unchanged.
func (c *Config) ApplyEnv() error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("BACKEND", &c.Backend)
	str("ORT_LIBRARY", &c.ORTLibrary)
	boolean("COREML", &c.CoreML)
	integer("THREADS", &c.Threads)
	str("SCRFD_MODEL", &c.SCRFDModel)
	str("LANDMARK_MODEL", &c.LandmarkModel)
	integer("DETECTION_SIZE", &c.DetectionSize)
	str("PIGO_CASCADE_DIR", &c.PigoCascadeDir)
	integer("MAX_DIMENSION", &c.MaxDimension)
	float("INTENSITY", &c.Blend.Intensity)
	boolean("PRESERVE_MOUTH", &c.Blend.PreserveMouth)
	boolean("PRESERVE_EYES", &c.Blend.PreserveEyes)
	boolean("CONVEX_MASK", &c.Blend.ConvexMask)
	integer("FEATHER", &c.Blend.Feather)
	integer("WORKERS", &c.Workers)
	integer("QUEUE_SIZE", &c.QueueSize)
	integer("CAMERA", &c.Camera)
	integer("FPS", &c.FPS)
	str("OUTPUT_DIR", &c.OutputDir)
	integer("JPEG_QUALITY", &c.JPEGQuality)

	return errors.Join(errs...)
}

// Validate reports every invalid field
func (c Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendSCRFD:
		if c.SCRFDModel == "" {
			errs = append(errs, errors.New("scrfdModel is required for the scrfd backend"))
		}
		if c.DetectionSize <= 0 || c.DetectionSize%32 != 0 {
			errs = append(errs, fmt.Errorf("detectionSize must be a positive multiple of 32, got %d", c.DetectionSize))
		}
	case BackendPigo:
		if c.PigoCascadeDir == "" {
			errs = append(errs, errors.New("pigoCascadeDir is required for the pigo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendSCRFD, BackendPigo))
	}

	if c.ConfThreshold < 0 || c.ConfThreshold > 1 {
		errs = append(errs, fmt.Errorf("confThreshold must be in [0,1], got %v", c.ConfThreshold))
	}
	if c.NMSThreshold < 0 || c.NMSThreshold > 1 {
		errs = append(errs, fmt.Errorf("nmsThreshold must be in [0,1], got %v", c.NMSThreshold))
	}
	if c.Blend.Intensity < 0 || c.Blend.Intensity > 1 {
		errs = append(errs, fmt.Errorf("blend.intensity must be in [0,1], got %v", c.Blend.Intensity))
	}
	if c.Blend.Feather < 0 {
		errs = append(errs, fmt.Errorf("blend.feather must not be negative, got %d", c.Blend.Feather))
	}
	if c.MaxDimension < 0 {
		errs = append(errs, fmt.Errorf("maxDimension must not be negative, got %d", c.MaxDimension))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("queueSize must not be negative, got %d", c.QueueSize))
	}
	if c.FPS <= 0 {
		errs = append(errs, fmt.Errorf("fps must be positive, got %d", c.FPS))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpegQuality must be in [1,100], got %d", c.JPEGQuality))
	}

	return errors.Join(errs...)
}

// BlendConfig converts the file settings to the swapper form
func (c Config) BlendConfig() swapper.BlendConfig {
	return swapper.BlendConfig{
		Intensity:     c.Blend.Intensity,
		PreserveMouth: c.Blend.PreserveMouth,
		PreserveEyes:  c.Blend.PreserveEyes,
		ConvexMask:    c.Blend.ConvexMask,
		Feather:       c.Blend.Feather,
	}
}
