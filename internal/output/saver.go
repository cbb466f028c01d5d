// Package output persists composited frames to disk.
package output

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/imageutil"
)

// ErrUnsupportedFormat is returned for extensions other than jpg, jpeg and png
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Saver stores an image and returns where it went
type Saver interface {
	Save(img gocv.Mat, name string) (string, error)
}

// DirSaver writes images into a directory
type DirSaver struct {
	Dir         string
	Ext         string // default extension when name has none
	JPEGQuality int
}

// NewDirSaver creates dir if needed
func NewDirSaver(dir string, jpegQuality int) (*DirSaver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir %s: %w", dir, err)
	}
	return &DirSaver{Dir: dir, Ext: ".jpg", JPEGQuality: jpegQuality}, nil
}

// Save encodes img and writes it as name inside Dir. An empty name gets a
// random one. The write goes through a temporary file so readers never see a
// partial image.
func (s *DirSaver) Save(img gocv.Mat, name string) (string, error) {
	if name == "" {
		name = uuid.NewString() + s.Ext
	}
	if filepath.Ext(name) == "" {
		name += s.Ext
	}

	ext, err := FileExt(name)
	if err != nil {
		return "", err
	}

	data, err := imageutil.Encode(img, ext, s.JPEGQuality)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.Dir, filepath.Base(name))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to rename %s: %w", tmp, err)
	}

	log.Printf("[output] wrote %s (%d bytes)", path, len(data))
	return path, nil
}

// FileExt maps a file name to the encoder format
func FileExt(name string) (gocv.FileExt, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return gocv.JPEGFileExt, nil
	case ".png":
		return gocv.PNGFileExt, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}
