// Package camera reads frames from a local video device.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrClosed is returned by Run when the device has been released
var ErrClosed = errors.New("camera closed")

// maxReadFailures consecutive empty reads end Run
const maxReadFailures = 30

// Capture manages webcam capture
type Capture struct {
	webcam    *gocv.VideoCapture
	deviceID  int
	targetFPS int
	width     int
	height    int
	mu        sync.Mutex
}

// NewCaptureWithResolution creates a new camera capture with specified resolution
func NewCaptureWithResolution(deviceID int, targetFPS int, width, height int) (*Capture, error) {
	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", deviceID, err)
	}

	// Set camera properties
	webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	webcam.Set(gocv.VideoCaptureFPS, float64(targetFPS))

	// Get actual dimensions (camera may not support requested resolution)
	actualWidth := int(webcam.Get(gocv.VideoCaptureFrameWidth))
	actualHeight := int(webcam.Get(gocv.VideoCaptureFrameHeight))

	return &Capture{
		webcam:    webcam,
		deviceID:  deviceID,
		targetFPS: targetFPS,
		width:     actualWidth,
		height:    actualHeight,
	}, nil
}

// NewCaptureFromFile replays a video file as if it were a camera
func NewCaptureFromFile(path string, targetFPS int) (*Capture, error) {
	video, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}

	return &Capture{
		webcam:    video,
		deviceID:  -1,
		targetFPS: targetFPS,
		width:     int(video.Get(gocv.VideoCaptureFrameWidth)),
		height:    int(video.Get(gocv.VideoCaptureFrameHeight)),
	}, nil
}

// Read captures a frame into the provided Mat
func (c *Capture) Read(frame *gocv.Mat) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return false
	}

	return c.webcam.Read(frame)
}

// Run reads frames at the target rate and hands each one to fn until ctx is
// done or the device stops producing frames. The Mat passed to fn is reused
// on the next read; fn must Clone it to keep it.
func (c *Capture) Run(ctx context.Context, fn func(frame gocv.Mat)) error {
	frame := gocv.NewMat()
	defer frame.Close()

	interval := time.Second / time.Duration(max(1, c.targetFPS))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		c.mu.Lock()
		open := c.webcam != nil
		c.mu.Unlock()
		if !open {
			return ErrClosed
		}

		if !c.Read(&frame) || frame.Empty() {
			failures++
			if failures >= maxReadFailures {
				return fmt.Errorf("camera %d: %d consecutive empty reads", c.deviceID, failures)
			}
			continue
		}
		if failures > 0 {
			log.Printf("[camera] device %d recovered after %d empty reads", c.deviceID, failures)
			failures = 0
		}

		fn(frame)
	}
}

// Width returns frame width
func (c *Capture) Width() int {
	return c.width
}

// Height returns frame height
func (c *Capture) Height() int {
	return c.height
}

// Close releases the camera
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam != nil {
		err := c.webcam.Close()
		c.webcam = nil
		return err
	}
	return nil
}
