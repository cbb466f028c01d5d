// Package ui shows the live preview.
package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"
)

// Key codes returned by WaitKey
const (
	KeyNone   = -1
	KeyEscape = 27
)

var (
	overlayColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	warnColor    = color.RGBA{R: 255, G: 64, B: 0, A: 255}
)

// Window manages the preview display
type Window struct {
	window *gocv.Window
	name   string
	fps    fpsCounter
}

// NewWindow creates a new preview window
func NewWindow(name string, width, height int) *Window {
	window := gocv.NewWindow(name)
	// Force window to appear on macOS
	window.ResizeWindow(width, height)
	window.MoveWindow(100, 100)
	return &Window{
		window: window,
		name:   name,
		fps:    fpsCounter{last: time.Now()},
	}
}

// Show draws the FPS counter and status lines onto frame and displays it.
// A status line starting with '!' is drawn as a warning without the marker.
func (w *Window) Show(frame *gocv.Mat, status ...string) {
	fps := w.fps.tick(time.Now())
	lines := append([]string{fmt.Sprintf("FPS: %.1f", fps)}, status...)
	DrawOverlay(frame, lines)

	w.window.IMShow(*frame)
}

// WaitKey waits for key press, returns key code or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// Close closes the window
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}

// DrawOverlay writes lines top-down in the upper left corner of frame
func DrawOverlay(frame *gocv.Mat, lines []string) {
	for i, line := range lines {
		c := overlayColor
		if len(line) > 0 && line[0] == '!' {
			c = warnColor
			line = line[1:]
		}
		gocv.PutText(frame, line, image.Pt(10, 30+i*28),
			gocv.FontHersheyPlain, 2, c, 2)
	}
}

// fpsCounter recomputes the frame rate once per second
type fpsCounter struct {
	last   time.Time
	frames int
	rate   float64
}

func (f *fpsCounter) tick(now time.Time) float64 {
	f.frames++
	elapsed := now.Sub(f.last)
	if elapsed >= time.Second {
		f.rate = float64(f.frames) / elapsed.Seconds()
		f.frames = 0
		f.last = now
	}
	return f.rate
}
