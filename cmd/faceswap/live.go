package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/camera"
	"github.com/dudu/faceswap/internal/config"
	"github.com/dudu/faceswap/internal/output"
	"github.com/dudu/faceswap/internal/pipeline"
	"github.com/dudu/faceswap/internal/swapper"
	"github.com/dudu/faceswap/internal/ui"
)

var (
	liveSource  string
	liveVideo   string
	livePreview bool
	liveVerbose bool
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Overlay a face onto every camera frame",
	Long: `Reads frames from a camera (or a video file) and runs them through a pool
of background workers. Frames that arrive while every worker is busy and the
queue is full are dropped instead of piling up behind slow invocations.
The preview shows the newest finished frame.

Preview keys: q/Esc quit, +/- intensity, m mouth, e eyes, h convex mask, s snapshot.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyBlendFlags(cmd, &cfg)
		flags := cmd.Flags()
		if flags.Changed("camera") {
			cfg.Camera, _ = flags.GetInt("camera")
		}
		if flags.Changed("fps") {
			cfg.FPS, _ = flags.GetInt("fps")
		}
		if flags.Changed("workers") {
			cfg.Workers, _ = flags.GetInt("workers")
		}
		if flags.Changed("queue") {
			cfg.QueueSize, _ = flags.GetInt("queue")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runLive(cmd.Context())
	},
}

func runLive(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	source, err := readImage(liveSource)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	defer source.Close()

	settings := config.NewStaticSettings(cfg.BlendConfig())
	p, err := buildPipeline(cfg, settings, liveVerbose)
	if err != nil {
		return err
	}
	defer p.Close()

	var cam *camera.Capture
	if liveVideo != "" {
		cam, err = camera.NewCaptureFromFile(liveVideo, cfg.FPS)
	} else {
		cam, err = camera.NewCaptureWithResolution(cfg.Camera, cfg.FPS, cfg.CameraWidth, cfg.CameraHeight)
	}
	if err != nil {
		return err
	}
	defer cam.Close()
	fmt.Fprintf(os.Stderr, "Capturing %dx%d at %d fps with %d worker(s)\n", cam.Width(), cam.Height(), cfg.FPS, cfg.Workers)

	pub := pipeline.NewPublisher()
	defer pub.Close()

	runner := pipeline.NewRunner(ctx, p, cfg.Workers, cfg.QueueSize)
	defer runner.Close()

	camErr := make(chan error, 1)
	camDone := make(chan struct{})
	go func() {
		defer close(camDone)
		camErr <- cam.Run(ctx, func(frame gocv.Mat) {
			// ErrBusy drops the frame; the runner logs the count
			runner.Submit(source, frame, func(res pipeline.Result) {
				pub.Publish(res)
			})
		})
	}()
	// The capture goroutine touches source and runner; stop it before they go
	defer func() {
		cancel()
		<-camDone
	}()

	if !livePreview {
		return waitHeadless(ctx, camErr, pub)
	}

	window := ui.NewWindow("faceswap", cam.Width(), cam.Height())
	defer window.Close()

	var saver output.Saver
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-camErr:
			return cameraDone(err)
		case <-pub.Updates():
			res, ok := pub.Latest()
			if ok {
				window.Show(&res.Image, statusLines(res, settings.BlendConfig(), runner.Dropped())...)
			}
			res.Close()
		default:
		}

		key := window.WaitKey(5)
		switch key {
		case ui.KeyNone:
		case 'q', ui.KeyEscape:
			cancel()
		case 's':
			if saver == nil {
				if saver, err = output.NewDirSaver(cfg.OutputDir, cfg.JPEGQuality); err != nil {
					return err
				}
			}
			snapshot(saver, pub)
		default:
			if blend, changed := adjustBlend(key, settings); changed {
				log.Printf("[live] intensity %.2f mouth %v eyes %v hull %v",
					blend.Intensity, blend.PreserveMouth, blend.PreserveEyes, blend.ConvexMask)
			}
		}
	}
}

// waitHeadless prints timing of published frames until the capture ends
func waitHeadless(ctx context.Context, camErr <-chan error, pub *pipeline.Publisher) error {
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr)
			return nil
		case err := <-camErr:
			fmt.Fprintln(os.Stderr)
			return cameraDone(err)
		case <-pub.Updates():
			res, ok := pub.Latest()
			if ok {
				t := res.Timing
				fmt.Fprintf(os.Stderr, "\r#%-6d %-15s D:%4dms C:%4dms T:%4dms  ",
					res.Seq, res.Outcome, t.Detection.Milliseconds(), t.Composite.Milliseconds(), t.Total.Milliseconds())
			}
			res.Close()
		}
	}
}

// cameraDone turns the end of a capture into the command result
func cameraDone(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// adjustBlend maps preview keys onto settings changes
func adjustBlend(key int, settings *config.StaticSettings) (swapper.BlendConfig, bool) {
	var fn func(*swapper.BlendConfig)
	switch key {
	case '+', '=':
		fn = func(c *swapper.BlendConfig) { c.Intensity += 0.1 }
	case '-':
		fn = func(c *swapper.BlendConfig) { c.Intensity -= 0.1 }
	case 'm':
		fn = func(c *swapper.BlendConfig) { c.PreserveMouth = !c.PreserveMouth }
	case 'e':
		fn = func(c *swapper.BlendConfig) { c.PreserveEyes = !c.PreserveEyes }
	case 'h':
		fn = func(c *swapper.BlendConfig) { c.ConvexMask = !c.ConvexMask }
	default:
		return settings.BlendConfig(), false
	}
	return settings.Update(fn), true
}

// snapshot saves the newest published frame
func snapshot(saver output.Saver, pub *pipeline.Publisher) {
	res, ok := pub.Latest()
	defer res.Close()
	if !ok {
		return
	}

	name := fmt.Sprintf("snapshot-%s-%06d.jpg", time.Now().Format("20060102-150405"), res.Seq)
	if path, err := saver.Save(res.Image, name); err != nil {
		log.Printf("[live] snapshot failed: %v", err)
	} else {
		fmt.Fprintf(os.Stderr, "Saved %s\n", path)
	}
}

// statusLines renders the overlay text for one published result
func statusLines(res pipeline.Result, blend swapper.BlendConfig, dropped uint64) []string {
	t := res.Timing
	outcome := fmt.Sprintf("#%d %s", res.Seq, res.Outcome)
	if !res.Success {
		outcome = "!" + outcome
	}
	return []string{
		outcome,
		fmt.Sprintf("D:%dms C:%dms T:%dms drop:%d", t.Detection.Milliseconds(), t.Composite.Milliseconds(), t.Total.Milliseconds(), dropped),
		fmt.Sprintf("I:%.1f M:%v E:%v H:%v", blend.Intensity, onOff(blend.PreserveMouth), onOff(blend.PreserveEyes), onOff(blend.ConvexMask)),
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func init() {
	rootCmd.AddCommand(liveCmd)

	def := config.Default()
	liveCmd.Flags().StringVarP(&liveSource, "source", "s", "", "Image whose face is overlaid (required)")
	liveCmd.Flags().StringVar(&liveVideo, "video", "", "Read frames from a video file instead of the camera")
	liveCmd.Flags().IntP("camera", "c", def.Camera, "Camera device index")
	liveCmd.Flags().Int("fps", def.FPS, "Target frames per second")
	liveCmd.Flags().IntP("workers", "w", def.Workers, "Background pipeline workers")
	liveCmd.Flags().Int("queue", def.QueueSize, "Frames allowed to wait for a worker; when the queue is full new frames are dropped, not queued")
	liveCmd.Flags().BoolVarP(&livePreview, "preview", "p", true, "Show preview window")
	liveCmd.Flags().BoolVarP(&liveVerbose, "verbose", "v", false, "Log every pipeline invocation")
	addBlendFlags(liveCmd)

	liveCmd.MarkFlagRequired("source")
}
