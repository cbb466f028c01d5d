package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dudu/faceswap/internal/config"
	"github.com/dudu/faceswap/internal/output"
	"github.com/dudu/faceswap/internal/pipeline"
)

var (
	swapSource  string
	swapTarget  string
	swapOutput  string
	swapVerbose bool
	blendFlags  config.BlendSettings
)

var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Overlay the face of one image onto the face of another",
	Example: `  faceswap swap --source me.jpg --target photo.jpg --output out.jpg
  faceswap swap -s me.jpg -t photo.jpg --intensity 0.7 --preserve-mouth`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyBlendFlags(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runSwap(cmd)
	},
}

// applyBlendFlags copies explicitly set blend flags over the file and env values
func applyBlendFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("intensity") {
		c.Blend.Intensity = blendFlags.Intensity
	}
	if flags.Changed("preserve-mouth") {
		c.Blend.PreserveMouth = blendFlags.PreserveMouth
	}
	if flags.Changed("preserve-eyes") {
		c.Blend.PreserveEyes = blendFlags.PreserveEyes
	}
	if flags.Changed("convex-mask") {
		c.Blend.ConvexMask = blendFlags.ConvexMask
	}
	if flags.Changed("feather") {
		c.Blend.Feather = blendFlags.Feather
	}
}

func runSwap(cmd *cobra.Command) error {
	ctx := cmd.Context()

	source, err := readImage(swapSource)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	defer source.Close()

	target, err := readImage(swapTarget)
	if err != nil {
		return fmt.Errorf("target: %w", err)
	}
	defer target.Close()

	dir, name := cfg.OutputDir, ""
	if swapOutput != "" {
		dir, name = filepath.Dir(swapOutput), filepath.Base(swapOutput)
		if _, err := output.FileExt(name); err != nil {
			return err
		}
	}
	saver, err := output.NewDirSaver(dir, cfg.JPEGQuality)
	if err != nil {
		return err
	}

	settings := config.NewStaticSettings(cfg.BlendConfig())
	p, err := buildPipeline(cfg, settings, swapVerbose)
	if err != nil {
		return err
	}
	defer p.Close()

	bar := progressbar.NewOptions(pipeline.ProgressDone,
		progressbar.OptionSetDescription("Swapping"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	res := p.ProcessWithProgress(ctx, source, target, func(percent int, state pipeline.State) {
		bar.Describe(state.String())
		bar.Set(percent)
	})
	defer res.Close()
	fmt.Fprintln(os.Stderr)

	if !res.Success {
		return fmt.Errorf("swap %s failed (%s): %w", res.ID, res.Outcome, res.Err)
	}

	path, err := saver.Save(res.Image, name)
	if err != nil {
		return err
	}

	t := res.Timing
	fmt.Fprintf(os.Stderr, "Saved %s\n", path)
	fmt.Fprintf(os.Stderr, "Detection %v, landmarks %v, alignment %v, mask %v, composite %v (total %v)\n",
		t.Detection, t.Landmarks, t.Alignment, t.Mask, t.Composite, t.Total)
	return nil
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVarP(&swapSource, "source", "s", "", "Image whose face is overlaid (required)")
	swapCmd.Flags().StringVarP(&swapTarget, "target", "t", "", "Image that receives the face (required)")
	swapCmd.Flags().StringVarP(&swapOutput, "output", "o", "", "Output file, .jpg or .png (default: random name in the configured output dir)")
	swapCmd.Flags().BoolVarP(&swapVerbose, "verbose", "v", false, "Log every pipeline invocation")
	addBlendFlags(swapCmd)

	swapCmd.MarkFlagRequired("source")
	swapCmd.MarkFlagRequired("target")
}

func addBlendFlags(cmd *cobra.Command) {
	def := config.Default().Blend
	cmd.Flags().Float64Var(&blendFlags.Intensity, "intensity", def.Intensity, "Opacity of the overlaid face, 0..1")
	cmd.Flags().BoolVar(&blendFlags.PreserveMouth, "preserve-mouth", def.PreserveMouth, "Keep the target mouth visible")
	cmd.Flags().BoolVar(&blendFlags.PreserveEyes, "preserve-eyes", def.PreserveEyes, "Keep the target eyes visible")
	cmd.Flags().BoolVar(&blendFlags.ConvexMask, "convex-mask", def.ConvexMask, "Fill the convex hull of the face contour")
	cmd.Flags().IntVar(&blendFlags.Feather, "feather", def.Feather, "Gaussian kernel softening the mask edge, 0 keeps it hard")
}
