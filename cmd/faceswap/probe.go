package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dudu/faceswap/internal/inference"
)

var probeCmd = &cobra.Command{
	Use:   "probe <model.onnx>...",
	Short: "Print the inputs, outputs and metadata of ONNX models",
	Long: `Loads each model signature through ONNX Runtime and reports whether
go-metal can import it. Useful to check downloaded models before running swap or live.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := inference.Initialize(cfg.ORTLibrary); err != nil {
			return err
		}

		var errs []error
		for _, path := range args {
			info, err := inference.ProbeModel(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				errs = append(errs, err)
				continue
			}
			printModelInfo(info)
		}
		return errors.Join(errs...)
	},
}

func printModelInfo(info *inference.ModelInfo) {
	fmt.Printf("%s\n", info.Path)
	if info.Producer != "" {
		fmt.Printf("  Producer: %s (version %d)\n", info.Producer, info.Version)
	}

	fmt.Println("  Inputs:")
	for _, t := range info.Inputs {
		fmt.Printf("    %-16s %-10s %v\n", t.Name, t.DataType, t.Dimensions)
	}
	fmt.Println("  Outputs:")
	for _, t := range info.Outputs {
		fmt.Printf("    %-16s %-10s %v\n", t.Name, t.DataType, t.Dimensions)
	}

	if info.MetalErr != nil {
		fmt.Printf("  go-metal: not importable (%v)\n", info.MetalErr)
	} else {
		fmt.Printf("  go-metal: %d layers\n", info.MetalLayers)
	}
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
