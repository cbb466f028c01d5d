package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dudu/faceswap/internal/config"
	"github.com/dudu/faceswap/internal/inference"
)

// Version is the application version.
const Version = "0.1.0"

var (
	// cfg is the merged configuration shared by subcommands
	cfg config.Config

	configPath string
	backend    string
)

var rootCmd = &cobra.Command{
	Use:           "faceswap",
	Short:         "Face detection and face overlay for images and cameras",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.ApplyEnv(); err != nil {
			return fmt.Errorf("invalid environment: %w", err)
		}
		if cmd.Flags().Changed("backend") {
			cfg.Backend = backend
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if inference.Initialized() {
			inference.Shutdown()
		}
	},
}

// Execute runs the root command with a context cancelled by SIGINT/SIGTERM
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "JSON configuration file (FACESWAP_* environment variables override it)")
	rootCmd.PersistentFlags().StringVarP(&backend, "backend", "b", config.BackendSCRFD, "Face detection backend: scrfd or pigo")
}
