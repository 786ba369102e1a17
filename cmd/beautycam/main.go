package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func init() {
	// Lock the main goroutine to the main OS thread.
	// This is required on macOS for OpenCV's highgui (window creation).
	runtime.LockOSThread()

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (yaml, toml or json)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "beautycam",
	Short: "beautycam - real-time face beautification for a local camera",
	Long: `beautycam reads frames from a camera, rotates them upright, finds face
landmarks and runs them through a chain of beauty filters before showing
the result in a preview window.

Available commands:
  run            - Start the camera pipeline
  inspect-model  - Print the signature of an ONNX model

Examples:
  beautycam run                              # Default camera, default settings
  beautycam run --config beautycam.yaml      # Settings file, reloaded on save
  beautycam run --skin-smoothing 60 -c 1     # Camera 1 with smoothing
  beautycam inspect-model models/2d106det.onnx`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hints := errors.FlattenHints(err); hints != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hints)
		}
		os.Exit(1)
	}
}
