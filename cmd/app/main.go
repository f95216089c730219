package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd is the base command of the contagion radar.
var rootCmd = &cobra.Command{
	Use:   "contagion",
	Short: "Cross-asset sentiment contagion detector",
	Long: `contagion tracks sentiment across crypto assets, learns how sentiment
moves between them and emits contagion signals and sector rotations.

  contagion serve                       # run the service
  contagion replay --file obs.jsonl     # run observations through a fresh engine`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
	rootCmd.AddCommand(serveCmd, replayCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
