package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "explorable-worker",
	Short: "Explorable background tools",
	Long: `Out-of-band tools for the explorable backend.

  explorable-worker mcp --api-key exp_...   Serve the explorable tools over stdio
  explorable-worker reap                    Fail projects stuck mid-pipeline once`,
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
