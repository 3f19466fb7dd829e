package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "toolsched",
		Short: "Toolsched - CLI tool scheduling and execution monitoring",
		Long: `Toolsched schedules recurring runs of claude, codex and gemini,
catches up executions missed while the machine was asleep or off,
and babysits running sessions until they complete or hit a rate limit.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
