// Package cli implements the command-line interface for the planning CLI.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/colthorp/planning-cli-go/internal/core"
	"github.com/colthorp/planning-cli-go/internal/output"
	"github.com/spf13/cobra"
)

// Global flags
var (
	verbose    bool
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "planning",
	Short:   "Planning CLI – capture your class schedule",
	Long:    `A command-line utility that logs into the schedule portal and captures weekly planning screenshots, with caching.`,
	Version: core.Version,

	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		output.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose debug output to stderr")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default: $PLANNING_CONFIG or configs/planning.yaml)")
}
