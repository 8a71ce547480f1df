// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for bichat.
// It implements subcommands to ask business questions against a Databricks Genie
// space, run SQL on the warehouse, diagnose the connection, manage credentials and
// serve the chat bridge, using the Cobra CLI framework.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"bichat/cli/internal/config"
	"bichat/cli/internal/keychain"
	"bichat/cli/internal/logging"

	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	showVer    bool

	// cfg and logger are populated before any subcommand runs.
	cfg    config.Config
	logger = slog.New(slog.DiscardHandler)
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "bichat",
	Short: "Business-intelligence chat over Databricks Genie",
	Long: `bichat answers business questions in natural language. Questions go to a
Databricks Genie space first; when that fails, a bounded reasoning loop retries with
tools before one last direct attempt. Answers are optionally rewritten by a model
serving endpoint.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVer {
			printVersion()
			return nil
		}
		return cmd.Help()
	},
}

// loadConfig resolves settings and builds the CLI logger. A missing keychain
// is not an error; secrets then come from the environment only.
func loadConfig() error {
	if verbose {
		os.Setenv("BICHAT_VERBOSE", "1")
	}
	opts := config.LoadOptions{Path: configPath}
	if km, err := keychain.GetManager(); err == nil {
		opts.Secrets = km
	}
	c, err := config.Load(opts)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = c
	logger = logging.NewCLI(os.Stderr, logging.ParseLevel(cfg.LogLevel))
	if opts.Secrets == nil {
		logger.Debug("keychain unavailable, secrets come from the environment")
	}
	return nil
}

// errReported marks failures that were already shown to the user.
var errReported = errors.New("reported")

// Execute runs the CLI application. Interrupts cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, logging.Mask(err.Error()))
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose debug output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/bichat/config.yaml)")
	rootCmd.Flags().BoolVar(&showVer, "version", false, "Show version information")
}
