// Package cli provides the ekaya-assess command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/config"
	"github.com/ekaya-inc/ekaya-assess/pkg/logging"
)

// envKey stores the loaded configuration and logger in the command context.
type envKey struct{}

type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd creates the root command.
func NewRootCmd(version string) *cobra.Command {
	var (
		cfgFile  string
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:   "ekaya-assess",
		Short: "Decide whether a business question can be answered from the lakehouse",
		Long: `ekaya-assess walks a business question through decomposition, table triage,
column mapping, data quality profiling and semantic validation, then writes an
immutable feasibility report with a verdict.

Run it interactively with "assess", or expose the workflow to agents with "serve".`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadFrom(cfgFile, version)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}

			logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}

			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, &env{cfg: cfg, logger: logger}))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e := envFrom(cmd.Context()); e != nil {
				_ = e.logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug|info|warn|error)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAssessCmd())
	rootCmd.AddCommand(newReportsCmd())
	rootCmd.AddCommand(newVersionCmd(version))

	return rootCmd
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd := NewRootCmd(version)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		return err
	}
	return nil
}

func envFrom(ctx context.Context) *env {
	if ctx == nil {
		return nil
	}
	e, _ := ctx.Value(envKey{}).(*env)
	return e
}

// mustEnv returns the environment set up by the root command.
func mustEnv(cmd *cobra.Command) (*env, error) {
	e := envFrom(cmd.Context())
	if e == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return e, nil
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ekaya-assess %s\n", version)
		},
	}
}
