package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"starflow/internal/config"
	"starflow/internal/observability"
	"starflow/internal/operators"
	"starflow/internal/ui"
	"starflow/pkg/models"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	verbose    bool
	noColor    bool

	rootCmd = &cobra.Command{
		Use:   "starflow",
		Short: "Build the sparkify and movie star-schema warehouses",
		Long: `starflow loads raw song, event and movie data into star-schema warehouses.

It runs the Redshift COPY/INSERT sequences, drives BigQuery load and query
jobs, executes the pipeline DAGs in order and writes the sparkify data lake
as partitioned Parquet.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initLogging,
	}
)

// newEnv builds the runtime env for operators. Tests swap it for fakes.
var newEnv = func(cfg *models.Config) *operators.Env {
	return operators.NewEnv(cfg)
}

// Execute runs the root command and exits 1 on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.ShowError(err)
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "INI profile (default: $STARFLOW_CONFIG, then ./dwh.cfg, ./aws.cfg, ./dl.cfg)")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&logFormat, "log-format", "console", "log format: console or json")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output (same as --log-level debug)")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
}

func initLogging(cmd *cobra.Command, args []string) error {
	level := logLevel
	if verbose {
		level = "debug"
	}
	observability.Init(level, logFormat, cmd.ErrOrStderr())
	if noColor {
		ui.SetColor(false)
	}
	return nil
}

// loadConfig reads the profile named by --config, or the default one.
// Commands that need particular sections validate them afterwards.
func loadConfig(concerns ...string) (*models.Config, error) {
	cfg, path, err := config.LoadOptional(configPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		observability.GetDefaultLogger().Debugf("Using profile %s", path)
	}
	for _, concern := range concerns {
		if err := cfg.Validate(concern); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
