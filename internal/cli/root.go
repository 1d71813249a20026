// Package cli implements the command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/hassrename/hren/internal/config"
	"github.com/hassrename/hren/internal/ui"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hren",
	Short: "Bulk-rename Home Assistant entities",
	Long: `hren renames Home Assistant entities in bulk.

Entities are selected by a search pattern over their entity IDs, or listed
explicitly in a mapping file. Every rename is previewed as a table and only
applied after confirmation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(verbose)
		slog.SetDefault(logger)

		// Commands that manage the config file must work when it is broken.
		switch cmd.Name() {
		case "completion", "help", "version", "config":
			return nil
		}
		if cmd.Parent() != nil && cmd.Parent().Name() == "config" {
			return nil
		}

		loaded, err := loadGlobalConfig()
		if err != nil {
			if isJSONOutput() {
				outputErrorFromErr(ErrConfigInvalid, err, "Run 'hren config show' to inspect the config file")
				return errReported
			}
			return err
		}
		cfg = loaded
		ui.ConfigureTheme(cfg.UI.Accent)
		return nil
	},
}

// errReported stops a command whose error was already written as JSON.
var errReported = errors.New("error already reported")

// Execute runs the CLI. An interrupt cancels the running command and closes
// an open session; updates already answered are kept.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errReported) {
		fmt.Fprintln(os.Stderr, ui.Error(err.Error()))
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format (for agent/script use)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log protocol traffic to stderr")
}

// newLogger logs to stderr so stdout stays clean for tables and JSON.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// getConfig returns the loaded config.
func getConfig() *config.Config {
	if cfg == nil {
		return &config.Config{}
	}
	return cfg
}

// loadGlobalConfig loads the config file and overlays HASS_* variables.
func loadGlobalConfig() (*config.Config, error) {
	loaded, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := loaded.ApplyEnv(os.Getenv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	return loaded, nil
}
