// sfcd executes sequential function charts against an automation server.
//
// It stores chart designs, runs them node by node with live status over
// WebSocket and MQTT, and records the tracked variables of every run.
//
// Usage:
//
//	sfcd [serve] [--config path]
//	sfcd migrate up|down|status
//	sfcd import chart.hcl
//	sfcd version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-sfc/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// rootOptions holds flags shared by every command.
type rootOptions struct {
	configPath string
}

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the sfcd command tree. Running sfcd without a
// subcommand serves.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "sfcd",
		Short:         "Sequential function chart execution service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts.resolveConfigPath())
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default $SFC_CONFIG or "+defaultConfigPath+")")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and chart executor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts.resolveConfigPath())
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sfcd %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// resolveConfigPath returns the --config flag, else SFC_CONFIG, else the
// default path.
func (o *rootOptions) resolveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if path := os.Getenv("SFC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDatabase loads the configuration and opens the database it names.
func openDatabase(ctx context.Context, configPath string) (*database.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}
