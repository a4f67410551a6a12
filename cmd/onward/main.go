// Onward - authentication and refresh-token rotation service
//
// This is the main entry point for the onward service and its
// administrative commands:
//   - serve: run the HTTP API
//   - migrate: apply or inspect database migrations
//   - user, role: account administration
//   - tokens: refresh-token housekeeping
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/DenisZakharchuk/onward-sub002/migrations"

	"github.com/DenisZakharchuk/onward-sub002/internal/infrastructure/config"
	"github.com/DenisZakharchuk/onward-sub002/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path, overridable with ONWARD_CONFIG or --config.
const (
	defaultConfigPath = "configs/config.yaml"
	configPathEnv     = "ONWARD_CONFIG"
)

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "onward",
		Short:         "Authentication service with rotating refresh tokens",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", getConfigPath(), "Path to the YAML configuration file")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newUserCommand(opts))
	cmd.AddCommand(newRoleCommand(opts))
	cmd.AddCommand(newTokensCommand(opts))
	return cmd
}

// getConfigPath returns the config path from ONWARD_CONFIG or the default.
func getConfigPath() string {
	if path := os.Getenv(configPathEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// load reads the configuration and builds the configured logger.
func (o *rootOptions) load() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, logging.New(cfg.Logging, version), nil
}
