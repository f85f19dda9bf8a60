// Command digilync runs the DigiLync marketplace backend: the WhatsApp
// registration bot, the admin REST API and the public metrics feed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd(cfg Config) *cobra.Command {
	serveCfg := cfg
	cmd := &cobra.Command{
		Use:          "digilync",
		Short:        "DigiLync farmer and service provider marketplace",
		Long:         "DigiLync registers farmers and farm service providers over WhatsApp and serves the admin API.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), serveCfg)
		},
	}
	bindFlags(cmd, &serveCfg)

	cmd.AddCommand(newServeCmd(cfg))
	cmd.AddCommand(newMigrateCmd(cfg))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newServeCmd(cfg Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and the WhatsApp bot (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
	bindFlags(cmd, &cfg)
	return cmd
}

func newMigrateCmd(cfg Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			initializeLogger(cfg.LogLevel)
			return runMigrate(cmd.OutOrStdout(), cfg)
		},
	}
	bindFlags(cmd, &cfg)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "digilync %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(ctx context.Context, cmd *cobra.Command) int {
	if err := cmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newRootCmd(loadEnvironmentConfig()))
	stop()
	os.Exit(code)
}
