package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cinesync/backend/internal/config"
	"github.com/cinesync/backend/internal/container"
	"github.com/cinesync/backend/internal/logger"
)

var (
	output   string = "text" // "text" or "json"
	logLevel string = "warn"
)

var rootCmd = &cobra.Command{
	Use:   "cinesync-admin",
	Short: "CineSync admin CLI - seed data and repair derived state",
	Long: `cinesync-admin runs maintenance tasks directly against the configured
document store. It reads the same environment as the API server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if output != "text" && output != "json" {
			return fmt.Errorf("unknown output format %q", output)
		}
		return logger.Initialize(logLevel, os.Getenv("LOG_FILE"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&output, "output", output, "Output format: text or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "Log level")

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(badgesCmd)
	rootCmd.AddCommand(levelCmd)
}

// openContainer builds the dependencies from the environment and starts
// the trigger workers so writes award XP like they do on the server
func openContainer(ctx context.Context) (*container.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	c, err := container.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.Start(false)
	return c, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
