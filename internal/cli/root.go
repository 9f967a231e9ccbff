// Package cli implements the command-line interface for branchd.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/branchd/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "branchd",
	Short: "Schema branch control plane",
	Long: `branchd coordinates isolated schema branches over a shared index store.
It tracks branch lifecycle state, serializes indexing through per-resource
locks, promotes shadow indexes atomically, and decides whether finished
branches can merge automatically.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to the branchd config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(shadowCmd)
	rootCmd.AddCommand(eventCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(evaluateCmd)
}

func defaultConfigPath() string {
	if v := os.Getenv("BRANCHD_CONFIG"); v != "" {
		return v
	}
	return "/etc/branchd/config.toml"
}

// loadConfig reads the config file given on the command line.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitError("%v", err)
	}
	return cfg
}

// apiClient builds a client for a running branchd daemon.
func apiClient() *Client {
	cfg := loadConfig()

	base := os.Getenv("BRANCHD_URL")
	if base == "" {
		base = "http://" + cfg.Listen
	}
	token := os.Getenv("BRANCHD_TOKEN")
	if token == "" {
		token = cfg.AuthToken
	}
	return NewClient(base, token)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// shortID returns first 8 characters of an ID
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
