// Package main provides the bwcached CLI commands.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/bwcached/internal/audit"
	"github.com/forest6511/bwcached/internal/bitwarden"
	"github.com/forest6511/bwcached/internal/config"
	"github.com/forest6511/bwcached/internal/envfile"
)

const version = "0.4.0"

var (
	configPath string
	cfg        *config.Config
	env        *envfile.File
)

var rootCmd = &cobra.Command{
	Use:           "bwcached",
	Short:         "bwcached caches Bitwarden secrets in a local daemon",
	Long:          `A local daemon that keeps decrypted Bitwarden items in memory and serves them over a unix socket.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE runs before every subcommand and loads the shared
	// configuration and env file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		env, err = envfile.Load(cfg.EnvFile)
		if err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.bwcached/config.yaml)")
}

// newProvider returns the bw CLI wrapper built from the loaded config.
func newProvider() *bitwarden.CLI {
	return bitwarden.NewCLI(cfg.ProviderPath, cfg.ProviderTimeout.Std())
}

// newAudit returns the audit logger built from the loaded config.
func newAudit() *audit.Logger {
	return audit.NewLogger(cfg.AuditLog)
}
