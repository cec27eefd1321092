package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forest6511/bwcached/internal/audit"
	"github.com/forest6511/bwcached/internal/bitwarden"
	"github.com/forest6511/bwcached/internal/cache"
	"github.com/forest6511/bwcached/internal/daemon"
	"github.com/forest6511/bwcached/internal/keychain"
	"github.com/forest6511/bwcached/internal/prompt"
	"github.com/forest6511/bwcached/internal/session"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon in the foreground",
	Long: `Run the daemon in the foreground. The session token comes from the
BW_SESSION environment variable or from the keychain; serve never prompts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newDaemonLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		provider := newProvider()
		store := keychain.New()
		auditLog := newAudit()
		mgr := session.NewManager(session.Options{
			Provider:    provider,
			Store:       store,
			Prompt:      prompt.Terminal{},
			Env:         env,
			Audit:       auditLog,
			Logger:      log,
			MaxAttempts: cfg.MaxPromptAttempts,
		})

		token := os.Getenv("BW_SESSION")
		if token != "" {
			// Seed the keychain so RELOAD and the refresher find the
			// same session the launcher handed us.
			if err := store.Set(ctx, session.KeySession, token); err != nil {
				log.Warn("failed to cache handed-off session", zap.Error(err))
			}
		} else {
			token, err = mgr.Obtain(ctx, false)
			if err != nil {
				return fmt.Errorf("no session available: %w", err)
			}
		}

		return runDaemon(ctx, token, provider, store, mgr, auditLog, log)
	},
}

// runDaemon loads the vault, then serves until ctx is cancelled. Shared by
// serve (foreground) and launch (launchd handoff).
func runDaemon(ctx context.Context, token string, provider *bitwarden.CLI, store *keychain.Keychain, mgr *session.Manager, auditLog *audit.Logger, log *zap.Logger) error {
	if err := os.WriteFile(cfg.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	defer os.Remove(cfg.PIDFile)

	items, err := provider.ListItems(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to load vault: %w", err)
	}
	c := cache.New()
	c.Replace(cache.Build(items))
	log.Info("vault loaded", zap.Int("items", c.Len()))

	auditLog.Log(audit.OpDaemonStart, true, fmt.Sprintf("%d items", c.Len()))
	defer auditLog.Log(audit.OpDaemonStop, true, "")

	refresher := daemon.NewRefresher(c, provider, store, cfg.RefreshInterval.Std(), auditLog, log)
	if err := refresher.Start(ctx); err != nil {
		return err
	}
	defer refresher.Stop()

	server := daemon.NewServer(cfg.SocketPath, c, provider, mgr, auditLog, log)
	return server.Serve(ctx)
}

// newDaemonLogger builds the production logger used by daemon processes.
func newDaemonLogger() (*zap.Logger, error) {
	log, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return log, nil
}
