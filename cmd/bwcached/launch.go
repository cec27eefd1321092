package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/bwcached/internal/guard"
	"github.com/forest6511/bwcached/internal/keychain"
	"github.com/forest6511/bwcached/internal/prompt"
	"github.com/forest6511/bwcached/internal/session"
)

func init() {
	rootCmd.AddCommand(launchCmd)
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Authenticate and run the daemon (launchd entry point)",
	Long: `Launcher for launchd. Authenticates with cached credentials or a GUI
dialog, then runs the daemon in this process. Repeated startup failures trip
a counter that stops the launchd job instead of restarting forever.`,
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
		g := guard.New(cfg.FailCountFile, cfg.MaxFailures,
			guard.Launchd{Label: cfg.LaunchdLabel}, guard.DialogAlerter{}, auditLog, log)
		mgr := session.NewManager(session.Options{
			Provider:    provider,
			Store:       store,
			Prompt:      prompt.Dialog{},
			Env:         env,
			Audit:       auditLog,
			Logger:      log,
			MaxAttempts: cfg.MaxPromptAttempts,
		})

		token, err := mgr.Obtain(ctx, true)
		if err != nil {
			// A cancelled dialog is a user decision, not a failure; it
			// must not advance the restart counter.
			if errors.Is(err, session.ErrCancelled) {
				fmt.Fprintln(os.Stderr, "Login cancelled by user")
				return nil
			}
			return failStartup(ctx, g, err)
		}

		// A token that unlocks but cannot sync is expired server-side.
		if err := provider.Sync(ctx, token); err != nil {
			if delErr := store.Delete(ctx, session.KeySession); delErr != nil {
				return failStartup(ctx, g, delErr)
			}
			token, err = mgr.Obtain(ctx, false)
			if err != nil {
				return failStartup(ctx, g, fmt.Errorf("session invalid or expired: %w", err))
			}
		}

		if err := g.Reset(); err != nil {
			return err
		}

		if err := runDaemon(ctx, token, provider, store, mgr, auditLog, log); err != nil {
			return failStartup(ctx, g, err)
		}
		return nil
	},
}

// failStartup records the failure with the restart guard and surfaces the
// original error.
func failStartup(ctx context.Context, g *guard.Guard, err error) error {
	if guardErr := g.Failure(ctx); guardErr != nil {
		return fmt.Errorf("%w (restart guard: %v)", err, guardErr)
	}
	return err
}
