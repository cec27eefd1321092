package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forest6511/bwcached/internal/keychain"
	"github.com/forest6511/bwcached/internal/prompt"
	"github.com/forest6511/bwcached/internal/session"
)

func init() {
	rootCmd.AddCommand(startCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon, or reload it if already running",
	Long: `Smart start: if the daemon is already running its cache is reloaded;
otherwise this authenticates and spawns the daemon in the background.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// A live daemon just gets a reload.
		if _, err := os.Stat(cfg.SocketPath); err == nil {
			if response, err := sendCommand(cfg.SocketPath, "RELOAD"); err == nil && strings.HasPrefix(response, "OK ") {
				fmt.Println(response[3:])
				return nil
			}
			// Socket exists but the daemon is not answering; restart it.
		}

		ctx := context.Background()
		provider := newProvider()
		store := keychain.New()
		mgr := session.NewManager(session.Options{
			Provider:    provider,
			Store:       store,
			Prompt:      pickPrompt(),
			Env:         env,
			Audit:       newAudit(),
			MaxAttempts: cfg.MaxPromptAttempts,
		})

		token, err := mgr.Obtain(ctx, true)
		if err != nil {
			if errors.Is(err, session.ErrCancelled) {
				return fmt.Errorf("cancelled")
			}
			return fmt.Errorf("failed to authenticate: %w", err)
		}

		stopDaemon()

		if err := spawnDaemon(token); err != nil {
			return err
		}
		if !waitForSocket(cfg.SocketPath) {
			return fmt.Errorf("daemon did not come up; check the logs")
		}

		fmt.Println("Daemon started")
		fmt.Printf("Server: %s\n", env.Server())
		fmt.Printf("User: %s\n", env.Email())
		return nil
	},
}

// pickPrompt selects terminal prompting when attached to a TTY or when
// dialogs are disabled with BW_NO_GUI=1, and the GUI dialog otherwise.
func pickPrompt() session.CredentialPrompt {
	if os.Getenv("BW_NO_GUI") == "1" || term.IsTerminal(int(os.Stdin.Fd())) {
		return prompt.Terminal{}
	}
	return prompt.Dialog{}
}

// spawnDaemon runs `bwcached serve` detached, handing the session over
// through the environment.
func spawnDaemon(token string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate own binary: %w", err)
	}

	args := []string{"serve"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	daemonCmd := exec.Command(self, args...)
	daemonCmd.Env = append(os.Environ(), "BW_SESSION="+token)
	daemonCmd.Stdout = nil
	daemonCmd.Stderr = nil
	daemonCmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := daemonCmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	return daemonCmd.Process.Release()
}

// waitForSocket polls until the daemon binds its socket.
func waitForSocket(path string) bool {
	for i := 0; i < 20; i++ {
		if _, err := os.Stat(path); err == nil {
			return true
		}
		time.Sleep(250 * time.Millisecond)
	}
	return false
}
