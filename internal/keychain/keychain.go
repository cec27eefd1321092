// Package keychain stores and retrieves secrets via the macOS `security`
// command line tool. Secrets live in the user's login keychain under
// generic-password entries keyed by account + service.
package keychain

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strings"
)

// Service names used by the daemon.
const (
	ServiceSession = "bw-secrets-session"
	ServiceMaster  = "bw-secrets-master"
)

// Keychain reads and writes generic-password entries for one account.
type Keychain struct {
	account string
}

// New returns a Keychain scoped to the current user's account name.
func New() *Keychain {
	return &Keychain{account: accountName()}
}

// Get returns the secret stored under service, or ("", nil) when no entry
// exists. Absence is an expected state, not an error.
func (k *Keychain) Get(ctx context.Context, service string) (string, error) {
	cmd := exec.CommandContext(ctx, "security", "find-generic-password",
		"-a", k.account, "-s", service, "-w")
	out, err := cmd.Output()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return "", nil
		}
		return "", fmt.Errorf("keychain: get %s: %w", service, err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// Set stores the secret under service, replacing any existing entry.
func (k *Keychain) Set(ctx context.Context, service, secret string) error {
	cmd := exec.CommandContext(ctx, "security", "add-generic-password",
		"-a", k.account, "-s", service, "-w", secret, "-U")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("keychain: set %s: %s: %w", service, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Delete removes the entry under service. Deleting a missing entry is a no-op.
func (k *Keychain) Delete(ctx context.Context, service string) error {
	cmd := exec.CommandContext(ctx, "security", "delete-generic-password",
		"-a", k.account, "-s", service)
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return nil
		}
		return fmt.Errorf("keychain: delete %s: %w", service, err)
	}
	return nil
}

func accountName() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
