// Package session drives authentication against the vault provider and
// caches the resulting session token in the OS keychain. It owns the
// state machine that decides, per provider status, whether a full login
// or just an unlock is required.
package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/forest6511/bwcached/internal/audit"
	"github.com/forest6511/bwcached/internal/bitwarden"
	"github.com/forest6511/bwcached/internal/envfile"
	"github.com/forest6511/bwcached/internal/prompt"
)

// Keychain service names for the two secrets the manager caches.
const (
	KeySession = "bw-secrets-session"
	KeyMaster  = "bw-secrets-master"
)

// ErrCancelled reports that the user dismissed the credential prompt.
var ErrCancelled = errors.New("session: cancelled by user")

// ErrNoCredentials reports a non-interactive Obtain with nothing cached.
var ErrNoCredentials = errors.New("session: no cached credentials and prompting disabled")

// promptTitle heads every credential dialog.
const promptTitle = "Bitwarden Secrets"

// Provider is the subset of vault operations the manager needs.
type Provider interface {
	Status(ctx context.Context) (bitwarden.Status, error)
	SessionStatus(ctx context.Context, session string) (bitwarden.Status, error)
	ConfigureServer(ctx context.Context, url string) error
	Login(ctx context.Context, email, password string) (string, error)
	Unlock(ctx context.Context, password string) (string, error)
}

// SecretStore caches the session token and master password.
type SecretStore interface {
	Get(ctx context.Context, service string) (string, error)
	Set(ctx context.Context, service, secret string) error
	Delete(ctx context.Context, service string) error
}

// CredentialPrompt collects credentials from the user.
type CredentialPrompt interface {
	Password(ctx context.Context, title, message string) (string, error)
	Text(ctx context.Context, title, message string) (string, error)
}

// Manager obtains vault sessions, consulting caches before the user.
type Manager struct {
	provider Provider
	store    SecretStore
	prompt   CredentialPrompt
	env      *envfile.File
	audit    *audit.Logger
	log      *zap.Logger

	maxAttempts int
}

// Options configures a Manager.
type Options struct {
	Provider    Provider
	Store       SecretStore
	Prompt      CredentialPrompt
	Env         *envfile.File
	Audit       *audit.Logger
	Logger      *zap.Logger
	MaxAttempts int
}

// NewManager wires a Manager. A nil Logger falls back to a no-op logger; a
// non-positive MaxAttempts falls back to 10.
func NewManager(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 10
	}
	return &Manager{
		provider:    opts.Provider,
		store:       opts.Store,
		prompt:      opts.Prompt,
		env:         opts.Env,
		audit:       opts.Audit,
		log:         log,
		maxAttempts: attempts,
	}
}

// Obtain returns a valid session token. It tries the cached token first,
// then the cached master password, and only then prompts the user —
// never when interactive is false.
func (m *Manager) Obtain(ctx context.Context, interactive bool) (string, error) {
	if token, ok := m.tryCachedSession(ctx); ok {
		return token, nil
	}
	if token, ok := m.tryCachedMaster(ctx); ok {
		return token, nil
	}
	if !interactive {
		return "", ErrNoCredentials
	}
	return m.promptLoop(ctx)
}

// Session returns a session token without ever prompting. It is the
// session source handed to the daemon for RELOAD handling.
func (m *Manager) Session(ctx context.Context) (string, error) {
	return m.Obtain(ctx, false)
}

// tryCachedSession validates a previously cached session token.
func (m *Manager) tryCachedSession(ctx context.Context) (string, bool) {
	token, err := m.store.Get(ctx, KeySession)
	if err != nil {
		m.log.Warn("keychain read failed", zap.String("service", KeySession), zap.Error(err))
		return "", false
	}
	if token == "" {
		return "", false
	}
	status, err := m.provider.SessionStatus(ctx, token)
	if err != nil || status != bitwarden.StatusUnlocked {
		m.log.Info("cached session is stale", zap.String("status", string(status)))
		return "", false
	}
	m.log.Debug("reusing cached session")
	return token, true
}

// tryCachedMaster authenticates with the cached master password, if any:
// an unlock when logged in, a full login when not.
func (m *Manager) tryCachedMaster(ctx context.Context) (string, bool) {
	password, err := m.store.Get(ctx, KeyMaster)
	if err != nil || password == "" {
		return "", false
	}
	status, err := m.provider.Status(ctx)
	if err != nil {
		return "", false
	}

	var token string
	switch status {
	case bitwarden.StatusLocked, bitwarden.StatusUnlocked:
		token, err = m.provider.Unlock(ctx, password)
		m.auditLog(audit.OpUnlock, err == nil, "cached master password")
	case bitwarden.StatusUnauthenticated:
		email := m.env.Email()
		if email == "" {
			return "", false
		}
		if cfgErr := m.provider.ConfigureServer(ctx, m.env.Server()); cfgErr != nil {
			m.log.Warn("server configuration failed", zap.Error(cfgErr))
		}
		token, err = m.provider.Login(ctx, email, password)
		m.auditLog(audit.OpLogin, err == nil, email)
	default:
		return "", false
	}
	if err != nil {
		m.log.Info("cached master password rejected", zap.Error(err))
		return "", false
	}
	m.cacheSession(ctx, token)
	return token, true
}

// promptLoop asks the user for credentials until the provider accepts
// them, the user cancels, or the attempt budget runs out.
func (m *Manager) promptLoop(ctx context.Context) (string, error) {
	message := ""
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		status, err := m.provider.Status(ctx)
		if err != nil {
			m.log.Warn("provider status check failed", zap.Error(err))
			status = bitwarden.StatusUnknown
		}

		var token string
		var password string
		switch status {
		case bitwarden.StatusUnlocked:
			// Already unlocked out-of-band but we hold no token; an
			// unlock with the master password re-derives one.
			fallthrough
		case bitwarden.StatusLocked, bitwarden.StatusUnknown:
			token, password, err = m.unlockInteractive(ctx, message)
		case bitwarden.StatusUnauthenticated:
			token, password, err = m.loginInteractive(ctx, message)
		}
		if err != nil {
			if errors.Is(err, prompt.ErrCancelled) {
				m.auditLog(audit.OpPrompt, false, "cancelled")
				return "", ErrCancelled
			}
			remaining := m.maxAttempts - attempt
			if remaining == 0 {
				m.auditLog(audit.OpPrompt, false, "attempts exhausted")
				return "", fmt.Errorf("session: authentication failed after %d attempts: %w", m.maxAttempts, err)
			}
			message = fmt.Sprintf("%s %d attempt(s) left.", authMessage(err), remaining)
			m.log.Info("authentication attempt failed",
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		m.cacheSession(ctx, token)
		if err := m.store.Set(ctx, KeyMaster, password); err != nil {
			m.log.Warn("failed to cache master password", zap.Error(err))
		}
		return token, nil
	}
	return "", fmt.Errorf("session: authentication failed after %d attempts", m.maxAttempts)
}

// loginInteractive performs a full email+password login. Server URL and
// email are re-collected on every attempt with the stored values as
// defaults, so a wrong persisted email can be corrected mid-retry-loop.
// An empty answer keeps the default.
func (m *Manager) loginInteractive(ctx context.Context, retryMessage string) (token, password string, err error) {
	envChanged := false

	server, err := m.prompt.Text(ctx, promptTitle,
		fmt.Sprintf("Bitwarden server URL (leave empty for %s):", m.env.Server()))
	if err != nil {
		return "", "", err
	}
	if server != "" && server != m.env.Server() {
		m.env.Set(envfile.KeyServer, server)
		envChanged = true
	}

	emailMessage := "Bitwarden email address:"
	if stored := m.env.Email(); stored != "" {
		emailMessage = fmt.Sprintf("Bitwarden email address (leave empty for %s):", stored)
	}
	email, err := m.prompt.Text(ctx, promptTitle, emailMessage)
	if err != nil {
		return "", "", err
	}
	if email == "" {
		email = m.env.Email()
	}
	if email == "" {
		return "", "", errors.New("session: email address is required")
	}

	// Point the provider at the chosen server before logging in. This
	// path only runs while unauthenticated, so no live session can be
	// disturbed by the reconfiguration.
	if cfgErr := m.provider.ConfigureServer(ctx, m.env.Server()); cfgErr != nil {
		m.log.Warn("server configuration failed", zap.Error(cfgErr))
	}

	message := "Bitwarden master password for " + email + ":"
	if retryMessage != "" {
		message = retryMessage + "\n" + message
	}
	password, err = m.prompt.Password(ctx, promptTitle, message)
	if err != nil {
		return "", "", err
	}

	token, err = m.provider.Login(ctx, email, password)
	m.auditLog(audit.OpLogin, err == nil, email)
	if err != nil {
		return "", "", err
	}

	if m.env.Email() != email {
		m.env.Set(envfile.KeyEmail, email)
		envChanged = true
	}
	if envChanged {
		if saveErr := m.env.Save(); saveErr != nil {
			m.log.Warn("failed to persist account settings", zap.Error(saveErr))
		}
	}
	return token, password, nil
}

// unlockInteractive prompts for the master password and unlocks.
func (m *Manager) unlockInteractive(ctx context.Context, retryMessage string) (token, password string, err error) {
	message := "Bitwarden master password:"
	if retryMessage != "" {
		message = retryMessage + "\n" + message
	}
	password, err = m.prompt.Password(ctx, promptTitle, message)
	if err != nil {
		return "", "", err
	}

	token, err = m.provider.Unlock(ctx, password)
	m.auditLog(audit.OpUnlock, err == nil, "interactive")
	if err != nil {
		return "", "", err
	}
	return token, password, nil
}

func (m *Manager) cacheSession(ctx context.Context, token string) {
	if err := m.store.Set(ctx, KeySession, token); err != nil {
		m.log.Warn("failed to cache session token", zap.Error(err))
	}
}

func (m *Manager) auditLog(op string, success bool, detail string) {
	if err := m.audit.Log(op, success, detail); err != nil {
		m.log.Warn("audit write failed", zap.Error(err))
	}
}

// authMessage extracts the user-facing message from a classified
// authentication error.
func authMessage(err error) string {
	var authErr *bitwarden.AuthError
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	return "Authentication failed."
}
