// Package bitwarden wraps the Bitwarden CLI (`bw`) as a vault provider.
// Every invocation runs under a bounded timeout; a hung CLI call must not
// stall the daemon indefinitely.
package bitwarden

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Status is the provider-reported authentication state.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusLocked          Status = "locked"
	StatusUnlocked        Status = "unlocked"
	StatusUnknown         Status = "unknown"
)

// DefaultTimeout bounds a single provider invocation.
const DefaultTimeout = 60 * time.Second

var ErrEmptySession = errors.New("bitwarden: provider returned an empty session token")

// Item is one vault record as emitted by `bw list items`.
// Structure mirrors the Bitwarden JSON export format.
type Item struct {
	ID     string        `json:"id,omitempty"`
	Type   int           `json:"type"`
	Name   string        `json:"name"`
	Notes  string        `json:"notes,omitempty"`
	Login  *Login        `json:"login,omitempty"`
	Fields []CustomField `json:"fields,omitempty"`
}

// Login holds the standard login sub-fields of an item.
type Login struct {
	URIs     []URI  `json:"uris,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	TOTP     string `json:"totp,omitempty"`
}

// URI is a single login URI entry.
type URI struct {
	URI string `json:"uri"`
}

// CustomField is a user-defined field on an item. Value is a pointer so a
// JSON null (cleared field) is distinguishable from an empty string.
type CustomField struct {
	Name  string  `json:"name"`
	Value *string `json:"value"`
	Type  int     `json:"type"`
}

// TypeLogin is the Bitwarden item type code for login records.
const TypeLogin = 1

// CLI shells out to the bw executable.
type CLI struct {
	bin     string
	timeout time.Duration
}

// NewCLI returns a CLI wrapper around the given bw binary. An empty bin
// falls back to "bw" on PATH; a zero timeout falls back to DefaultTimeout.
func NewCLI(bin string, timeout time.Duration) *CLI {
	if bin == "" {
		bin = "bw"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CLI{bin: bin, timeout: timeout}
}

// run executes one bw invocation with the configured timeout.
func (c *CLI) run(ctx context.Context, stdin string, extraEnv []string, args ...string) (stdout, stderr string, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.bin, args...)
	cmd.Env = append(os.Environ(), extraEnv...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	stdout = strings.TrimSpace(outBuf.String())
	stderr = strings.TrimSpace(errBuf.String())
	if ctx.Err() == context.DeadlineExceeded {
		return stdout, stderr, context.DeadlineExceeded
	}
	return stdout, stderr, err
}

// Status reports the provider authentication state via `bw status`.
// Any failure maps to StatusUnknown rather than an error: callers treat an
// unknown state as locked-equivalent.
func (c *CLI) Status(ctx context.Context) (Status, error) {
	out, _, err := c.run(ctx, "", nil, "status")
	if err != nil {
		return StatusUnknown, fmt.Errorf("bitwarden: status: %w", err)
	}
	var st struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		return StatusUnknown, fmt.Errorf("bitwarden: status: malformed response: %w", err)
	}
	switch Status(st.Status) {
	case StatusUnauthenticated, StatusLocked, StatusUnlocked:
		return Status(st.Status), nil
	default:
		return StatusUnknown, nil
	}
}

// SessionStatus reports the authentication state as seen with the given
// session token. A valid cached token yields StatusUnlocked.
func (c *CLI) SessionStatus(ctx context.Context, session string) (Status, error) {
	out, _, err := c.run(ctx, "", []string{"BW_SESSION=" + session}, "status")
	if err != nil {
		return StatusUnknown, fmt.Errorf("bitwarden: status: %w", err)
	}
	var st struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		return StatusUnknown, fmt.Errorf("bitwarden: status: malformed response: %w", err)
	}
	switch Status(st.Status) {
	case StatusUnauthenticated, StatusLocked, StatusUnlocked:
		return Status(st.Status), nil
	default:
		return StatusUnknown, nil
	}
}

// ServerURL returns the currently configured server endpoint.
func (c *CLI) ServerURL(ctx context.Context) (string, error) {
	out, _, err := c.run(ctx, "", nil, "config", "server")
	if err != nil {
		return "", fmt.Errorf("bitwarden: config server: %w", err)
	}
	return out, nil
}

// ConfigureServer points the provider at the given server URL. It is a
// no-op when the current value already matches, so an active session is
// never disturbed by a redundant reconfiguration.
func (c *CLI) ConfigureServer(ctx context.Context, url string) error {
	current, err := c.ServerURL(ctx)
	if err == nil && current == url {
		return nil
	}
	if _, stderr, err := c.run(ctx, "", nil, "config", "server", url); err != nil {
		return fmt.Errorf("bitwarden: config server %q: %s: %w", url, stderr, err)
	}
	return nil
}

// Login performs a full email+password login and returns the session token.
func (c *CLI) Login(ctx context.Context, email, password string) (string, error) {
	out, stderr, err := c.run(ctx, password+"\n", nil, "login", email, "--raw")
	if err != nil {
		return "", classifyLogin(stderr, err)
	}
	if out == "" {
		return "", ErrEmptySession
	}
	return out, nil
}

// Unlock unlocks an already-authenticated account with the master password.
// The password travels through the environment, never argv.
func (c *CLI) Unlock(ctx context.Context, password string) (string, error) {
	out, stderr, err := c.run(ctx, "", []string{"BW_PASSWORD=" + password},
		"unlock", "--passwordenv", "BW_PASSWORD", "--raw")
	if err != nil {
		return "", classifyUnlock(stderr+" "+out, err)
	}
	if out == "" {
		return "", ErrEmptySession
	}
	return out, nil
}

// ListItems returns all decrypted vault items for the session.
func (c *CLI) ListItems(ctx context.Context, session string) ([]Item, error) {
	out, stderr, err := c.run(ctx, "", nil, "list", "items", "--session", session)
	if err != nil {
		return nil, fmt.Errorf("bitwarden: list items: %s: %w", stderr, err)
	}
	var items []Item
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		return nil, fmt.Errorf("bitwarden: list items: malformed response: %w", err)
	}
	return items, nil
}

// Sync pulls the latest vault state from the server.
func (c *CLI) Sync(ctx context.Context, session string) error {
	if _, stderr, err := c.run(ctx, "", nil, "sync", "--session", session); err != nil {
		return fmt.Errorf("bitwarden: sync: %s: %w", stderr, err)
	}
	return nil
}

// CreateItem creates a new vault item and returns the stored record.
// bw expects the item JSON base64-encoded on the command line.
func (c *CLI) CreateItem(ctx context.Context, session string, item Item) (*Item, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("bitwarden: create item: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(payload)

	out, stderr, err := c.run(ctx, "", nil,
		"create", "item", encoded, "--session", session, "--nointeraction")
	if err != nil {
		return nil, fmt.Errorf("bitwarden: create item: %s: %w", stderr, err)
	}
	var created Item
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		return nil, fmt.Errorf("bitwarden: create item: malformed response: %w", err)
	}
	return &created, nil
}
