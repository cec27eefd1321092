package guard

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Launchd stops the user's launchd job via `launchctl bootout`.
type Launchd struct {
	Label string
}

// Stop boots the job out of the user's GUI domain.
func (l Launchd) Stop(ctx context.Context) error {
	target := fmt.Sprintf("gui/%d/%s", os.Getuid(), l.Label)
	cmd := exec.CommandContext(ctx, "launchctl", "bootout", target)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("guard: launchctl bootout %s: %s: %w", target, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// DialogAlerter shows a macOS alert dialog via osascript.
type DialogAlerter struct{}

// Alert displays a blocking alert with the given message.
func (DialogAlerter) Alert(ctx context.Context, message string) error {
	escaped := strings.ReplaceAll(message, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	script := fmt.Sprintf(`display alert "bw-secrets" message "%s"`, escaped)
	if out, err := exec.CommandContext(ctx, "osascript", "-e", script).CombinedOutput(); err != nil {
		return fmt.Errorf("guard: osascript alert: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}
