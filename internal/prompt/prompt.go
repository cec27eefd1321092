// Package prompt collects credentials from the user, either through a
// macOS dialog (for the launchd path, where no terminal exists) or through
// the controlling terminal.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"
)

// ErrCancelled is returned when the user dismisses the prompt.
var ErrCancelled = errors.New("prompt: cancelled by user")

// Dialog prompts via osascript display dialogs. Answers are hidden.
type Dialog struct{}

// Password shows a hidden-answer dialog with the given title and message.
func (Dialog) Password(ctx context.Context, title, message string) (string, error) {
	script := fmt.Sprintf(
		`display dialog %s with title %s default answer "" with hidden answer`,
		appleScriptQuote(message), appleScriptQuote(title))
	out, err := exec.CommandContext(ctx, "osascript",
		"-e", script, "-e", "text returned of result").Output()
	if err != nil {
		// osascript exits 1 when the user presses Cancel.
		if _, ok := err.(*exec.ExitError); ok {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("prompt: dialog: %w", err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// Text shows a visible-answer dialog, used for the email address.
func (Dialog) Text(ctx context.Context, title, message string) (string, error) {
	script := fmt.Sprintf(
		`display dialog %s with title %s default answer ""`,
		appleScriptQuote(message), appleScriptQuote(title))
	out, err := exec.CommandContext(ctx, "osascript",
		"-e", script, "-e", "text returned of result").Output()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("prompt: dialog: %w", err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// Terminal prompts on the controlling terminal. Password input is not echoed.
type Terminal struct{}

// Password reads a hidden line from the terminal.
func (Terminal) Password(_ context.Context, _ string, message string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", message)
	value, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("prompt: read password: %w", err)
	}
	return string(value), nil
}

// Text reads a visible line from stdin.
func (Terminal) Text(_ context.Context, _ string, message string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", message)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("prompt: read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// appleScriptQuote wraps s in AppleScript string literal quotes.
func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
