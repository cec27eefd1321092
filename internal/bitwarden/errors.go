package bitwarden

import (
	"context"
	"errors"
	"strings"
)

// Reason narrows an authentication failure to a retry-relevant category.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonBadCredentials
	ReasonServerNotFound
	ReasonNetwork
	ReasonTimeout
	ReasonNotLoggedIn
)

// AuthError is a classified login/unlock failure. Message is the
// human-readable form surfaced to the credential prompt on retry.
type AuthError struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }

// classifyLogin maps `bw login` failure output to an AuthError.
// The matching order mirrors the provider's observed error strings.
func classifyLogin(stderr string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &AuthError{Reason: ReasonTimeout, Message: "Timeout. Server not responding.", Err: err}
	}
	text := strings.ToLower(stderr)
	switch {
	case strings.Contains(text, "username or password") || strings.Contains(text, "invalid"):
		return &AuthError{Reason: ReasonBadCredentials, Message: "Wrong email or password", Err: err}
	case strings.Contains(text, "not found") || strings.Contains(text, "unable to resolve") || strings.Contains(text, "enotfound"):
		return &AuthError{Reason: ReasonServerNotFound, Message: "Server not found. Check URL.", Err: err}
	case strings.Contains(text, "network") || strings.Contains(text, "connect"):
		return &AuthError{Reason: ReasonNetwork, Message: "Network error. Check connection.", Err: err}
	default:
		return &AuthError{Reason: ReasonUnknown, Message: "Login failed. Check credentials.", Err: err}
	}
}

// classifyUnlock maps `bw unlock` failure output to an AuthError.
// bw reports unlock problems on stdout as often as stderr, so callers pass
// both streams concatenated.
func classifyUnlock(output string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &AuthError{Reason: ReasonTimeout, Message: "Timeout. Server not responding.", Err: err}
	}
	text := strings.ToLower(output)
	switch {
	case strings.Contains(text, "not logged in") || strings.Contains(text, "unauthenticated"):
		return &AuthError{Reason: ReasonNotLoggedIn, Message: "Not logged in. Check email.", Err: err}
	case strings.Contains(text, "invalid") || strings.Contains(text, "password") || strings.Contains(text, "master"):
		return &AuthError{Reason: ReasonBadCredentials, Message: "Wrong password", Err: err}
	default:
		return &AuthError{Reason: ReasonUnknown, Message: "Unlock failed", Err: err}
	}
}
