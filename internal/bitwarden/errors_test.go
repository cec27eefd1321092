package bitwarden

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errExit = errors.New("exit status 1")

func TestClassifyLogin(t *testing.T) {
	tests := []struct {
		name       string
		stderr     string
		err        error
		wantReason Reason
		wantMsg    string
	}{
		{
			name:       "bad credentials",
			stderr:     "Username or password is incorrect. Try again.",
			err:        errExit,
			wantReason: ReasonBadCredentials,
			wantMsg:    "Wrong email or password",
		},
		{
			name:       "invalid grant",
			stderr:     "error: invalid_grant",
			err:        errExit,
			wantReason: ReasonBadCredentials,
			wantMsg:    "Wrong email or password",
		},
		{
			name:       "dns failure",
			stderr:     "getaddrinfo ENOTFOUND vault.example.com",
			err:        errExit,
			wantReason: ReasonServerNotFound,
			wantMsg:    "Server not found. Check URL.",
		},
		{
			name:       "network down",
			stderr:     "network request failed",
			err:        errExit,
			wantReason: ReasonNetwork,
			wantMsg:    "Network error. Check connection.",
		},
		{
			name:       "unrecognized output",
			stderr:     "something unexpected",
			err:        errExit,
			wantReason: ReasonUnknown,
			wantMsg:    "Login failed. Check credentials.",
		},
		{
			name:       "timeout",
			stderr:     "",
			err:        context.DeadlineExceeded,
			wantReason: ReasonTimeout,
			wantMsg:    "Timeout. Server not responding.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyLogin(tt.stderr, tt.err)
			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.wantReason, authErr.Reason)
			assert.Equal(t, tt.wantMsg, authErr.Message)
		})
	}
}

func TestClassifyUnlock(t *testing.T) {
	tests := []struct {
		name       string
		output     string
		err        error
		wantReason Reason
		wantMsg    string
	}{
		{
			name:       "wrong master password",
			output:     "Invalid master password.",
			err:        errExit,
			wantReason: ReasonBadCredentials,
			wantMsg:    "Wrong password",
		},
		{
			name:       "not logged in",
			output:     "You are not logged in.",
			err:        errExit,
			wantReason: ReasonNotLoggedIn,
			wantMsg:    "Not logged in. Check email.",
		},
		{
			name:       "unrecognized output",
			output:     "something else",
			err:        errExit,
			wantReason: ReasonUnknown,
			wantMsg:    "Unlock failed",
		},
		{
			name:       "timeout",
			output:     "",
			err:        context.DeadlineExceeded,
			wantReason: ReasonTimeout,
			wantMsg:    "Timeout. Server not responding.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyUnlock(tt.output, tt.err)
			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.wantReason, authErr.Reason)
			assert.Equal(t, tt.wantMsg, authErr.Message)
		})
	}
}

func TestAuthErrorUnwrap(t *testing.T) {
	err := classifyLogin("network request failed", errExit)
	assert.ErrorIs(t, err, errExit)
	assert.Equal(t, "Network error. Check connection.", err.Error())
}
