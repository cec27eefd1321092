package session

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/bwcached/internal/bitwarden"
	"github.com/forest6511/bwcached/internal/envfile"
	"github.com/forest6511/bwcached/internal/prompt"
)

type fakeProvider struct {
	status        bitwarden.Status
	sessionStatus bitwarden.Status

	loginToken  string
	loginErr    error
	unlockToken string
	unlockErr   error

	// accepted credentials; when set, login/unlock succeed only on match
	wantPassword string
	wantEmail    string

	configuredServer string
	loginCalls       int
	unlockCalls      int
}

func (f *fakeProvider) Status(ctx context.Context) (bitwarden.Status, error) {
	return f.status, nil
}

func (f *fakeProvider) SessionStatus(ctx context.Context, session string) (bitwarden.Status, error) {
	return f.sessionStatus, nil
}

func (f *fakeProvider) ConfigureServer(ctx context.Context, url string) error {
	f.configuredServer = url
	return nil
}

func (f *fakeProvider) Login(ctx context.Context, email, password string) (string, error) {
	f.loginCalls++
	if f.wantEmail != "" && email != f.wantEmail {
		return "", &bitwarden.AuthError{Reason: bitwarden.ReasonNotLoggedIn, Message: "Not logged in. Check email."}
	}
	if f.wantPassword != "" && password != f.wantPassword {
		return "", &bitwarden.AuthError{Reason: bitwarden.ReasonBadCredentials, Message: "Wrong email or password"}
	}
	return f.loginToken, f.loginErr
}

func (f *fakeProvider) Unlock(ctx context.Context, password string) (string, error) {
	f.unlockCalls++
	if f.wantPassword != "" && password != f.wantPassword {
		return "", &bitwarden.AuthError{Reason: bitwarden.ReasonBadCredentials, Message: "Wrong password"}
	}
	return f.unlockToken, f.unlockErr
}

type fakeStore struct {
	secrets map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{secrets: map[string]string{}}
}

func (f *fakeStore) Get(ctx context.Context, service string) (string, error) {
	return f.secrets[service], nil
}

func (f *fakeStore) Set(ctx context.Context, service, secret string) error {
	f.secrets[service] = secret
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, service string) error {
	delete(f.secrets, service)
	return nil
}

// scriptedPrompt replays queued answers; an empty queue means cancel.
type scriptedPrompt struct {
	passwords []string
	texts     []string
	messages  []string
}

func (p *scriptedPrompt) Password(ctx context.Context, title, message string) (string, error) {
	p.messages = append(p.messages, message)
	if len(p.passwords) == 0 {
		return "", prompt.ErrCancelled
	}
	answer := p.passwords[0]
	p.passwords = p.passwords[1:]
	return answer, nil
}

func (p *scriptedPrompt) Text(ctx context.Context, title, message string) (string, error) {
	if len(p.texts) == 0 {
		return "", prompt.ErrCancelled
	}
	answer := p.texts[0]
	p.texts = p.texts[1:]
	return answer, nil
}

func testEnv(t *testing.T) *envfile.File {
	t.Helper()
	env, err := envfile.Load(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	return env
}

func newTestManager(t *testing.T, provider *fakeProvider, store *fakeStore, p CredentialPrompt) *Manager {
	t.Helper()
	return NewManager(Options{
		Provider:    provider,
		Store:       store,
		Prompt:      p,
		Env:         testEnv(t),
		MaxAttempts: 3,
	})
}

func TestObtainReusesValidCachedSession(t *testing.T) {
	provider := &fakeProvider{sessionStatus: bitwarden.StatusUnlocked}
	store := newFakeStore()
	store.secrets[KeySession] = "cached-token"

	m := newTestManager(t, provider, store, &scriptedPrompt{})

	token, err := m.Obtain(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "cached-token", token)
	assert.Zero(t, provider.unlockCalls)
	assert.Zero(t, provider.loginCalls)
}

func TestObtainUnlocksWithCachedMaster(t *testing.T) {
	provider := &fakeProvider{
		status:      bitwarden.StatusLocked,
		unlockToken: "unlocked-token",
	}
	store := newFakeStore()
	store.secrets[KeyMaster] = "hunter2"

	m := newTestManager(t, provider, store, &scriptedPrompt{})

	token, err := m.Obtain(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "unlocked-token", token)
	assert.Equal(t, "unlocked-token", store.secrets[KeySession],
		"fresh session should be cached")
}

func TestObtainLogsInWithCachedMasterWhenUnauthenticated(t *testing.T) {
	provider := &fakeProvider{
		status:     bitwarden.StatusUnauthenticated,
		loginToken: "login-token",
	}
	store := newFakeStore()
	store.secrets[KeyMaster] = "hunter2"

	m := newTestManager(t, provider, store, &scriptedPrompt{})
	m.env.Set(envfile.KeyEmail, "user@example.com")

	token, err := m.Obtain(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "login-token", token)
	assert.Equal(t, 1, provider.loginCalls)
}

func TestObtainStaleSessionFallsThrough(t *testing.T) {
	provider := &fakeProvider{
		sessionStatus: bitwarden.StatusLocked, // cached token no longer unlocks
		status:        bitwarden.StatusLocked,
		unlockToken:   "new-token",
	}
	store := newFakeStore()
	store.secrets[KeySession] = "stale-token"
	store.secrets[KeyMaster] = "hunter2"

	m := newTestManager(t, provider, store, &scriptedPrompt{})

	token, err := m.Obtain(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "new-token", token)
}

func TestObtainNonInteractiveWithoutCredentials(t *testing.T) {
	provider := &fakeProvider{status: bitwarden.StatusLocked}
	m := newTestManager(t, provider, newFakeStore(), &scriptedPrompt{})

	_, err := m.Obtain(context.Background(), false)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestObtainInteractiveUnlock(t *testing.T) {
	provider := &fakeProvider{
		status:       bitwarden.StatusLocked,
		unlockToken:  "tok",
		wantPassword: "correct",
	}
	store := newFakeStore()
	p := &scriptedPrompt{passwords: []string{"correct"}}
	m := newTestManager(t, provider, store, p)

	token, err := m.Obtain(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
	assert.Equal(t, "tok", store.secrets[KeySession])
	assert.Equal(t, "correct", store.secrets[KeyMaster],
		"interactive success caches the master password")
}

func TestObtainInteractiveLoginPromptsForEmail(t *testing.T) {
	provider := &fakeProvider{
		status:     bitwarden.StatusUnauthenticated,
		loginToken: "login-token",
	}
	store := newFakeStore()
	p := &scriptedPrompt{passwords: []string{"pw"}, texts: []string{"", "user@example.com"}}
	m := newTestManager(t, provider, store, p)

	token, err := m.Obtain(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "login-token", token)
	assert.Equal(t, envfile.DefaultServer, provider.configuredServer,
		"empty server answer keeps the default")
	assert.Equal(t, "user@example.com", m.env.Email(),
		"a freshly entered email is persisted")
}

func TestObtainInteractiveLoginCustomServer(t *testing.T) {
	provider := &fakeProvider{
		status:     bitwarden.StatusUnauthenticated,
		loginToken: "tok",
	}
	p := &scriptedPrompt{
		passwords: []string{"pw"},
		texts:     []string{"https://vault.example.com", "user@example.com"},
	}
	m := newTestManager(t, provider, newFakeStore(), p)

	_, err := m.Obtain(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "https://vault.example.com", provider.configuredServer)
	assert.Equal(t, "https://vault.example.com", m.env.Server())
}

func TestObtainRetryCanCorrectStoredEmail(t *testing.T) {
	provider := &fakeProvider{
		status:     bitwarden.StatusUnauthenticated,
		loginToken: "tok",
		wantEmail:  "right@example.com",
	}
	p := &scriptedPrompt{
		passwords: []string{"pw", "pw"},
		// Attempt 1 keeps the stored (wrong) email; attempt 2 fixes it.
		texts: []string{"", "", "", "right@example.com"},
	}
	m := newTestManager(t, provider, newFakeStore(), p)
	m.env.Set(envfile.KeyEmail, "wrong@example.com")

	token, err := m.Obtain(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
	assert.Equal(t, "right@example.com", m.env.Email(),
		"corrected email is persisted")
	require.Len(t, p.messages, 2)
	assert.Contains(t, p.messages[1], "Not logged in. Check email.",
		"the retry prompt carries the classified failure")
}

func TestObtainRetriesWithAttemptsLeftMessage(t *testing.T) {
	provider := &fakeProvider{
		status:       bitwarden.StatusLocked,
		unlockToken:  "tok",
		wantPassword: "right",
	}
	p := &scriptedPrompt{passwords: []string{"wrong", "right"}}
	m := newTestManager(t, provider, newFakeStore(), p)

	token, err := m.Obtain(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
	require.Len(t, p.messages, 2)
	assert.True(t, strings.HasPrefix(p.messages[1], "Wrong password 2 attempt(s) left."),
		"retry message was %q", p.messages[1])
}

func TestObtainExhaustsAttempts(t *testing.T) {
	provider := &fakeProvider{
		status:       bitwarden.StatusLocked,
		wantPassword: "right",
	}
	p := &scriptedPrompt{passwords: []string{"a", "b", "c"}}
	m := newTestManager(t, provider, newFakeStore(), p)

	_, err := m.Obtain(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, provider.unlockCalls)
}

func TestObtainCancelled(t *testing.T) {
	provider := &fakeProvider{status: bitwarden.StatusLocked}
	m := newTestManager(t, provider, newFakeStore(), &scriptedPrompt{})

	_, err := m.Obtain(context.Background(), true)
	assert.ErrorIs(t, err, ErrCancelled)
}
