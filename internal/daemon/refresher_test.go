package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/forest6511/bwcached/internal/bitwarden"
	"github.com/forest6511/bwcached/internal/cache"
)

type fakeRefreshProvider struct {
	unlockErr error
	syncErr   error
	items     []bitwarden.Item
	listErr   error

	mu          sync.Mutex
	unlockCalls int
	syncCalls   int
}

func (f *fakeRefreshProvider) Unlock(ctx context.Context, password string) (string, error) {
	f.mu.Lock()
	f.unlockCalls++
	f.mu.Unlock()
	if f.unlockErr != nil {
		return "", f.unlockErr
	}
	return "fresh-token", nil
}

func (f *fakeRefreshProvider) Sync(ctx context.Context, session string) error {
	f.mu.Lock()
	f.syncCalls++
	f.mu.Unlock()
	return f.syncErr
}

func (f *fakeRefreshProvider) unlocks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unlockCalls
}

func (f *fakeRefreshProvider) ListItems(ctx context.Context, session string) ([]bitwarden.Item, error) {
	return f.items, f.listErr
}

type fakeSecretReader struct {
	secrets map[string]string
	err     error
}

func (f *fakeSecretReader) Get(ctx context.Context, service string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.secrets[service], nil
}

func seededCache() *cache.Cache {
	c := cache.New()
	c.Replace(cache.Vault{"old": {"password": "stale"}})
	return c
}

func TestTickReplacesSnapshot(t *testing.T) {
	c := seededCache()
	provider := &fakeRefreshProvider{items: []bitwarden.Item{{Name: "new", Notes: "n"}}}
	store := &fakeSecretReader{secrets: map[string]string{"bw-secrets-master": "hunter2"}}

	r := NewRefresher(c, provider, store, time.Hour, nil, zap.NewNop())
	r.tick(context.Background())

	assert.Equal(t, []string{"new"}, c.Names())
	assert.Equal(t, 1, provider.unlocks())
	assert.Equal(t, 1, provider.syncCalls)
}

func TestTickSkipsWithoutMasterPassword(t *testing.T) {
	c := seededCache()
	provider := &fakeRefreshProvider{items: []bitwarden.Item{{Name: "new", Notes: "n"}}}
	store := &fakeSecretReader{secrets: map[string]string{}}

	r := NewRefresher(c, provider, store, time.Hour, nil, zap.NewNop())
	r.tick(context.Background())

	assert.Equal(t, []string{"old"}, c.Names())
	assert.Zero(t, provider.unlocks(), "no unlock attempt without a password")
}

func TestTickUnlockFailureKeepsSnapshot(t *testing.T) {
	c := seededCache()
	provider := &fakeRefreshProvider{unlockErr: errors.New("wrong password")}
	store := &fakeSecretReader{secrets: map[string]string{"bw-secrets-master": "stale"}}

	r := NewRefresher(c, provider, store, time.Hour, nil, zap.NewNop())
	r.tick(context.Background())

	assert.Equal(t, []string{"old"}, c.Names())
}

func TestTickListFailureKeepsSnapshot(t *testing.T) {
	c := seededCache()
	provider := &fakeRefreshProvider{listErr: errors.New("bw exploded")}
	store := &fakeSecretReader{secrets: map[string]string{"bw-secrets-master": "hunter2"}}

	r := NewRefresher(c, provider, store, time.Hour, nil, zap.NewNop())
	r.tick(context.Background())

	assert.Equal(t, []string{"old"}, c.Names())
}

func TestTickSyncFailureStillReloads(t *testing.T) {
	c := seededCache()
	provider := &fakeRefreshProvider{
		syncErr: errors.New("server unreachable"),
		items:   []bitwarden.Item{{Name: "local", Notes: "n"}},
	}
	store := &fakeSecretReader{secrets: map[string]string{"bw-secrets-master": "hunter2"}}

	r := NewRefresher(c, provider, store, time.Hour, nil, zap.NewNop())
	r.tick(context.Background())

	assert.Equal(t, []string{"local"}, c.Names(),
		"sync is best-effort; local vault state still reloads")
}

func TestStartSchedules(t *testing.T) {
	c := seededCache()
	provider := &fakeRefreshProvider{items: []bitwarden.Item{{Name: "new", Notes: "n"}}}
	store := &fakeSecretReader{secrets: map[string]string{"bw-secrets-master": "hunter2"}}

	r := NewRefresher(c, provider, store, 50*time.Millisecond, nil, zap.NewNop())
	assert.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if provider.unlocks() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("refresh never fired")
}
