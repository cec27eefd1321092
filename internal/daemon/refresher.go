package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/forest6511/bwcached/internal/audit"
	"github.com/forest6511/bwcached/internal/bitwarden"
	"github.com/forest6511/bwcached/internal/cache"
	"github.com/forest6511/bwcached/internal/session"
)

// RefreshProvider is the provider surface the refresher needs.
type RefreshProvider interface {
	Unlock(ctx context.Context, password string) (string, error)
	Sync(ctx context.Context, session string) error
	ListItems(ctx context.Context, session string) ([]bitwarden.Item, error)
}

// SecretReader reads cached secrets from the keychain.
type SecretReader interface {
	Get(ctx context.Context, service string) (string, error)
}

// Refresher re-pulls the vault on a fixed schedule so the cache tracks
// server-side changes without user action.
type Refresher struct {
	cache    *cache.Cache
	provider RefreshProvider
	store    SecretReader
	interval time.Duration
	audit    *audit.Logger
	log      *zap.Logger

	cron *cron.Cron
}

// NewRefresher wires a Refresher. A nil logger falls back to a no-op logger.
func NewRefresher(c *cache.Cache, provider RefreshProvider, store SecretReader, interval time.Duration, auditLog *audit.Logger, log *zap.Logger) *Refresher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Refresher{
		cache:    c,
		provider: provider,
		store:    store,
		interval: interval,
		audit:    auditLog,
		log:      log,
	}
}

// Start schedules the periodic refresh. The first tick fires one full
// interval after Start; the caller is expected to have loaded the vault
// already.
func (r *Refresher) Start(ctx context.Context) error {
	r.cron = cron.New()
	spec := fmt.Sprintf("@every %s", r.interval)
	if _, err := r.cron.AddFunc(spec, func() { r.tick(ctx) }); err != nil {
		return fmt.Errorf("daemon: schedule refresh: %w", err)
	}
	r.cron.Start()
	r.log.Info("refresh scheduled", zap.Duration("interval", r.interval))
	return nil
}

// Stop halts the schedule and waits for a running tick to finish.
func (r *Refresher) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// tick performs one refresh. Every step must succeed before the cache is
// touched; a half-failed refresh leaves the previous snapshot serving.
func (r *Refresher) tick(ctx context.Context) {
	password, err := r.store.Get(ctx, session.KeyMaster)
	if err != nil {
		r.log.Warn("refresh skipped: keychain read failed", zap.Error(err))
		r.auditLog(false, "keychain read failed")
		return
	}
	if password == "" {
		r.log.Info("refresh skipped: no cached master password")
		r.auditLog(false, "no cached master password")
		return
	}

	token, err := r.provider.Unlock(ctx, password)
	if err != nil {
		r.log.Warn("refresh failed: unlock rejected", zap.Error(err))
		r.auditLog(false, "unlock rejected")
		return
	}

	// Sync is best-effort: if the server is unreachable the local vault
	// state is still worth re-reading.
	if err := r.provider.Sync(ctx, token); err != nil {
		r.log.Warn("refresh: sync failed, reloading local state", zap.Error(err))
	}

	items, err := r.provider.ListItems(ctx, token)
	if err != nil {
		r.log.Warn("refresh failed: list items", zap.Error(err))
		r.auditLog(false, "list items failed")
		return
	}

	vault := cache.Build(items)
	r.cache.Replace(vault)
	r.log.Info("vault refreshed", zap.Int("items", len(vault)))
	r.auditLog(true, fmt.Sprintf("%d items", len(vault)))
}

func (r *Refresher) auditLog(success bool, detail string) {
	if err := r.audit.Log(audit.OpRefresh, success, detail); err != nil {
		r.log.Warn("audit write failed", zap.Error(err))
	}
}
