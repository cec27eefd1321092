// Package guard implements the restart storm protection: a persisted
// failure counter that, once it reaches its limit, stops the launchd job
// and alerts the user exactly once instead of letting launchd respawn a
// broken daemon forever.
package guard

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/forest6511/bwcached/internal/audit"
)

// Supervisor stops the daemon's supervising job.
type Supervisor interface {
	Stop(ctx context.Context) error
}

// Alerter notifies the user that the guard tripped.
type Alerter interface {
	Alert(ctx context.Context, message string) error
}

// Guard tracks consecutive startup failures across process restarts.
type Guard struct {
	path       string
	max        int
	supervisor Supervisor
	alerter    Alerter
	audit      *audit.Logger
	log        *zap.Logger
}

// New returns a Guard persisting its counter at path and tripping at max.
func New(path string, max int, supervisor Supervisor, alerter Alerter, auditLog *audit.Logger, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{
		path:       path,
		max:        max,
		supervisor: supervisor,
		alerter:    alerter,
		audit:      auditLog,
		log:        log,
	}
}

// Count returns the persisted failure count. A missing or unreadable file
// counts as zero; the guard must never block startup on its own state.
func (g *Guard) Count() int {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Failure records one startup failure. When the count reaches the limit
// the guard stops the supervising job, alerts the user once, and clears
// the counter so a later manual start begins fresh.
func (g *Guard) Failure(ctx context.Context) error {
	count := g.Count() + 1
	if err := os.WriteFile(g.path, []byte(strconv.Itoa(count)), 0o600); err != nil {
		return fmt.Errorf("guard: persist count: %w", err)
	}
	g.log.Warn("startup failure recorded",
		zap.Int("count", count), zap.Int("max", g.max))

	if count < g.max {
		return nil
	}
	return g.trip(ctx, count)
}

// trip stops the supervisor and alerts. Bookkeeping is committed before
// the stop call: once launchctl kills this process nothing after it runs.
func (g *Guard) trip(ctx context.Context, count int) error {
	if err := g.audit.Log(audit.OpGuardTrip, true, fmt.Sprintf("%d consecutive failures", count)); err != nil {
		g.log.Warn("audit write failed", zap.Error(err))
	}
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		g.log.Warn("failed to clear failure counter", zap.Error(err))
	}
	if g.alerter != nil {
		msg := fmt.Sprintf("bw-secrets stopped after %d failed start attempts.\n\nTo restart, run:\n  bwcached start", count)
		if err := g.alerter.Alert(ctx, msg); err != nil {
			g.log.Warn("alert failed", zap.Error(err))
		}
	}
	if g.supervisor != nil {
		if err := g.supervisor.Stop(ctx); err != nil {
			return fmt.Errorf("guard: stop supervisor: %w", err)
		}
	}
	return nil
}

// Reset clears the failure counter after a successful start.
func (g *Guard) Reset() error {
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("guard: reset: %w", err)
	}
	return nil
}
