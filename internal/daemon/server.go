// Package daemon runs the unix socket server and the periodic vault
// refresher. The protocol is one request line in, one response line out,
// one connection per request.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/forest6511/bwcached/internal/audit"
	"github.com/forest6511/bwcached/internal/bitwarden"
	"github.com/forest6511/bwcached/internal/cache"
)

// ErrAlreadyRunning reports a live daemon already bound to the socket.
var ErrAlreadyRunning = errors.New("daemon: already running")

// defaultConnTimeout bounds the request read and the response write
// individually. Handling in between (notably RELOAD's provider calls) runs
// under the provider's own timeout and must not be cut short here.
const defaultConnTimeout = 10 * time.Second

// VaultLoader lists decrypted items for a session.
type VaultLoader interface {
	ListItems(ctx context.Context, session string) ([]bitwarden.Item, error)
}

// SessionSource yields a session token without user interaction. RELOAD
// runs inside the daemon, where nobody is present to answer a prompt.
type SessionSource interface {
	Session(ctx context.Context) (string, error)
}

// Server answers protocol requests from the in-memory cache.
type Server struct {
	socketPath string
	cache      *cache.Cache
	loader     VaultLoader
	sessions   SessionSource
	audit      *audit.Logger
	log        *zap.Logger

	connTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
}

// NewServer wires a Server. A nil logger falls back to a no-op logger.
func NewServer(socketPath string, c *cache.Cache, loader VaultLoader, sessions SessionSource, auditLog *audit.Logger, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		socketPath:  socketPath,
		cache:       c,
		loader:      loader,
		sessions:    sessions,
		audit:       auditLog,
		log:         log,
		connTimeout: defaultConnTimeout,
	}
}

// Serve binds the socket and accepts connections until ctx is cancelled.
// A stale socket left by a crashed daemon is removed; a socket with a
// live daemon behind it aborts with ErrAlreadyRunning.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.claimSocket(); err != nil {
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("daemon: listen %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("daemon: chmod socket: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.log.Info("listening", zap.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Warn("accept failed", zap.Error(err))
			// Back off so a persistently failing listener cannot spin
			// the log at full speed.
			time.Sleep(100 * time.Millisecond)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}

	wg.Wait()
	os.Remove(s.socketPath)
	return nil
}

// claimSocket removes a leftover socket file, but only after probing that
// nothing is listening on it.
func (s *Server) claimSocket() error {
	if _, err := os.Stat(s.socketPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("daemon: stat socket: %w", err)
	}

	conn, err := net.DialTimeout("unix", s.socketPath, time.Second)
	if err == nil {
		conn.Close()
		return ErrAlreadyRunning
	}

	s.log.Info("removing stale socket", zap.String("socket", s.socketPath))
	if err := os.Remove(s.socketPath); err != nil {
		return fmt.Errorf("daemon: remove stale socket: %w", err)
	}
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("request handler panicked", zap.Any("panic", r))
			s.writeResponse(conn, fmt.Sprintf("ERROR internal error: %v", r))
		}
	}()

	// Only the read is bounded here. A RELOAD can legitimately spend the
	// provider timeout computing its response; the write gets its own
	// fresh deadline afterwards.
	conn.SetReadDeadline(time.Now().Add(s.connTimeout))
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}
	s.writeResponse(conn, s.handle(ctx, parseRequest(scanner.Text())))
}

// writeResponse sends the single response line under a fresh deadline. The
// client must always see one OK/ERROR line, however long handling took.
func (s *Server) writeResponse(conn net.Conn, response string) {
	conn.SetWriteDeadline(time.Now().Add(s.connTimeout))
	if _, err := fmt.Fprintln(conn, response); err != nil {
		s.log.Warn("failed to write response", zap.Error(err))
	}
}

// handle produces the single response line for one request.
func (s *Server) handle(ctx context.Context, req request) string {
	switch req := req.(type) {
	case pingRequest:
		return "OK pong"

	case getRequest:
		value, err := s.cache.Lookup(req.Item, req.Field)
		if err != nil {
			return "ERROR " + err.Error()
		}
		return "OK " + value

	case suggestRequest:
		suggestions, err := s.cache.Suggest(req.Item)
		if err != nil {
			return "ERROR " + err.Error()
		}
		payload, err := json.Marshal(suggestions)
		if err != nil {
			return "ERROR internal error: " + err.Error()
		}
		return "OK " + string(payload)

	case listRequest:
		payload, err := json.Marshal(s.cache.Names())
		if err != nil {
			return "ERROR internal error: " + err.Error()
		}
		return "OK " + string(payload)

	case reloadRequest:
		n, err := s.Reload(ctx)
		if err != nil {
			return "ERROR reload failed: " + err.Error()
		}
		return fmt.Sprintf("OK reloaded %d items", n)

	case badRequest:
		return "ERROR " + req.Reply

	default:
		return "ERROR internal error: unhandled request"
	}
}

// Reload fetches the vault with a non-interactive session and swaps the
// cache snapshot. The old snapshot stays in place on any failure.
func (s *Server) Reload(ctx context.Context) (int, error) {
	session, err := s.sessions.Session(ctx)
	if err != nil {
		s.auditLog(audit.OpReload, false, err.Error())
		return 0, err
	}
	items, err := s.loader.ListItems(ctx, session)
	if err != nil {
		s.auditLog(audit.OpReload, false, err.Error())
		return 0, err
	}
	vault := cache.Build(items)
	s.cache.Replace(vault)

	s.auditLog(audit.OpReload, true, fmt.Sprintf("%d items", len(vault)))
	s.log.Info("vault reloaded", zap.Int("items", len(vault)))
	return len(vault), nil
}

func (s *Server) auditLog(op string, success bool, detail string) {
	if err := s.audit.Log(op, success, detail); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
}
