// Package transport implements the streaming HTTP transport: one endpoint
// serving POST (JSON-RPC in, JSON or per-request SSE out), GET (the
// session's resumable SSE stream), and DELETE (session teardown).
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server/config"
	"github.com/mcpwire/mcpwire/server/mcp"
	"github.com/mcpwire/mcpwire/server/pending"
	"github.com/mcpwire/mcpwire/server/session"
)

const (
	// MCPSessionHeader carries the session id on every stateful exchange.
	MCPSessionHeader = "Mcp-Session-Id"
	// MCPProtocolVersionHeader pins the negotiated version on 2025-06-18.
	MCPProtocolVersionHeader = "MCP-Protocol-Version"
	// DefaultEndpointPath is the single MCP endpoint.
	DefaultEndpointPath = "/mcp"

	contentTypeJSON = "application/json"
	contentTypeSSE  = "text/event-stream"
)

// Transport serves the MCP streaming HTTP endpoint and owns the per-session
// and per-request SSE writers.
type Transport struct {
	manager *mcp.Manager
	logger  *zap.Logger
	config  *config.Config

	store   session.Store
	pending pending.Adapter
	writers *writerRegistry

	authManager AuthenticationManager

	endpointPath      string
	stateless         bool
	allowedHosts      []string
	allowedOrigins    []string
	sessionTimeout    time.Duration
	cleanupInterval   time.Duration
	keepAliveInterval time.Duration

	done chan struct{}
}

// TransportOption configures the Transport.
type TransportOption func(*Transport) error

// WithStateless disables sessions entirely: initialize allocates nothing,
// GET and DELETE answer 405.
func WithStateless() TransportOption {
	return func(t *Transport) error {
		t.stateless = true
		return nil
	}
}

// WithSessionStore replaces the default in-memory session store.
func WithSessionStore(store session.Store) TransportOption {
	return func(t *Transport) error {
		if store == nil {
			return errors.New("session store cannot be nil")
		}
		t.store = store
		return nil
	}
}

// WithPendingAdapter replaces the default in-memory pending-request adapter.
func WithPendingAdapter(adapter pending.Adapter) TransportOption {
	return func(t *Transport) error {
		if adapter == nil {
			return errors.New("pending adapter cannot be nil")
		}
		t.pending = adapter
		return nil
	}
}

// WithEndpointPath overrides the default /mcp endpoint path.
func WithEndpointPath(path string) TransportOption {
	return func(t *Transport) error {
		if path == "" || !strings.HasPrefix(path, "/") {
			return fmt.Errorf("invalid endpoint path: %q", path)
		}
		t.endpointPath = path
		return nil
	}
}

// WithAllowedHosts restricts which Host headers are accepted (403 otherwise).
func WithAllowedHosts(hosts ...string) TransportOption {
	return func(t *Transport) error {
		t.allowedHosts = append(t.allowedHosts, hosts...)
		return nil
	}
}

// WithAllowedOrigins restricts which Origin headers are accepted
// (403 otherwise). Requests without an Origin header always pass.
func WithAllowedOrigins(origins ...string) TransportOption {
	return func(t *Transport) error {
		t.allowedOrigins = append(t.allowedOrigins, origins...)
		return nil
	}
}

// WithSessionTimeout sets the idle timeout after which sessions are swept.
func WithSessionTimeout(timeout time.Duration) TransportOption {
	return func(t *Transport) error {
		if timeout <= 0 {
			return errors.New("session timeout must be positive")
		}
		t.sessionTimeout = timeout
		return nil
	}
}

// WithCleanupInterval sets how often the idle sweeper runs.
func WithCleanupInterval(interval time.Duration) TransportOption {
	return func(t *Transport) error {
		if interval <= 0 {
			return errors.New("cleanup interval must be positive")
		}
		t.cleanupInterval = interval
		return nil
	}
}

// WithAuthManager replaces the default config-backed authenticator.
func WithAuthManager(authManager AuthenticationManager) TransportOption {
	return func(t *Transport) error {
		t.authManager = authManager
		return nil
	}
}

// New creates the MCP HTTP transport and binds it to the dispatcher: the
// manager gets the session store and the broadcast fan-out.
func New(manager *mcp.Manager, logger *zap.Logger, cfg *config.Config, options ...TransportOption) (*Transport, error) {
	if manager == nil {
		return nil, errors.New("manager cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Transport{
		manager:           manager,
		logger:            logger.Named("transport"),
		config:            cfg,
		endpointPath:      DefaultEndpointPath,
		sessionTimeout:    30 * time.Minute,
		cleanupInterval:   5 * time.Minute,
		keepAliveInterval: 15 * time.Second,
		done:              make(chan struct{}),
	}
	if cfg != nil {
		t.endpointPath = cfg.EndpointPath()
		t.allowedHosts = cfg.AllowedHosts()
		t.allowedOrigins = cfg.AllowedOrigins()
		t.sessionTimeout = cfg.SessionTimeout()
		t.cleanupInterval = cfg.CleanupInterval()
		t.authManager = NewAuthenticator(cfg, logger)
	}

	for _, option := range options {
		if err := option(t); err != nil {
			return nil, fmt.Errorf("failed to apply transport option: %w", err)
		}
	}

	if t.store == nil && !t.stateless {
		t.store = session.NewMemoryStore(logger)
	}
	if t.pending == nil {
		t.pending = pending.NewMemoryAdapter(logger)
	}
	t.writers = newWriterRegistry(t.logger)

	manager.SetBroadcaster(t)
	if !t.stateless {
		manager.SetSessionStore(t.store)
		go t.startSessionCleanup()
	}

	t.logger.Info("MCP HTTP transport created",
		zap.String("path", t.endpointPath),
		zap.Bool("stateless", t.stateless),
		zap.Duration("sessionTimeout", t.sessionTimeout),
	)
	return t, nil
}

// RegisterHandlers registers the unified MCP handler with the HTTP mux.
func (t *Transport) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc(t.endpointPath, t.HandleMCP())
	t.logger.Info("Registered MCP handler", zap.String("path", t.endpointPath))
}

// HandleMCP returns the handler for the unified endpoint.
func (t *Transport) HandleMCP() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := t.logger
		logger.Debug("Received request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remoteAddr", r.RemoteAddr),
		)

		if !t.checkHostAndOrigin(w, r, logger) {
			return
		}

		switch r.Method {
		case http.MethodPost:
			t.handlePOST(w, r, logger)
		case http.MethodGet:
			t.handleGET(w, r, logger)
		case http.MethodDelete:
			t.handleDELETE(w, r, logger)
		case http.MethodOptions:
			w.Header().Set("Allow", "GET, POST, DELETE, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
		default:
			logger.Warn("Method not allowed", zap.String("method", r.Method))
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	}
}

// checkHostAndOrigin enforces the Host/Origin allow-lists, a DNS-rebinding
// guard for servers bound to localhost.
func (t *Transport) checkHostAndOrigin(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	if len(t.allowedHosts) > 0 && !matchesAllowList(r.Host, t.allowedHosts) {
		logger.Warn("Rejected request from disallowed host", zap.String("host", r.Host))
		http.Error(w, "Forbidden: host not allowed", http.StatusForbidden)
		return false
	}
	origin := r.Header.Get("Origin")
	if origin != "" && len(t.allowedOrigins) > 0 && !matchesAllowList(origin, t.allowedOrigins) {
		logger.Warn("Rejected request from disallowed origin", zap.String("origin", origin))
		http.Error(w, "Forbidden: origin not allowed", http.StatusForbidden)
		return false
	}
	return true
}

func matchesAllowList(value string, allowed []string) bool {
	for _, entry := range allowed {
		if strings.EqualFold(value, entry) {
			return true
		}
	}
	return false
}

// Shutdown closes every open SSE stream and stops the idle sweeper.
func (t *Transport) Shutdown(ctx context.Context) error {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	t.writers.CloseAll()
	return nil
}

// startSessionCleanup periodically deletes idle sessions and closes their
// streams.
func (t *Transport) startSessionCleanup() {
	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()
	t.logger.Info("Starting session cleanup routine",
		zap.Duration("interval", t.cleanupInterval),
		zap.Duration("timeout", t.sessionTimeout),
	)
	for {
		select {
		case <-t.done:
			t.logger.Info("Session cleanup routine stopped")
			return
		case <-ticker.C:
			expired, err := t.store.CleanupIdle(context.Background(), t.sessionTimeout)
			if err != nil {
				t.logger.Error("Idle session cleanup failed", zap.Error(err))
				continue
			}
			for _, id := range expired {
				t.writers.CloseSession(id)
			}
		}
	}
}

// acceptsSSE reports whether the request's Accept header admits
// text/event-stream.
func acceptsSSE(r *http.Request) bool {
	accept := strings.ToLower(r.Header.Get("Accept"))
	return strings.Contains(accept, contentTypeSSE)
}
