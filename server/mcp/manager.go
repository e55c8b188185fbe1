// Package mcp is the protocol core: it owns the method registry fed by
// capabilities, runs the middleware chain, and hands each inbound message to
// its handler with a fully populated RequestContext.
package mcp

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server/session"
	"github.com/mcpwire/mcpwire/shared"
	"github.com/mcpwire/mcpwire/shared/schema"
)

// Handler processes one message. For requests the returned value becomes the
// JSON-RPC result; for notifications it is discarded.
type Handler func(rc *RequestContext) (interface{}, error)

// Middleware wraps dispatch. It may short-circuit by returning without
// calling next, or decorate the context before and after.
type Middleware func(rc *RequestContext, next func() error) error

// Capability contributes method handlers to the dispatcher.
type Capability interface {
	GetHandlers() map[string]Handler
}

// ServerCapability additionally advertises itself in the initialize result.
type ServerCapability interface {
	Capability
	SetCapabilities(caps *schema.ServerCapabilities)
}

// Broadcaster fans a notification out to every connected session stream. The
// transport installs itself here when it binds the manager.
type Broadcaster interface {
	Broadcast(method string, params interface{})
}

// Manager dispatches inbound JSON-RPC messages to capability handlers.
type Manager struct {
	logger     *zap.Logger
	serverInfo schema.Implementation

	mu           sync.RWMutex
	handlers     map[string]Handler
	capabilities []Capability
	middlewares  []Middleware
	validators   []shared.MessageValidator
	broadcaster  Broadcaster
	store        session.Store

	instructions   string
	requestTimeout time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithInstructions sets the optional instructions string returned from
// initialize.
func WithInstructions(instructions string) ManagerOption {
	return func(m *Manager) { m.instructions = instructions }
}

// WithRequestTimeout bounds server-to-client requests (elicitation,
// sampling) issued through RequestContext.
func WithRequestTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.requestTimeout = d
		}
	}
}

// NewManager creates the dispatcher for a server identified by serverInfo.
func NewManager(logger *zap.Logger, serverInfo schema.Implementation, options ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger:         logger.Named("mcp"),
		serverInfo:     serverInfo,
		handlers:       make(map[string]Handler),
		requestTimeout: 30 * time.Second,
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// Logger returns the manager's logger for components that derive from it.
func (m *Manager) Logger() *zap.Logger { return m.logger }

// ServerInfo returns the implementation identity sent in initialize results.
func (m *Manager) ServerInfo() schema.Implementation { return m.serverInfo }

// Instructions returns the optional initialize instructions string.
func (m *Manager) Instructions() string { return m.instructions }

// AddCapability registers capabilities and merges their handler maps. A
// method registered twice keeps the first registration.
func (m *Manager) AddCapability(capabilities ...Capability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, capability := range capabilities {
		m.capabilities = append(m.capabilities, capability)
		for method, handler := range capability.GetHandlers() {
			if _, exists := m.handlers[method]; exists {
				m.logger.Warn("Duplicate handler registration ignored", zap.String("method", method))
				continue
			}
			m.handlers[method] = handler
		}
	}
}

// Use appends middleware to the chain. Middleware runs in registration order
// around every dispatched message.
func (m *Manager) Use(middlewares ...Middleware) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.middlewares = append(m.middlewares, middlewares...)
}

// AddValidator installs message validators that screen every inbound message
// before dispatch.
func (m *Manager) AddValidator(validators ...shared.MessageValidator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validators = append(m.validators, validators...)
}

// SetBroadcaster installs the transport's broadcast fan-out.
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcaster = b
}

// Broadcast fans a notification out through the bound transport. It is a
// no-op until a transport binds.
func (m *Manager) Broadcast(method string, params interface{}) {
	m.mu.RLock()
	b := m.broadcaster
	m.mu.RUnlock()
	if b != nil {
		b.Broadcast(method, params)
	}
}

// SetSessionStore hands the manager the transport's session store so
// handlers like logging/setLevel can update session state.
func (m *Manager) SetSessionStore(store session.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = store
}

// SessionStore returns the bound session store, nil in stateless mode.
func (m *Manager) SessionStore() session.Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store
}

// ServerCapabilities assembles the capability advertisement from every
// registered ServerCapability.
func (m *Manager) ServerCapabilities() schema.ServerCapabilities {
	m.mu.RLock()
	defer m.mu.RUnlock()
	caps := schema.ServerCapabilities{}
	for _, capability := range m.capabilities {
		if sc, ok := capability.(ServerCapability); ok {
			sc.SetCapabilities(&caps)
		}
	}
	return caps
}

// Dispatch runs one inbound request or notification through validators, the
// middleware chain, and its handler. For requests it returns the result or a
// JSON-RPC error; for notifications both return values are always nil and
// failures are only logged.
func (m *Manager) Dispatch(rc *RequestContext) (interface{}, *shared.JSONRPCError) {
	msg := rc.Message
	if msg == nil || msg.Method == nil {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidRequest, "message has no method")
	}
	method := *msg.Method
	logger := rc.Logger.With(zap.String("method", method))
	rc.requestTimeout = m.requestTimeout

	m.mu.RLock()
	validators := m.validators
	middlewares := m.middlewares
	handler, found := m.handlers[method]
	m.mu.RUnlock()

	for _, v := range validators {
		if err := v.Validate(msg); err != nil {
			if msg.IsNotification() {
				logger.Warn("Notification rejected by validator", zap.Error(err))
				return nil, nil
			}
			return nil, shared.Errorf(shared.JSONRPCErrorInvalidRequest, "%v", err)
		}
	}

	if !found {
		if msg.IsNotification() {
			logger.Debug("No handler for notification, dropping")
			return nil, nil
		}
		return nil, shared.Errorf(shared.JSONRPCErrorMethodNotFound, "method not found: %s", method)
	}

	tail := func() error {
		result, err := handler(rc)
		if err != nil {
			return err
		}
		rc.respond(result)
		return nil
	}

	chain := tail
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		next := chain
		chain = func() error { return mw(rc, next) }
	}

	if err := chain(); err != nil {
		if msg.IsNotification() {
			logger.Error("Notification handler failed", zap.Error(err))
			return nil, nil
		}
		return nil, shared.NewJSONRPCError(err)
	}

	if msg.IsNotification() {
		return nil, nil
	}
	if !rc.responded {
		logger.Error("Handler chain completed without producing a response")
		return nil, shared.Errorf(shared.JSONRPCErrorInternal, "No response generated")
	}
	return rc.result, nil
}
