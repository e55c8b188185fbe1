package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server/config"
	"github.com/mcpwire/mcpwire/server/mcp"
	"github.com/mcpwire/mcpwire/server/mcp/capability"
	"github.com/mcpwire/mcpwire/server/transport"
	"github.com/mcpwire/mcpwire/shared"
)

// ServerBuilder accumulates the server's configuration while options are
// applied: capabilities are created lazily so the advertised capability set
// reflects exactly what was registered.
type ServerBuilder struct {
	ctx        context.Context
	logger     *zap.Logger
	cfg        *config.Config
	listenAddr string
	manager    *mcp.Manager
	mux        *http.ServeMux

	capabilities     []mcp.Capability
	middlewares      []mcp.Middleware
	validators       []shared.MessageValidator
	transportOptions []transport.TransportOption

	baseCap      *capability.BaseCapability
	toolsCap     *capability.ToolsCapability
	resourcesCap *capability.ResourcesCapability
	promptsCap   *capability.PromptsCapability
}

// EnsureBaseCapability creates the base capability (initialize, ping,
// logging) if it does not exist yet.
func (b *ServerBuilder) EnsureBaseCapability() *capability.BaseCapability {
	if b.baseCap == nil {
		b.logger.Debug("Initializing BaseCapability")
		b.baseCap = capability.NewBase(b.logger, b.manager)
		b.capabilities = append(b.capabilities, b.baseCap)
	}
	return b.baseCap
}

// EnsureToolsCapability creates the tools capability if it does not exist yet.
func (b *ServerBuilder) EnsureToolsCapability() *capability.ToolsCapability {
	b.EnsureBaseCapability()
	if b.toolsCap == nil {
		b.logger.Debug("Initializing ToolsCapability")
		b.toolsCap = capability.NewToolsCapability(b.manager, b.logger)
		b.capabilities = append(b.capabilities, b.toolsCap)
	}
	return b.toolsCap
}

// EnsurePromptsCapability creates the prompts capability if it does not
// exist yet.
func (b *ServerBuilder) EnsurePromptsCapability() *capability.PromptsCapability {
	b.EnsureBaseCapability()
	if b.promptsCap == nil {
		b.logger.Debug("Initializing PromptsCapability")
		b.promptsCap = capability.NewPromptsCapability(b.manager, b.logger)
		b.capabilities = append(b.capabilities, b.promptsCap)
	}
	return b.promptsCap
}

// EnsureResourcesCapability creates the resources capability if it does not
// exist yet.
func (b *ServerBuilder) EnsureResourcesCapability() *capability.ResourcesCapability {
	b.EnsureBaseCapability()
	if b.resourcesCap == nil {
		b.logger.Debug("Initializing ResourcesCapability")
		b.resourcesCap = capability.NewResourcesCapability(b.manager, b.logger)
		b.capabilities = append(b.capabilities, b.resourcesCap)
	}
	return b.resourcesCap
}

// markBound tells every registry-style capability that the server is live,
// so later registrations emit list_changed notifications.
func (b *ServerBuilder) markBound() {
	if b.toolsCap != nil {
		b.toolsCap.MarkBound()
	}
	if b.promptsCap != nil {
		b.promptsCap.MarkBound()
	}
	if b.resourcesCap != nil {
		b.resourcesCap.MarkBound()
	}
}

// ServerOption configures the ServerBuilder.
type ServerOption func(*ServerBuilder) error
