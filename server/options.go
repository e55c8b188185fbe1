package server

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server/mcp"
	"github.com/mcpwire/mcpwire/server/mcp/capability"
	"github.com/mcpwire/mcpwire/server/transport"
	"github.com/mcpwire/mcpwire/shared"
)

// WithTool registers an MCP tool.
func WithTool(tool *capability.Tool) ServerOption {
	return func(b *ServerBuilder) error {
		return b.EnsureToolsCapability().AddTool(tool)
	}
}

// WithPrompt registers an MCP prompt.
func WithPrompt(prompt *capability.Prompt) ServerOption {
	return func(b *ServerBuilder) error {
		return b.EnsurePromptsCapability().AddPrompt(prompt)
	}
}

// WithResource registers a static MCP resource.
func WithResource(resource *capability.Resource) ServerOption {
	return func(b *ServerBuilder) error {
		return b.EnsureResourcesCapability().AddResource(resource)
	}
}

// WithResourceTemplate registers a templated MCP resource.
func WithResourceTemplate(template *capability.Template) ServerOption {
	return func(b *ServerBuilder) error {
		return b.EnsureResourcesCapability().AddTemplate(template)
	}
}

// WithMiddleware appends dispatcher middleware, run in registration order.
func WithMiddleware(middlewares ...mcp.Middleware) ServerOption {
	return func(b *ServerBuilder) error {
		b.middlewares = append(b.middlewares, middlewares...)
		return nil
	}
}

// WithValidator appends inbound message validators to the default set.
func WithValidator(validators ...shared.MessageValidator) ServerOption {
	return func(b *ServerBuilder) error {
		b.validators = append(b.validators, validators...)
		return nil
	}
}

// WithListenAddr overrides the listen address from the config.
func WithListenAddr(addr string) ServerOption {
	return func(b *ServerBuilder) error {
		if addr != "" {
			b.listenAddr = addr
			b.logger.Info("Overriding listen address", zap.String("addr", addr))
		}
		return nil
	}
}

// WithSessionTimeout overrides the idle session timeout from the config.
func WithSessionTimeout(timeout time.Duration) ServerOption {
	return func(b *ServerBuilder) error {
		if timeout <= 0 {
			return errors.New("session timeout must be positive")
		}
		b.transportOptions = append(b.transportOptions, transport.WithSessionTimeout(timeout))
		return nil
	}
}

// WithStateless runs the transport without sessions.
func WithStateless() ServerOption {
	return func(b *ServerBuilder) error {
		b.transportOptions = append(b.transportOptions, transport.WithStateless())
		return nil
	}
}

// WithTransportOptions forwards raw transport options, for settings without
// a dedicated server option (session store, pending adapter, auth manager).
func WithTransportOptions(options ...transport.TransportOption) ServerOption {
	return func(b *ServerBuilder) error {
		b.transportOptions = append(b.transportOptions, options...)
		return nil
	}
}
