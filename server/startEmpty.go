package server

import (
	"context"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server/config"
	"github.com/mcpwire/mcpwire/server/mcp/capability"
)

// StartEmpty starts a server with every capability enabled but nothing
// registered, and returns the capability registries so the caller can add
// tools, resources and prompts at runtime. Registrations made after startup
// emit the matching list_changed notifications.
func StartEmpty(ctx context.Context, logger *zap.Logger, cfg *config.Config, options ...ServerOption) (
	*capability.ToolsCapability,
	*capability.ResourcesCapability,
	*capability.PromptsCapability,
	<-chan error,
	error,
) {
	builder, err := build(ctx, logger, cfg, options...)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	toolsCap := builder.EnsureToolsCapability()
	resourcesCap := builder.EnsureResourcesCapability()
	promptsCap := builder.EnsurePromptsCapability()

	errChan, err := builder.start()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return toolsCap, resourcesCap, promptsCap, errChan, nil
}
