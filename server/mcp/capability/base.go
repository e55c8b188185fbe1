// Package capability implements the built-in MCP method families: the
// initialize handshake and lifecycle notifications (base), tools, prompts,
// and resources. Each capability hands its method map to the dispatcher.
package capability

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server/mcp"
	"github.com/mcpwire/mcpwire/server/session"
	"github.com/mcpwire/mcpwire/shared"
	"github.com/mcpwire/mcpwire/shared/schema"
)

var _ mcp.ServerCapability = (*BaseCapability)(nil)

// BaseCapability provides the protocol handshake and lifecycle methods:
// initialize, ping, logging/setLevel and the standard notifications.
type BaseCapability struct {
	logger   *zap.Logger
	manager  *mcp.Manager
	handlers map[string]mcp.Handler
}

// NewBase creates the base capability for a manager.
func NewBase(logger *zap.Logger, manager *mcp.Manager) *BaseCapability {
	bc := &BaseCapability{
		logger:  logger.Named("capability.base"),
		manager: manager,
	}
	bc.handlers = map[string]mcp.Handler{
		"initialize":                              bc.handleInitialize,
		"ping":                                    bc.handlePing,
		"logging/setLevel":                        bc.handleSetLevel,
		schema.MethodNotificationInitialized:      bc.handleNotificationInitialized,
		schema.MethodNotificationCancelled:        bc.handleNotificationCancelled,
		schema.MethodNotificationProgress:         bc.handleNotificationProgress,
		schema.MethodNotificationRootsListChanged: bc.handleNotificationRootsChanged,
	}
	return bc
}

func (bc *BaseCapability) GetHandlers() map[string]mcp.Handler {
	return bc.handlers
}

// SetCapabilities advertises the logging capability (logging/setLevel plus
// notifications/message).
func (bc *BaseCapability) SetCapabilities(caps *schema.ServerCapabilities) {
	caps.Logging = &struct{}{}
}

func (bc *BaseCapability) handleInitialize(rc *mcp.RequestContext) (interface{}, error) {
	logger := bc.logger.With(zap.String("method", "initialize"))

	if rc.Message.Params == nil {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidParams, "missing params")
	}
	var params schema.InitializeRequestParams
	if err := json.Unmarshal(*rc.Message.Params, &params); err != nil {
		logger.Error("Failed to unmarshal initialize params", zap.Error(err))
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidParams, "invalid parameters: %v", err)
	}

	negotiated := schema.NegotiateVersion(params.ProtocolVersion)
	logger.Info("Negotiated protocol version",
		zap.String("requestedVersion", params.ProtocolVersion),
		zap.String("negotiatedVersion", negotiated),
		zap.String("clientName", params.ClientInfo.Name),
		zap.String("clientVersion", params.ClientInfo.Version),
	)

	// The transport turns this into a session (and the MCP-Session-Id
	// header) in stateful mode.
	rc.NegotiatedMeta = &session.Meta{
		ProtocolVersion:    negotiated,
		ClientInfo:         params.ClientInfo,
		ClientCapabilities: params.Capabilities,
		CreatedAt:          time.Now(),
	}

	return &schema.InitializeResult{
		ProtocolVersion: negotiated,
		Capabilities:    bc.manager.ServerCapabilities(),
		ServerInfo:      bc.manager.ServerInfo(),
		Instructions:    bc.manager.Instructions(),
	}, nil
}

func (bc *BaseCapability) handlePing(rc *mcp.RequestContext) (interface{}, error) {
	return map[string]interface{}{}, nil
}

func (bc *BaseCapability) handleSetLevel(rc *mcp.RequestContext) (interface{}, error) {
	if rc.Message.Params == nil {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidParams, "missing params")
	}
	var params schema.SetLevelRequestParams
	if err := json.Unmarshal(*rc.Message.Params, &params); err != nil {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidParams, "invalid parameters: %v", err)
	}
	if !schema.IsValidLoggingLevel(params.Level) {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidParams, "unknown logging level: %q", params.Level)
	}

	store := bc.manager.SessionStore()
	if store == nil || rc.SessionID == "" {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidRequest, "logging/setLevel requires a session")
	}
	if err := store.SetLogLevel(rc.Ctx, rc.SessionID, params.Level); err != nil {
		return nil, err
	}
	bc.logger.Debug("Session log level updated",
		zap.String("sessionID", rc.SessionID),
		zap.String("level", string(params.Level)),
	)
	return map[string]interface{}{}, nil
}

func (bc *BaseCapability) handleNotificationInitialized(rc *mcp.RequestContext) (interface{}, error) {
	bc.logger.Debug("Client completed initialization", zap.String("sessionID", rc.SessionID))
	return nil, nil
}

func (bc *BaseCapability) handleNotificationCancelled(rc *mcp.RequestContext) (interface{}, error) {
	var params schema.CancelledNotificationParams
	if rc.Message.Params != nil {
		if err := json.Unmarshal(*rc.Message.Params, &params); err != nil {
			bc.logger.Warn("Malformed cancelled notification", zap.Error(err))
			return nil, nil
		}
	}
	bc.logger.Debug("Client cancelled request",
		zap.String("sessionID", rc.SessionID),
		zap.String("requestID", params.RequestID.String()),
		zap.String("reason", params.Reason),
	)
	return nil, nil
}

func (bc *BaseCapability) handleNotificationProgress(rc *mcp.RequestContext) (interface{}, error) {
	// Client-side progress updates are informational only.
	bc.logger.Debug("Client progress notification", zap.String("sessionID", rc.SessionID))
	return nil, nil
}

func (bc *BaseCapability) handleNotificationRootsChanged(rc *mcp.RequestContext) (interface{}, error) {
	bc.logger.Debug("Client roots changed", zap.String("sessionID", rc.SessionID))
	return nil, nil
}
