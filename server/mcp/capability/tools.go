package capability

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server/mcp"
	"github.com/mcpwire/mcpwire/shared"
	"github.com/mcpwire/mcpwire/shared/schema"
)

// ToolHandler executes one tool call. A returned error becomes an
// IsError result, not a JSON-RPC error, so clients can show it to the model.
type ToolHandler func(rc *mcp.RequestContext, arguments schema.Arguments) (*mcp.ToolResult, error)

var _ mcp.ServerCapability = (*ToolsCapability)(nil)

// ToolsCapability handles tool registration and invocation.
type ToolsCapability struct {
	manager  *mcp.Manager
	logger   *zap.Logger
	mu       sync.RWMutex
	tools    map[string]*Tool
	order    []string
	bound    bool
	handlers map[string]mcp.Handler
}

// Tool pairs the advertised definition with its handler and compiled schemas.
type Tool struct {
	Name         string
	Description  string
	InputSchema  *mcp.InputSchema
	OutputSchema *mcp.InputSchema
	Annotations  *schema.ToolAnnotations
	Handler      ToolHandler
}

func (t *Tool) wire() schema.Tool {
	out := schema.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.InputSchema.Wire(),
		Annotations: t.Annotations,
	}
	if t.OutputSchema != nil {
		out.OutputSchema = t.OutputSchema.Wire()
	}
	return out
}

// NewToolsCapability creates an empty tool registry.
func NewToolsCapability(manager *mcp.Manager, logger *zap.Logger) *ToolsCapability {
	tc := &ToolsCapability{
		manager: manager,
		logger:  logger.Named("capability.tools"),
		tools:   make(map[string]*Tool),
	}
	tc.handlers = map[string]mcp.Handler{
		"tools/list": tc.handleToolsList,
		"tools/call": tc.handleToolsCall,
	}
	return tc
}

func (tc *ToolsCapability) GetHandlers() map[string]mcp.Handler {
	return tc.handlers
}

func (tc *ToolsCapability) SetCapabilities(caps *schema.ServerCapabilities) {
	caps.Tools = &schema.Capability{ListChanged: true}
}

// MarkBound switches the registry into broadcast mode: registrations after
// this point notify connected clients via tools/list_changed.
func (tc *ToolsCapability) MarkBound() {
	tc.mu.Lock()
	tc.bound = true
	tc.mu.Unlock()
}

// AddTool registers a tool. Registration after the transport is bound
// broadcasts notifications/tools/list_changed.
func (tc *ToolsCapability) AddTool(tool *Tool) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("tool must have a name")
	}
	if tool.Handler == nil {
		return fmt.Errorf("handler cannot be nil for tool %q", tool.Name)
	}

	tc.mu.Lock()
	if _, exists := tc.tools[tool.Name]; exists {
		tc.mu.Unlock()
		return fmt.Errorf("tool %q already exists", tool.Name)
	}
	tc.tools[tool.Name] = tool
	tc.order = append(tc.order, tool.Name)
	bound := tc.bound
	tc.mu.Unlock()

	tc.logger.Info("Added tool", zap.String("name", tool.Name))
	if bound {
		tc.manager.Broadcast(schema.MethodNotificationToolsListChanged, nil)
	}
	return nil
}

// DeleteTool removes a tool by name and notifies connected clients.
func (tc *ToolsCapability) DeleteTool(name string) error {
	tc.mu.Lock()
	if _, exists := tc.tools[name]; !exists {
		tc.mu.Unlock()
		return fmt.Errorf("tool %q does not exist", name)
	}
	delete(tc.tools, name)
	for i, n := range tc.order {
		if n == name {
			tc.order = append(tc.order[:i], tc.order[i+1:]...)
			break
		}
	}
	bound := tc.bound
	tc.mu.Unlock()

	tc.logger.Info("Deleted tool", zap.String("name", name))
	if bound {
		tc.manager.Broadcast(schema.MethodNotificationToolsListChanged, nil)
	}
	return nil
}

func (tc *ToolsCapability) handleToolsList(rc *mcp.RequestContext) (interface{}, error) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	toolsList := make([]schema.Tool, 0, len(tc.order))
	for _, name := range tc.order {
		toolsList = append(toolsList, tc.tools[name].wire())
	}
	return &schema.ListToolsResult{Tools: toolsList}, nil
}

func (tc *ToolsCapability) handleToolsCall(rc *mcp.RequestContext) (interface{}, error) {
	logger := tc.logger.With(zap.String("sessionID", rc.SessionID))

	if rc.Message.Params == nil {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidParams, "missing params")
	}
	var params schema.CallToolRequestParams
	if err := json.Unmarshal(*rc.Message.Params, &params); err != nil {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidParams, "invalid parameters: %v", err)
	}
	logger = logger.With(zap.String("toolName", params.Name))

	tc.mu.RLock()
	tool, exists := tc.tools[params.Name]
	tc.mu.RUnlock()
	if !exists {
		return nil, shared.Errorf(shared.JSONRPCErrorMethodNotFound, "unknown tool: %s", params.Name)
	}

	if rpcErr := tool.InputSchema.Validate(map[string]interface{}(params.Arguments)); rpcErr != nil {
		logger.Warn("Tool arguments rejected by schema", zap.String("error", rpcErr.Message))
		return nil, rpcErr
	}

	startTime := time.Now()
	result, err := tool.Handler(rc, params.Arguments)
	duration := time.Since(startTime)
	if err != nil {
		// Execution failures travel inside the result so the model sees them.
		logger.Warn("Tool handler returned an error", zap.Error(err), zap.Duration("duration", duration))
		return &schema.CallToolResult{
			Content: schema.NewTextContent(err.Error()),
			IsError: true,
		}, nil
	}
	if result == nil {
		result = &mcp.ToolResult{}
	}

	out := &schema.CallToolResult{
		Meta:              result.Meta,
		Content:           result.Content,
		StructuredContent: result.StructuredContent,
		IsError:           result.IsError,
	}
	if tool.OutputSchema != nil && !out.IsError {
		if rpcErr := tool.OutputSchema.ValidateRaw(out.StructuredContent); rpcErr != nil {
			logger.Error("Tool produced output violating its schema", zap.String("error", rpcErr.Message))
			return nil, rpcErr
		}
	}

	logger.Debug("Tool call completed", zap.Duration("duration", duration), zap.Bool("isError", out.IsError))
	return out, nil
}
