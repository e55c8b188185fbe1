package capability

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server/mcp"
	"github.com/mcpwire/mcpwire/shared"
	"github.com/mcpwire/mcpwire/shared/schema"
)

// PromptHandler renders one prompt with the client-supplied arguments.
type PromptHandler func(rc *mcp.RequestContext, arguments map[string]string) (*schema.GetPromptResult, error)

var _ mcp.ServerCapability = (*PromptsCapability)(nil)

// PromptsCapability handles prompt registration and retrieval.
type PromptsCapability struct {
	manager  *mcp.Manager
	logger   *zap.Logger
	mu       sync.RWMutex
	prompts  map[string]*Prompt
	order    []string
	bound    bool
	handlers map[string]mcp.Handler
}

// Prompt pairs the advertised definition with its render handler.
type Prompt struct {
	Name        string
	Description string
	Arguments   []schema.PromptArgument
	Handler     PromptHandler
}

func (p *Prompt) wire() schema.Prompt {
	return schema.Prompt{
		Name:        p.Name,
		Description: p.Description,
		Arguments:   p.Arguments,
	}
}

// NewPromptsCapability creates an empty prompt registry.
func NewPromptsCapability(manager *mcp.Manager, logger *zap.Logger) *PromptsCapability {
	pc := &PromptsCapability{
		manager: manager,
		logger:  logger.Named("capability.prompts"),
		prompts: make(map[string]*Prompt),
	}
	pc.handlers = map[string]mcp.Handler{
		"prompts/list": pc.handlePromptsList,
		"prompts/get":  pc.handlePromptsGet,
	}
	return pc
}

func (pc *PromptsCapability) GetHandlers() map[string]mcp.Handler {
	return pc.handlers
}

func (pc *PromptsCapability) SetCapabilities(caps *schema.ServerCapabilities) {
	caps.Prompts = &schema.Capability{ListChanged: true}
}

// MarkBound switches the registry into broadcast mode.
func (pc *PromptsCapability) MarkBound() {
	pc.mu.Lock()
	pc.bound = true
	pc.mu.Unlock()
}

// AddPrompt registers a prompt. Registration after the transport is bound
// broadcasts notifications/prompts/list_changed.
func (pc *PromptsCapability) AddPrompt(prompt *Prompt) error {
	if prompt == nil || prompt.Name == "" {
		return fmt.Errorf("prompt must have a name")
	}
	if prompt.Handler == nil {
		return fmt.Errorf("handler cannot be nil for prompt %q", prompt.Name)
	}

	pc.mu.Lock()
	if _, exists := pc.prompts[prompt.Name]; exists {
		pc.mu.Unlock()
		return fmt.Errorf("prompt %q already exists", prompt.Name)
	}
	pc.prompts[prompt.Name] = prompt
	pc.order = append(pc.order, prompt.Name)
	bound := pc.bound
	pc.mu.Unlock()

	pc.logger.Info("Added prompt", zap.String("name", prompt.Name))
	if bound {
		pc.manager.Broadcast(schema.MethodNotificationPromptsListChanged, nil)
	}
	return nil
}

func (pc *PromptsCapability) handlePromptsList(rc *mcp.RequestContext) (interface{}, error) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	promptsList := make([]schema.Prompt, 0, len(pc.order))
	for _, name := range pc.order {
		promptsList = append(promptsList, pc.prompts[name].wire())
	}
	return &schema.ListPromptsResult{Prompts: promptsList}, nil
}

func (pc *PromptsCapability) handlePromptsGet(rc *mcp.RequestContext) (interface{}, error) {
	if rc.Message.Params == nil {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidParams, "missing params")
	}
	var params schema.GetPromptRequestParams
	if err := json.Unmarshal(*rc.Message.Params, &params); err != nil {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidParams, "invalid parameters: %v", err)
	}

	pc.mu.RLock()
	prompt, exists := pc.prompts[params.Name]
	pc.mu.RUnlock()
	if !exists {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidParams, "unknown prompt: %s", params.Name)
	}

	// Required arguments must be present before the handler runs.
	for _, arg := range prompt.Arguments {
		if !arg.Required {
			continue
		}
		if _, ok := params.Arguments[arg.Name]; !ok {
			return nil, shared.Errorf(shared.JSONRPCErrorInvalidParams, "missing required argument: %s", arg.Name)
		}
	}

	result, err := prompt.Handler(rc, params.Arguments)
	if err != nil {
		pc.logger.Warn("Prompt handler failed", zap.String("name", params.Name), zap.Error(err))
		return nil, err
	}
	if result == nil {
		return nil, shared.Errorf(shared.JSONRPCErrorInternal, "prompt handler returned no result")
	}
	return result, nil
}
