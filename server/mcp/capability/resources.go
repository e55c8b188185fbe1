package capability

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server/mcp"
	"github.com/mcpwire/mcpwire/shared"
	"github.com/mcpwire/mcpwire/shared/schema"
	"github.com/mcpwire/mcpwire/uritemplate"
)

// ResourceHandler reads one static resource.
type ResourceHandler func(rc *mcp.RequestContext, uri string) ([]schema.ResourceContent, error)

// TemplateHandler reads one templated resource with the variables extracted
// from the URI.
type TemplateHandler func(rc *mcp.RequestContext, uri string, variables map[string]string) ([]schema.ResourceContent, error)

// VariableValidator checks one extracted template variable before the
// handler runs. A returned error rejects the read with -32602.
type VariableValidator func(value string) error

var _ mcp.ServerCapability = (*ResourcesCapability)(nil)

// ResourcesCapability handles static and templated resource registration and
// reads. Static URIs win over templates; templates match in registration
// order, first match wins.
type ResourcesCapability struct {
	manager   *mcp.Manager
	logger    *zap.Logger
	mu        sync.RWMutex
	resources map[string]*Resource
	resOrder  []string
	templates []*Template
	bound     bool
	handlers  map[string]mcp.Handler
}

// Resource pairs a static resource definition with its reader.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	Handler     ResourceHandler
}

func (r *Resource) wire() schema.Resource {
	return schema.Resource{
		URI:         r.URI,
		Name:        r.Name,
		Description: r.Description,
		MimeType:    r.MimeType,
	}
}

// Template pairs a URI template definition with its reader and optional
// per-variable validators.
type Template struct {
	URITemplate string
	Name        string
	Description string
	MimeType    string
	Validators  map[string]VariableValidator
	Handler     TemplateHandler

	compiled *uritemplate.Template
}

func (t *Template) wire() schema.ResourceTemplate {
	return schema.ResourceTemplate{
		URITemplate: t.URITemplate,
		Name:        t.Name,
		Description: t.Description,
		MimeType:    t.MimeType,
	}
}

// NewResourcesCapability creates an empty resource registry.
func NewResourcesCapability(manager *mcp.Manager, logger *zap.Logger) *ResourcesCapability {
	rcap := &ResourcesCapability{
		manager:   manager,
		logger:    logger.Named("capability.resources"),
		resources: make(map[string]*Resource),
	}
	rcap.handlers = map[string]mcp.Handler{
		"resources/list":           rcap.handleResourcesList,
		"resources/templates/list": rcap.handleTemplatesList,
		"resources/read":           rcap.handleResourcesRead,
		"resources/subscribe":      rcap.handleSubscribe,
		"resources/unsubscribe":    rcap.handleUnsubscribe,
	}
	return rcap
}

func (rcap *ResourcesCapability) GetHandlers() map[string]mcp.Handler {
	return rcap.handlers
}

func (rcap *ResourcesCapability) SetCapabilities(caps *schema.ServerCapabilities) {
	caps.Resources = &schema.CapabilityWithSubscribe{ListChanged: true}
}

// MarkBound switches the registry into broadcast mode.
func (rcap *ResourcesCapability) MarkBound() {
	rcap.mu.Lock()
	rcap.bound = true
	rcap.mu.Unlock()
}

// AddResource registers a static resource.
func (rcap *ResourcesCapability) AddResource(resource *Resource) error {
	if resource == nil || resource.URI == "" {
		return fmt.Errorf("resource must have a URI")
	}
	if resource.Handler == nil {
		return fmt.Errorf("handler cannot be nil for resource %q", resource.URI)
	}

	rcap.mu.Lock()
	if _, exists := rcap.resources[resource.URI]; exists {
		rcap.mu.Unlock()
		return fmt.Errorf("resource %q already exists", resource.URI)
	}
	rcap.resources[resource.URI] = resource
	rcap.resOrder = append(rcap.resOrder, resource.URI)
	bound := rcap.bound
	rcap.mu.Unlock()

	rcap.logger.Info("Added resource", zap.String("uri", resource.URI))
	if bound {
		rcap.manager.Broadcast(schema.MethodNotificationResourcesListChanged, nil)
	}
	return nil
}

// AddTemplate registers a templated resource. The template is compiled here
// so malformed patterns fail at registration rather than on first read.
func (rcap *ResourcesCapability) AddTemplate(template *Template) error {
	if template == nil || template.URITemplate == "" {
		return fmt.Errorf("template must have a URI template")
	}
	if template.Handler == nil {
		return fmt.Errorf("handler cannot be nil for template %q", template.URITemplate)
	}
	template.compiled = uritemplate.New(template.URITemplate)
	if err := template.compiled.Validate(); err != nil {
		return fmt.Errorf("invalid URI template %q: %w", template.URITemplate, err)
	}

	rcap.mu.Lock()
	rcap.templates = append(rcap.templates, template)
	bound := rcap.bound
	rcap.mu.Unlock()

	rcap.logger.Info("Added resource template", zap.String("uriTemplate", template.URITemplate))
	if bound {
		rcap.manager.Broadcast(schema.MethodNotificationResourcesListChanged, nil)
	}
	return nil
}

func (rcap *ResourcesCapability) handleResourcesList(rc *mcp.RequestContext) (interface{}, error) {
	rcap.mu.RLock()
	defer rcap.mu.RUnlock()

	list := make([]schema.Resource, 0, len(rcap.resOrder))
	for _, uri := range rcap.resOrder {
		list = append(list, rcap.resources[uri].wire())
	}
	return &schema.ListResourcesResult{Resources: list}, nil
}

func (rcap *ResourcesCapability) handleTemplatesList(rc *mcp.RequestContext) (interface{}, error) {
	rcap.mu.RLock()
	defer rcap.mu.RUnlock()

	list := make([]schema.ResourceTemplate, 0, len(rcap.templates))
	for _, template := range rcap.templates {
		list = append(list, template.wire())
	}
	return &schema.ListResourceTemplatesResult{ResourceTemplates: list}, nil
}

func (rcap *ResourcesCapability) handleResourcesRead(rc *mcp.RequestContext) (interface{}, error) {
	if rc.Message.Params == nil {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidParams, "missing params")
	}
	var params schema.ReadResourceRequestParams
	if err := json.Unmarshal(*rc.Message.Params, &params); err != nil {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidParams, "invalid parameters: %v", err)
	}
	logger := rcap.logger.With(zap.String("uri", params.URI))

	// Static resources take precedence over templates.
	rcap.mu.RLock()
	resource, isStatic := rcap.resources[params.URI]
	templates := rcap.templates
	rcap.mu.RUnlock()

	if isStatic {
		contents, err := resource.Handler(rc, params.URI)
		if err != nil {
			logger.Warn("Resource handler failed", zap.Error(err))
			return nil, err
		}
		return &schema.ReadResourceResult{Contents: contents}, nil
	}

	for _, template := range templates {
		variables := template.compiled.Match(params.URI)
		if variables == nil {
			continue
		}
		for name, validate := range template.Validators {
			value, ok := variables[name]
			if !ok {
				continue
			}
			if err := validate(value); err != nil {
				return nil, shared.Errorf(shared.JSONRPCErrorInvalidParams, "invalid value for %q: %v", name, err)
			}
		}
		contents, err := template.Handler(rc, params.URI, variables)
		if err != nil {
			logger.Warn("Template handler failed", zap.Error(err))
			return nil, err
		}
		return &schema.ReadResourceResult{Contents: contents}, nil
	}

	return nil, shared.Errorf(shared.JSONRPCErrorMethodNotFound, "resource not found: %s", params.URI)
}

func (rcap *ResourcesCapability) handleSubscribe(rc *mcp.RequestContext) (interface{}, error) {
	return nil, shared.Errorf(shared.JSONRPCErrorMethodNotFound, "resources/subscribe is not implemented")
}

func (rcap *ResourcesCapability) handleUnsubscribe(rc *mcp.RequestContext) (interface{}, error) {
	return nil, shared.Errorf(shared.JSONRPCErrorMethodNotFound, "resources/unsubscribe is not implemented")
}
