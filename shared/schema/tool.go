package schema

import "encoding/json"

// Arguments is the decoded tool-call argument map.
type Arguments map[string]interface{}

// ToolAnnotations provides additional properties describing a Tool to clients.
// NOTE: all properties in ToolAnnotations are **hints**; clients should never
// make trust decisions based on annotations from untrusted servers.
type ToolAnnotations struct {
	// A human-readable title for the tool.
	Title string `json:"title,omitempty"`
	// If true, the tool does not modify its environment (Default: false).
	ReadOnlyHint *bool `json:"readOnlyHint,omitempty"`
	// If true, the tool may perform destructive updates (Default: true).
	DestructiveHint *bool `json:"destructiveHint,omitempty"`
	// If true, repeated calls with same args have no additional effect (Default: false).
	IdempotentHint *bool `json:"idempotentHint,omitempty"`
	// If true, this tool may interact with an "open world" (Default: true).
	OpenWorldHint *bool `json:"openWorldHint,omitempty"`
}

// Tool defines a callable tool the client can use.
type Tool struct {
	// The name of the tool.
	Name string `json:"name"`
	// A human-readable description of the tool.
	Description string `json:"description,omitempty"`
	// A JSON Schema object defining the expected parameters for the tool.
	InputSchema json.RawMessage `json:"inputSchema"`
	// A JSON Schema object describing structuredContent (ADDED in 2025-06-18).
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
	// Optional additional tool information.
	Annotations *ToolAnnotations `json:"annotations,omitempty"`
}

// ListToolsRequestParams contains parameters for tool listing requests.
type ListToolsRequestParams struct {
	PaginatedRequestParams
}

// ListToolsResult is the response to a tools/list request.
type ListToolsResult struct {
	PaginatedResult
	Meta  Meta   `json:"_meta,omitempty"`
	Tools []Tool `json:"tools"`
}

// CallToolRequestParams contains parameters for tool call requests.
type CallToolRequestParams struct {
	// The name of the tool.
	Name string `json:"name"`
	// Arguments for the tool call. Kept even when empty: several client
	// implementations require the field to be present.
	Arguments Arguments `json:"arguments"`
	// Reserved metadata; carries the client's progressToken if any.
	Meta *RequestMeta `json:"_meta,omitempty"`
}

// RequestMeta is the _meta object a client may attach to a request.
type RequestMeta struct {
	ProgressToken *ProgressToken `json:"progressToken,omitempty"`
}

// CallToolResult is the server's response to a tool call.
type CallToolResult struct {
	Meta Meta `json:"_meta,omitempty"`
	// Unstructured content items for display.
	Content []Content `json:"content"`
	// Machine-readable output matching the tool's outputSchema (2025-06-18).
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	// True when the tool execution failed in a user-visible way.
	IsError bool `json:"isError,omitempty"`
}
