package schema

import "encoding/json"

// Capability represents a basic capability marker.
type Capability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// CapabilityWithSubscribe represents a capability that includes subscription support.
type CapabilityWithSubscribe struct {
	ListChanged bool `json:"listChanged,omitempty"`
	Subscribe   bool `json:"subscribe,omitempty"`
}

// Implementation describes the name and version of an MCP implementation.
type Implementation struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"` // ADDED in 2025-06-18
	Version string `json:"version"`
}

// ClientCapabilities describes capabilities a client may support.
type ClientCapabilities struct {
	Experimental map[string]json.RawMessage `json:"experimental,omitempty"`
	Roots        *Capability                `json:"roots,omitempty"`
	Sampling     *struct{}                  `json:"sampling,omitempty"`
	Elicitation  *struct{}                  `json:"elicitation,omitempty"` // ADDED in 2025-06-18
}

// SupportsSampling reports whether the client declared the sampling capability.
func (c *ClientCapabilities) SupportsSampling() bool {
	return c != nil && c.Sampling != nil
}

// SupportsElicitation reports whether the client declared the elicitation capability.
func (c *ClientCapabilities) SupportsElicitation() bool {
	return c != nil && c.Elicitation != nil
}

// Supports checks a dotted capability path ("sampling", "elicitation",
// "roots", "roots.listChanged") against the declared client capabilities.
func (c *ClientCapabilities) Supports(capability string) bool {
	if c == nil {
		return false
	}
	switch capability {
	case "sampling":
		return c.Sampling != nil
	case "elicitation":
		return c.Elicitation != nil
	case "roots":
		return c.Roots != nil
	case "roots.listChanged":
		return c.Roots != nil && c.Roots.ListChanged
	}
	if c.Experimental != nil {
		_, ok := c.Experimental[capability]
		return ok
	}
	return false
}

// ServerCapabilities describes features the server supports.
type ServerCapabilities struct {
	Experimental map[string]json.RawMessage `json:"experimental,omitempty"`
	Logging      *struct{}                  `json:"logging,omitempty"`
	Completions  *struct{}                  `json:"completions,omitempty"`
	Prompts      *Capability                `json:"prompts,omitempty"`
	Resources    *CapabilityWithSubscribe   `json:"resources,omitempty"`
	Tools        *Capability                `json:"tools,omitempty"`
}

// InitializeRequestParams contains parameters for initialization.
type InitializeRequestParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the server's response to initialization.
type InitializeResult struct {
	Meta            Meta               `json:"_meta,omitempty"`
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}
