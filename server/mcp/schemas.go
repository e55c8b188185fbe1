package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/mcpwire/mcpwire/shared"
)

// defaultObjectSchema is advertised when a tool or prompt registers no input
// schema at all.
var defaultObjectSchema = json.RawMessage(`{"type":"object"}`)

// InputSchema is the tagged variant behind tool and prompt input schemas:
// either a raw JSON Schema document (advertised as-is, not validated
// server-side) or a typed *jsonschema.Schema compiled at registration and
// enforced at call time.
type InputSchema struct {
	raw      json.RawMessage
	resolved *jsonschema.Resolved
}

// RawSchema wraps a pre-built JSON Schema document. The document is sent to
// clients verbatim; arguments are not validated against it.
func RawSchema(doc json.RawMessage) *InputSchema {
	if len(doc) == 0 {
		doc = defaultObjectSchema
	}
	return &InputSchema{raw: doc}
}

// TypedSchema compiles a typed schema at registration time. Arguments are
// validated against it on every call.
func TypedSchema(s *jsonschema.Schema) (*InputSchema, error) {
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve schema: %w", err)
	}
	doc, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return &InputSchema{raw: doc, resolved: resolved}, nil
}

// SchemaFor compiles a typed schema derived from a Go struct type.
func SchemaFor[T any]() (*InputSchema, error) {
	s, err := jsonschema.For[T](&jsonschema.ForOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to derive schema: %w", err)
	}
	return TypedSchema(s)
}

// Wire returns the JSON Schema document advertised to clients.
func (s *InputSchema) Wire() json.RawMessage {
	if s == nil || len(s.raw) == 0 {
		return defaultObjectSchema
	}
	return s.raw
}

// Validate checks a decoded argument value against the schema. Raw schemas
// accept everything; typed schemas reject invalid arguments with -32602.
func (s *InputSchema) Validate(value interface{}) *shared.JSONRPCError {
	if s == nil || s.resolved == nil {
		return nil
	}
	if err := s.resolved.Validate(value); err != nil {
		return shared.Errorf(shared.JSONRPCErrorInvalidParams, "arguments do not match schema: %v", err)
	}
	return nil
}

// ValidateRaw decodes raw JSON arguments and checks them against the schema.
func (s *InputSchema) ValidateRaw(raw json.RawMessage) *shared.JSONRPCError {
	if s == nil || s.resolved == nil {
		return nil
	}
	var value interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &value); err != nil {
			return shared.Errorf(shared.JSONRPCErrorInvalidParams, "arguments are not valid JSON: %v", err)
		}
	}
	return s.Validate(value)
}

// elicitationProperty is the flat subset of JSON Schema that elicitation
// clients are required to render.
type elicitationProperty struct {
	Type        string            `json:"type,omitempty"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Enum        []json.RawMessage `json:"enum,omitempty"`
	EnumNames   []string          `json:"enumNames,omitempty"`
	Minimum     *float64          `json:"minimum,omitempty"`
	Maximum     *float64          `json:"maximum,omitempty"`
	MinLength   *int              `json:"minLength,omitempty"`
	MaxLength   *int              `json:"maxLength,omitempty"`
	Format      string            `json:"format,omitempty"`
	Default     json.RawMessage   `json:"default,omitempty"`
}

type elicitationSchema struct {
	Type       string                          `json:"type"`
	Properties map[string]*elicitationProperty `json:"properties,omitempty"`
	Required   []string                        `json:"required,omitempty"`
}

// ProjectElicitationSchema reduces an arbitrary JSON Schema to the subset
// elicitation supports: top-level string/number/integer/boolean properties
// plus enums. Nested objects and arrays are dropped, and "required" keeps
// only names whose property survived.
func ProjectElicitationSchema(doc json.RawMessage) (json.RawMessage, error) {
	if len(doc) == 0 {
		return json.Marshal(&elicitationSchema{Type: "object"})
	}

	var source struct {
		Type       string                          `json:"type"`
		Properties map[string]*elicitationProperty `json:"properties"`
		Required   []string                        `json:"required"`
	}
	if err := json.Unmarshal(doc, &source); err != nil {
		return nil, fmt.Errorf("schema is not a JSON object: %w", err)
	}

	out := &elicitationSchema{Type: "object"}
	for name, prop := range source.Properties {
		if prop == nil {
			continue
		}
		switch prop.Type {
		case "string", "number", "integer", "boolean":
		case "":
			// Untyped properties survive only when they are enums.
			if len(prop.Enum) == 0 {
				continue
			}
		default:
			continue
		}
		if out.Properties == nil {
			out.Properties = make(map[string]*elicitationProperty)
		}
		out.Properties[name] = prop
	}
	for _, name := range source.Required {
		if _, kept := out.Properties[name]; kept {
			out.Required = append(out.Required, name)
		}
	}
	return json.Marshal(out)
}
