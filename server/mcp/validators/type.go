package validators

import (
	"fmt"
	"sync"

	"github.com/mcpwire/mcpwire/shared"
)

// MethodValidator validates that a message's method exists in the MCP
// specification.
type MethodValidator struct {
	validMethods map[string]bool
	mu           sync.RWMutex
}

// NewMethodValidator creates a method validator preloaded with the known
// method set.
func NewMethodValidator() *MethodValidator {
	return &MethodValidator{
		validMethods: map[string]bool{
			// Client requests
			"initialize":               true,
			"ping":                     true,
			"tools/list":               true,
			"tools/call":               true,
			"prompts/list":             true,
			"prompts/get":              true,
			"resources/list":           true,
			"resources/templates/list": true,
			"resources/read":           true,
			"resources/subscribe":      true,
			"resources/unsubscribe":    true,
			"logging/setLevel":         true,
			"completion/complete":      true,

			// Notifications from the client
			"notifications/initialized":        true,
			"notifications/cancelled":          true,
			"notifications/progress":           true,
			"notifications/roots/list_changed": true,
		},
	}
}

// AllowMethod adds a method to the allow-list, for servers that register
// experimental handlers.
func (v *MethodValidator) AllowMethod(method string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.validMethods[method] = true
}

// Validate implements the shared.MessageValidator interface. Responses
// (no method) pass through; the transport routes them separately.
func (v *MethodValidator) Validate(msg *shared.Message) error {
	if msg.Method == nil {
		return nil
	}
	v.mu.RLock()
	valid := v.validMethods[*msg.Method]
	v.mu.RUnlock()
	if !valid {
		return fmt.Errorf("invalid method: %s", *msg.Method)
	}
	return nil
}
