// Package validators screens inbound messages before dispatch: payload size
// caps, a known-method allow-list, and per-session rate limiting.
package validators

import (
	"github.com/mcpwire/mcpwire/shared"
)

// CreateDefaultValidators returns the standard validator set with default
// settings.
func CreateDefaultValidators() []shared.MessageValidator {
	return []shared.MessageValidator{
		NewThrottling(60, 600),          // 60 requests per second, 600 per minute
		NewMessageSizeValidator(102400), // 100KB params cap
		NewMethodValidator(),
	}
}
