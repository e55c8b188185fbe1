package schema

import "encoding/json"

// ElicitRequestParams asks the client to collect structured input from the
// end user (method "elicitation/create", ADDED in 2025-06-18).
type ElicitRequestParams struct {
	// Message displayed to the user explaining what is being asked for.
	Message string `json:"message"`
	// A restricted JSON Schema describing the expected form fields. Only
	// top-level string/number/integer/boolean/enum properties are allowed.
	RequestedSchema json.RawMessage `json:"requestedSchema"`
}

// ElicitResult is the client's answer to an elicitation request.
type ElicitResult struct {
	Meta Meta `json:"_meta,omitempty"`
	// One of "accept", "decline", "cancel".
	Action string `json:"action"`
	// Collected values; present only when Action is "accept".
	Content map[string]interface{} `json:"content,omitempty"`
}

// Elicitation action constants.
const (
	ElicitActionAccept  = "accept"
	ElicitActionDecline = "decline"
	ElicitActionCancel  = "cancel"
)
