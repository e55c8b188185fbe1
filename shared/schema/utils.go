package schema

import "encoding/json"

// Meta is the reserved metadata object attached to results.
type Meta map[string]interface{}

// ProgressToken correlates progress notifications with the original request
// (string or integer on the wire).
type ProgressToken struct {
	Value interface{}
}

func (t *ProgressToken) UnmarshalJSON(data []byte) error {
	var i interface{}
	if err := json.Unmarshal(data, &i); err != nil {
		return err
	}
	t.Value = i
	return nil
}

func (t ProgressToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Value)
}

// Cursor is an opaque pagination token.
type Cursor string

// PaginatedRequestParams carries the pagination cursor on list requests.
type PaginatedRequestParams struct {
	Cursor *Cursor `json:"cursor,omitempty"`
}

// PaginatedResult carries the continuation cursor on list responses.
type PaginatedResult struct {
	NextCursor *Cursor `json:"nextCursor,omitempty"`
}

// ProgressNotificationParams contains progress information
// (method "notifications/progress").
type ProgressNotificationParams struct {
	// The progress token associated with the original request.
	ProgressToken ProgressToken `json:"progressToken"`
	// The progress thus far. Should increase over time.
	Progress float64 `json:"progress"`
	// Total progress required, if known.
	Total *float64 `json:"total,omitempty"`
	// An optional message describing the current progress.
	Message *string `json:"message,omitempty"`
}

// CancelledNotificationParams contains parameters for cancellation
// notifications (method "notifications/cancelled").
type CancelledNotificationParams struct {
	RequestID RequestID `json:"requestId"`
	Reason    string    `json:"reason,omitempty"`
}

// LoggingLevel represents the severity of a log message (syslog levels).
type LoggingLevel string

// Logging level constants
const (
	LoggingLevelEmergency LoggingLevel = "emergency"
	LoggingLevelAlert     LoggingLevel = "alert"
	LoggingLevelCritical  LoggingLevel = "critical"
	LoggingLevelError     LoggingLevel = "error"
	LoggingLevelWarning   LoggingLevel = "warning"
	LoggingLevelNotice    LoggingLevel = "notice"
	LoggingLevelInfo      LoggingLevel = "info"
	LoggingLevelDebug     LoggingLevel = "debug"
)

// loggingLevelRank orders levels from most to least severe.
var loggingLevelRank = map[LoggingLevel]int{
	LoggingLevelEmergency: 0,
	LoggingLevelAlert:     1,
	LoggingLevelCritical:  2,
	LoggingLevelError:     3,
	LoggingLevelWarning:   4,
	LoggingLevelNotice:    5,
	LoggingLevelInfo:      6,
	LoggingLevelDebug:     7,
}

// IsValidLoggingLevel reports whether the level is one of the syslog names.
func IsValidLoggingLevel(level LoggingLevel) bool {
	_, ok := loggingLevelRank[level]
	return ok
}

// LevelIncludes reports whether a message at msgLevel passes the configured
// threshold level.
func LevelIncludes(threshold, msgLevel LoggingLevel) bool {
	t, ok1 := loggingLevelRank[threshold]
	m, ok2 := loggingLevelRank[msgLevel]
	return ok1 && ok2 && m <= t
}

// SetLevelRequestParams contains parameters for logging/setLevel.
type SetLevelRequestParams struct {
	Level LoggingLevel `json:"level"`
}

// LoggingMessageNotificationParams contains logging message parameters
// (method "notifications/message").
type LoggingMessageNotificationParams struct {
	Level  LoggingLevel    `json:"level"`
	Logger string          `json:"logger,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// Well-known notification methods.
const (
	MethodNotificationInitialized      = "notifications/initialized"
	MethodNotificationCancelled        = "notifications/cancelled"
	MethodNotificationProgress         = "notifications/progress"
	MethodNotificationMessage          = "notifications/message"
	MethodNotificationRootsListChanged = "notifications/roots/list_changed"

	MethodNotificationToolsListChanged     = "notifications/tools/list_changed"
	MethodNotificationPromptsListChanged   = "notifications/prompts/list_changed"
	MethodNotificationResourcesListChanged = "notifications/resources/list_changed"

	MethodElicitationCreate     = "elicitation/create"
	MethodSamplingCreateMessage = "sampling/createMessage"
)
