package validators

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpwire/mcpwire/shared"
	"github.com/mcpwire/mcpwire/shared/schema"
)

func makeMessage(method string, id interface{}, params string) *shared.Message {
	msg := &shared.Message{}
	if method != "" {
		msg.Method = &method
	}
	if id != nil {
		msg.ID = &schema.RequestID{Value: id}
	}
	if params != "" {
		raw := json.RawMessage(params)
		msg.Params = &raw
	}
	return msg
}

func TestMessageSizeValidator(t *testing.T) {
	v := NewMessageSizeValidator(64)

	assert.NoError(t, v.Validate(makeMessage("tools/call", "1", `{"name":"echo"}`)))

	big := `{"payload":"` + strings.Repeat("x", 100) + `"}`
	assert.Error(t, v.Validate(makeMessage("tools/call", "1", big)))

	// No params is always fine.
	assert.NoError(t, v.Validate(makeMessage("ping", "1", "")))
}

func TestMessageSizeValidatorRequestID(t *testing.T) {
	v := NewMessageSizeValidator(1024)

	longID := strings.Repeat("a", 300)
	assert.Error(t, v.Validate(makeMessage("ping", longID, "")))

	// Notifications have no id to check.
	assert.NoError(t, v.Validate(makeMessage("notifications/initialized", nil, "")))
}

func TestMessageSizeValidatorSetMaxSize(t *testing.T) {
	v := NewMessageSizeValidator(10)
	params := `{"a":"bbbbbbbbbb"}`
	require.Error(t, v.Validate(makeMessage("tools/call", "1", params)))

	v.SetMaxSize(1024)
	assert.NoError(t, v.Validate(makeMessage("tools/call", "1", params)))
}

func TestMethodValidator(t *testing.T) {
	v := NewMethodValidator()

	assert.NoError(t, v.Validate(makeMessage("initialize", "1", "")))
	assert.NoError(t, v.Validate(makeMessage("tools/call", "1", "")))
	assert.NoError(t, v.Validate(makeMessage("notifications/progress", nil, "")))

	assert.Error(t, v.Validate(makeMessage("tools/delete", "1", "")))
	assert.Error(t, v.Validate(makeMessage("admin/shutdown", "1", "")))

	// Responses carry no method and pass through.
	assert.NoError(t, v.Validate(makeMessage("", "1", "")))
}

func TestMethodValidatorAllowMethod(t *testing.T) {
	v := NewMethodValidator()
	require.Error(t, v.Validate(makeMessage("x/custom", "1", "")))

	v.AllowMethod("x/custom")
	assert.NoError(t, v.Validate(makeMessage("x/custom", "1", "")))
}

func TestThrottlingPerSession(t *testing.T) {
	// Burst of 3 per second, RPM effectively unlimited for this test.
	v := NewThrottling(3, 600)

	msgA := makeMessage("ping", "1", "")
	msgA.SessionID = "session-a"
	for i := 0; i < 3; i++ {
		require.NoError(t, v.Validate(msgA), "request %d within burst must pass", i+1)
	}
	assert.Error(t, v.Validate(msgA), "burst exhausted")

	// A different session has its own bucket.
	msgB := makeMessage("ping", "1", "")
	msgB.SessionID = "session-b"
	assert.NoError(t, v.Validate(msgB))
}

func TestThrottlingForget(t *testing.T) {
	v := NewThrottling(1, 600)

	msg := makeMessage("ping", "1", "")
	msg.SessionID = "session-a"
	require.NoError(t, v.Validate(msg))
	require.Error(t, v.Validate(msg))

	// Forgetting the session resets its budget.
	v.Forget("session-a")
	assert.NoError(t, v.Validate(msg))
}

func TestCreateDefaultValidators(t *testing.T) {
	vs := CreateDefaultValidators()
	require.Len(t, vs, 3)
	for _, v := range vs {
		assert.NoError(t, v.Validate(makeMessage("ping", "1", "")))
	}
}
