package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mcpwire/mcpwire/server/session"
	"github.com/mcpwire/mcpwire/shared"
	"github.com/mcpwire/mcpwire/shared/schema"
)

type recordedNotification struct {
	method  string
	params  interface{}
	related bool
}

type fakeConn struct {
	notifications []recordedNotification
	requests      []string
	response      json.RawMessage
	responseErr   *shared.JSONRPCError
}

func (c *fakeConn) SendNotification(ctx context.Context, method string, params interface{}, related bool) error {
	c.notifications = append(c.notifications, recordedNotification{method, params, related})
	return nil
}

func (c *fakeConn) RequestClient(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, *shared.JSONRPCError) {
	c.requests = append(c.requests, method)
	return c.response, c.responseErr
}

func newContextWithConn(t *testing.T, method string, params string, meta *session.Meta, conn ClientConn) *RequestContext {
	t.Helper()
	msg := &shared.Message{Method: &method, ID: &schema.RequestID{Value: "1"}}
	if params != "" {
		raw := json.RawMessage(params)
		msg.Params = &raw
	}
	return NewRequestContext(context.Background(), msg, meta, conn, zaptest.NewLogger(t))
}

func TestProgressWithoutTokenIsNoop(t *testing.T) {
	conn := &fakeConn{}
	rc := newContextWithConn(t, "tools/call", `{"name":"x"}`, nil, conn)

	require.NoError(t, rc.Progress(1, nil, "working"))
	assert.Empty(t, conn.notifications)
}

func TestProgressWithToken(t *testing.T) {
	conn := &fakeConn{}
	rc := newContextWithConn(t, "tools/call", `{"name":"x","_meta":{"progressToken":"tok-1"}}`, nil, conn)

	total := 10.0
	require.NoError(t, rc.Progress(3, &total, "working"))

	require.Len(t, conn.notifications, 1)
	n := conn.notifications[0]
	assert.Equal(t, schema.MethodNotificationProgress, n.method)
	assert.True(t, n.related, "progress must ride the originating request's stream")

	params, ok := n.params.(*schema.ProgressNotificationParams)
	require.True(t, ok)
	assert.Equal(t, "tok-1", params.ProgressToken.Value)
	assert.Equal(t, 3.0, params.Progress)
	require.NotNil(t, params.Total)
	assert.Equal(t, 10.0, *params.Total)
}

func TestLogHonorsSessionThreshold(t *testing.T) {
	conn := &fakeConn{}
	meta := &session.Meta{LogLevel: schema.LoggingLevelWarning}
	rc := newContextWithConn(t, "tools/call", "", meta, conn)

	require.NoError(t, rc.Log(schema.LoggingLevelDebug, "test", "dropped"))
	assert.Empty(t, conn.notifications)

	require.NoError(t, rc.Log(schema.LoggingLevelError, "test", "kept"))
	require.Len(t, conn.notifications, 1)
	assert.Equal(t, schema.MethodNotificationMessage, conn.notifications[0].method)
	assert.False(t, conn.notifications[0].related, "log messages are session-scoped")
}

func TestElicitRequiresClientSupport(t *testing.T) {
	conn := &fakeConn{}
	meta := &session.Meta{} // no elicitation capability declared
	rc := newContextWithConn(t, "tools/call", "", meta, conn)

	_, err := rc.Elicit(context.Background(), "question?", nil)
	require.Error(t, err)
	rpcErr, ok := err.(*shared.JSONRPCError)
	require.True(t, ok)
	assert.Equal(t, shared.JSONRPCErrorInvalidRequest, rpcErr.Code)
	assert.Empty(t, conn.requests)
}

func TestElicitRoundTrip(t *testing.T) {
	conn := &fakeConn{response: json.RawMessage(`{"action":"accept","content":{"answer":"yes"}}`)}
	meta := &session.Meta{
		ClientCapabilities: schema.ClientCapabilities{Elicitation: &struct{}{}},
	}
	rc := newContextWithConn(t, "tools/call", "", meta, conn)

	result, err := rc.Elicit(context.Background(), "proceed?", json.RawMessage(`{
		"type": "object",
		"properties": {"answer": {"type": "string"}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, schema.ElicitActionAccept, result.Action)
	assert.Equal(t, "yes", result.Content["answer"])
	require.Equal(t, []string{schema.MethodElicitationCreate}, conn.requests)
}

func TestSampleRequiresClientSupport(t *testing.T) {
	conn := &fakeConn{}
	rc := newContextWithConn(t, "tools/call", "", &session.Meta{}, conn)

	_, err := rc.Sample(context.Background(), &schema.CreateMessageRequestParams{})
	require.Error(t, err)
	assert.Empty(t, conn.requests)
}

func TestSampleRoundTrip(t *testing.T) {
	conn := &fakeConn{response: json.RawMessage(`{
		"role": "assistant",
		"content": {"type": "text", "text": "hi"},
		"model": "test-model"
	}`)}
	meta := &session.Meta{
		ClientCapabilities: schema.ClientCapabilities{Sampling: &struct{}{}},
	}
	rc := newContextWithConn(t, "tools/call", "", meta, conn)

	result, err := rc.Sample(context.Background(), &schema.CreateMessageRequestParams{
		MaxTokens: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "test-model", result.Model)
	require.Equal(t, []string{schema.MethodSamplingCreateMessage}, conn.requests)
}

func TestProtocolVersionFallback(t *testing.T) {
	rc := newContextWithConn(t, "ping", "", nil, nil)
	assert.Equal(t, schema.PROTOCOL_VERSION_2025_03_26, rc.ProtocolVersion())

	rc = newContextWithConn(t, "ping", "", &session.Meta{ProtocolVersion: schema.PROTOCOL_VERSION_2025_06_18}, nil)
	assert.Equal(t, schema.PROTOCOL_VERSION_2025_06_18, rc.ProtocolVersion())
}
