package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mcpwire/mcpwire/server/mcp"
	"github.com/mcpwire/mcpwire/server/mcp/capability"
	"github.com/mcpwire/mcpwire/server/session"
	"github.com/mcpwire/mcpwire/shared"
	"github.com/mcpwire/mcpwire/shared/schema"
)

// newTestServer wires a manager with the base and tools capabilities behind
// a real HTTP server. The registered tools cover the streaming paths: plain
// request/response, progress on the per-request stream, session-scoped
// notifications, and elicitation.
func newTestServer(t *testing.T, managerOptions []mcp.ManagerOption, options ...TransportOption) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t)
	manager := mcp.NewManager(logger, schema.Implementation{Name: "wire-test", Version: "0.1.0"}, managerOptions...)

	tools := capability.NewToolsCapability(manager, logger)
	require.NoError(t, tools.AddTool(&capability.Tool{
		Name:        "echo",
		Description: "Echoes its text argument",
		Handler: func(rc *mcp.RequestContext, args schema.Arguments) (*mcp.ToolResult, error) {
			text, _ := args["text"].(string)
			return &mcp.ToolResult{Content: schema.NewTextContent("echo: " + text)}, nil
		},
	}))
	require.NoError(t, tools.AddTool(&capability.Tool{
		Name:        "countdown",
		Description: "Reports progress three times before finishing",
		Handler: func(rc *mcp.RequestContext, args schema.Arguments) (*mcp.ToolResult, error) {
			total := 3.0
			for i := 1; i <= 3; i++ {
				if err := rc.Progress(float64(i), &total, fmt.Sprintf("step %d", i)); err != nil {
					return nil, err
				}
			}
			return &mcp.ToolResult{Content: schema.NewTextContent("done")}, nil
		},
	}))
	require.NoError(t, tools.AddTool(&capability.Tool{
		Name:        "announce",
		Description: "Emits a session-scoped notification",
		Handler: func(rc *mcp.RequestContext, args schema.Arguments) (*mcp.ToolResult, error) {
			note, _ := args["note"].(string)
			if err := rc.Notify(schema.MethodNotificationMessage, map[string]string{"note": note}); err != nil {
				return nil, err
			}
			return &mcp.ToolResult{Content: schema.NewTextContent("announced")}, nil
		},
	}))
	require.NoError(t, tools.AddTool(&capability.Tool{
		Name:        "ask",
		Description: "Asks the client for its favorite color",
		Handler: func(rc *mcp.RequestContext, args schema.Arguments) (*mcp.ToolResult, error) {
			result, err := rc.Elicit(rc.Ctx, "favorite color?", json.RawMessage(`{
				"type": "object",
				"properties": {"color": {"type": "string"}}
			}`))
			if err != nil {
				return nil, err
			}
			if result.Action != schema.ElicitActionAccept {
				return &mcp.ToolResult{Content: schema.NewTextContent("declined")}, nil
			}
			color, _ := result.Content["color"].(string)
			return &mcp.ToolResult{Content: schema.NewTextContent("color: " + color)}, nil
		},
	}))

	manager.AddCapability(capability.NewBase(logger, manager), tools)

	tr, err := New(manager, logger, nil, options...)
	require.NoError(t, err)

	mux := http.NewServeMux()
	tr.RegisterHandlers(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		tr.Shutdown(context.Background())
	})
	return srv
}

func rpcBody(t *testing.T, id interface{}, method string, params interface{}) []byte {
	t.Helper()
	frame := map[string]interface{}{"jsonrpc": "2.0", "method": method}
	if id != nil {
		frame["id"] = id
	}
	if params != nil {
		frame["params"] = params
	}
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	return data
}

func doPost(t *testing.T, srv *httptest.Server, sessionID string, headers map[string]string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+DefaultEndpointPath, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	if sessionID != "" {
		req.Header.Set(MCPSessionHeader, sessionID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// rpcEnvelope is the decoded wire frame for assertions.
type rpcEnvelope struct {
	ID     json.RawMessage      `json:"id"`
	Method string               `json:"method"`
	Params json.RawMessage      `json:"params"`
	Result json.RawMessage      `json:"result"`
	Error  *shared.JSONRPCError `json:"error"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) *rpcEnvelope {
	t.Helper()
	defer resp.Body.Close()
	env := &rpcEnvelope{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(env))
	return env
}

// toolText decodes a tools/call result down to its first text content block.
func toolText(t *testing.T, result json.RawMessage) (string, bool) {
	t.Helper()
	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(result, &out))
	require.NotEmpty(t, out.Content)
	assert.Equal(t, "text", out.Content[0].Type)
	return out.Content[0].Text, out.IsError
}

// initSession performs the initialize handshake and returns the allocated
// session id.
func initSession(t *testing.T, srv *httptest.Server, version string, caps schema.ClientCapabilities) string {
	t.Helper()
	resp := doPost(t, srv, "", nil, rpcBody(t, 1, "initialize", schema.InitializeRequestParams{
		ProtocolVersion: version,
		Capabilities:    caps,
		ClientInfo:      schema.Implementation{Name: "test-client", Version: "1.0"},
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessionID := resp.Header.Get(MCPSessionHeader)
	require.NotEmpty(t, sessionID)

	env := decodeEnvelope(t, resp)
	require.Nil(t, env.Error)
	return sessionID
}

// sseFrame is one parsed Server-Sent Event.
type sseFrame struct {
	event string
	id    string
	data  []byte
}

// readFrame reads the next event from an SSE stream, skipping keep-alive
// comment lines.
func readFrame(t *testing.T, br *bufio.Reader) *sseFrame {
	t.Helper()
	frame := &sseFrame{}
	sawField := false
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err, "reading SSE stream")
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if sawField {
				return frame
			}
		case strings.HasPrefix(line, ":"):
			// keep-alive comment
		case strings.HasPrefix(line, "event: "):
			frame.event = line[len("event: "):]
			sawField = true
		case strings.HasPrefix(line, "id: "):
			frame.id = line[len("id: "):]
			sawField = true
		case strings.HasPrefix(line, "data: "):
			if len(frame.data) > 0 {
				frame.data = append(frame.data, '\n')
			}
			frame.data = append(frame.data, line[len("data: "):]...)
			sawField = true
		}
	}
}

func decodeFrame(t *testing.T, frame *sseFrame) *rpcEnvelope {
	t.Helper()
	env := &rpcEnvelope{}
	require.NoError(t, json.Unmarshal(frame.data, env))
	return env
}

// openSessionStream opens the session's GET stream and returns a reader over
// its frames plus a cancel that tears the stream down.
func openSessionStream(t *testing.T, srv *httptest.Server, sessionID, lastEventID string) (*http.Response, *bufio.Reader, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+DefaultEndpointPath, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", contentTypeSSE)
	req.Header.Set(MCPSessionHeader, sessionID)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	if resp.StatusCode != http.StatusOK {
		cancel()
	}
	return resp, bufio.NewReader(resp.Body), cancel
}

func TestInitializeHandshake(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := doPost(t, srv, "", nil, rpcBody(t, 1, "initialize", schema.InitializeRequestParams{
		ProtocolVersion: schema.PROTOCOL_VERSION_2025_03_26,
		ClientInfo:      schema.Implementation{Name: "test-client", Version: "1.0"},
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(MCPSessionHeader))
	assert.Contains(t, resp.Header.Get("Content-Type"), contentTypeJSON)

	env := decodeEnvelope(t, resp)
	require.Nil(t, env.Error)

	var result schema.InitializeResult
	require.NoError(t, json.Unmarshal(env.Result, &result))
	assert.Equal(t, schema.PROTOCOL_VERSION_2025_03_26, result.ProtocolVersion)
	assert.Equal(t, "wire-test", result.ServerInfo.Name)
	require.NotNil(t, result.Capabilities.Tools)
	assert.True(t, result.Capabilities.Tools.ListChanged)
}

func TestToolsListAndCallInline(t *testing.T) {
	srv := newTestServer(t, nil)
	sessionID := initSession(t, srv, schema.PROTOCOL_VERSION_2025_03_26, schema.ClientCapabilities{})

	resp := doPost(t, srv, sessionID, nil, rpcBody(t, 2, "tools/list", map[string]interface{}{}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	require.Nil(t, env.Error)

	var list schema.ListToolsResult
	require.NoError(t, json.Unmarshal(env.Result, &list))
	names := make([]string, 0, len(list.Tools))
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.Contains(t, names, "echo")
	assert.Contains(t, names, "countdown")

	resp = doPost(t, srv, sessionID, nil, rpcBody(t, 3, "tools/call", map[string]interface{}{
		"name":      "echo",
		"arguments": map[string]interface{}{"text": "hi"},
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sessionID, resp.Header.Get(MCPSessionHeader))
	env = decodeEnvelope(t, resp)
	require.Nil(t, env.Error)

	text, isError := toolText(t, env.Result)
	assert.False(t, isError)
	assert.Equal(t, "echo: hi", text)
}

func TestCallOnRequestStream(t *testing.T) {
	srv := newTestServer(t, nil)
	sessionID := initSession(t, srv, schema.PROTOCOL_VERSION_2025_03_26, schema.ClientCapabilities{})

	resp := doPost(t, srv, sessionID, map[string]string{"Accept": contentTypeSSE},
		rpcBody(t, 7, "tools/call", map[string]interface{}{
			"name":      "countdown",
			"arguments": map[string]interface{}{},
			"_meta":     map[string]interface{}{"progressToken": "tok-1"},
		}))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), contentTypeSSE)

	br := bufio.NewReader(resp.Body)
	for i := 1; i <= 3; i++ {
		frame := readFrame(t, br)
		assert.Empty(t, frame.id, "per-request streams are not resumable")

		env := decodeFrame(t, frame)
		require.Equal(t, schema.MethodNotificationProgress, env.Method)
		var params schema.ProgressNotificationParams
		require.NoError(t, json.Unmarshal(env.Params, &params))
		assert.Equal(t, "tok-1", params.ProgressToken.Value)
		assert.Equal(t, float64(i), params.Progress)
	}

	final := readFrame(t, br)
	assert.Empty(t, final.id)
	env := decodeFrame(t, final)
	assert.Equal(t, json.RawMessage("7"), env.ID)
	require.Nil(t, env.Error)
	text, isError := toolText(t, env.Result)
	assert.False(t, isError)
	assert.Equal(t, "done", text)
}

func TestSessionStreamReplay(t *testing.T) {
	srv := newTestServer(t, nil)
	sessionID := initSession(t, srv, schema.PROTOCOL_VERSION_2025_03_26, schema.ClientCapabilities{})

	// Two notifications land in the session's event buffer while no stream
	// is connected.
	for i, note := range []string{"first", "second"} {
		resp := doPost(t, srv, sessionID, nil, rpcBody(t, 10+i, "tools/call", map[string]interface{}{
			"name":      "announce",
			"arguments": map[string]interface{}{"note": note},
		}))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	// Reconnecting after event 1#session replays only the second event,
	// keeping its original id.
	resp, br, cancel := openSessionStream(t, srv, sessionID, "1#session")
	defer cancel()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	frame := readFrame(t, br)
	assert.Equal(t, "2#session", frame.id)
	env := decodeFrame(t, frame)
	assert.Equal(t, schema.MethodNotificationMessage, env.Method)
	assert.Contains(t, string(env.Params), "second")
}

func TestSessionStreamInitialEventAndConflict(t *testing.T) {
	srv := newTestServer(t, nil)
	sessionID := initSession(t, srv, schema.PROTOCOL_VERSION_2025_03_26, schema.ClientCapabilities{})

	resp, br, cancel := openSessionStream(t, srv, sessionID, "")
	defer cancel()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	frame := readFrame(t, br)
	assert.JSONEq(t, `{"type":"connection","status":"established"}`, string(frame.data))

	// A second stream for the same session is rejected.
	dup, _, dupCancel := openSessionStream(t, srv, sessionID, "")
	defer dupCancel()
	defer dup.Body.Close()
	assert.Equal(t, http.StatusConflict, dup.StatusCode)
}

func TestElicitationRoundTrip(t *testing.T) {
	srv := newTestServer(t, nil)
	sessionID := initSession(t, srv, schema.PROTOCOL_VERSION_2025_03_26, schema.ClientCapabilities{
		Elicitation: &struct{}{},
	})

	resp := doPost(t, srv, sessionID, map[string]string{"Accept": contentTypeSSE},
		rpcBody(t, 5, "tools/call", map[string]interface{}{
			"name":      "ask",
			"arguments": map[string]interface{}{},
		}))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	br := bufio.NewReader(resp.Body)

	// The server-to-client request rides the originating request's stream.
	frame := readFrame(t, br)
	ask := decodeFrame(t, frame)
	require.Equal(t, schema.MethodElicitationCreate, ask.Method)
	require.NotNil(t, ask.ID)
	var askParams schema.ElicitRequestParams
	require.NoError(t, json.Unmarshal(ask.Params, &askParams))
	assert.Equal(t, "favorite color?", askParams.Message)

	var elicitID string
	require.NoError(t, json.Unmarshal(ask.ID, &elicitID))

	// Answer on a plain POST; responses are acknowledged with 202.
	answer := fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"result":{"action":"accept","content":{"color":"blue"}}}`, elicitID)
	answerResp := doPost(t, srv, sessionID, nil, []byte(answer))
	assert.Equal(t, http.StatusAccepted, answerResp.StatusCode)
	answerResp.Body.Close()

	final := decodeFrame(t, readFrame(t, br))
	assert.Equal(t, json.RawMessage("5"), final.ID)
	require.Nil(t, final.Error)
	text, isError := toolText(t, final.Result)
	assert.False(t, isError)
	assert.Equal(t, "color: blue", text)
}

func TestElicitationTimeout(t *testing.T) {
	srv := newTestServer(t, []mcp.ManagerOption{mcp.WithRequestTimeout(100 * time.Millisecond)})
	sessionID := initSession(t, srv, schema.PROTOCOL_VERSION_2025_03_26, schema.ClientCapabilities{
		Elicitation: &struct{}{},
	})

	resp := doPost(t, srv, sessionID, map[string]string{"Accept": contentTypeSSE},
		rpcBody(t, 6, "tools/call", map[string]interface{}{
			"name":      "ask",
			"arguments": map[string]interface{}{},
		}))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	br := bufio.NewReader(resp.Body)

	ask := decodeFrame(t, readFrame(t, br))
	require.Equal(t, schema.MethodElicitationCreate, ask.Method)

	// Never answer; the pending request times out and the tool reports the
	// failure as an execution error.
	final := decodeFrame(t, readFrame(t, br))
	assert.Equal(t, json.RawMessage("6"), final.ID)
	require.Nil(t, final.Error)
	_, isError := toolText(t, final.Result)
	assert.True(t, isError)
}

func TestProtocolVersionPinning(t *testing.T) {
	srv := newTestServer(t, nil)
	sessionID := initSession(t, srv, schema.PROTOCOL_VERSION_2025_06_18, schema.ClientCapabilities{})

	listBody := rpcBody(t, 2, "tools/list", map[string]interface{}{})

	// Missing header on a 2025-06-18 session is rejected.
	resp := doPost(t, srv, sessionID, nil, listBody)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	require.NotNil(t, env.Error)
	assert.Equal(t, shared.JSONRPCErrorInvalidParams, env.Error.Code)
	data, ok := env.Error.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, schema.PROTOCOL_VERSION_2025_06_18, data["expectedVersion"])
	assert.Equal(t, "", data["receivedVersion"])

	// A mismatched header is rejected too.
	resp = doPost(t, srv, sessionID, map[string]string{MCPProtocolVersionHeader: "2024-11-05"}, listBody)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env = decodeEnvelope(t, resp)
	require.NotNil(t, env.Error)

	// The matching header passes.
	resp = doPost(t, srv, sessionID, map[string]string{MCPProtocolVersionHeader: schema.PROTOCOL_VERSION_2025_06_18}, listBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env = decodeEnvelope(t, resp)
	assert.Nil(t, env.Error)
}

func TestBatchAllowedOn20250326(t *testing.T) {
	srv := newTestServer(t, nil)
	sessionID := initSession(t, srv, schema.PROTOCOL_VERSION_2025_03_26, schema.ClientCapabilities{})

	batch := []byte(`[
		{"jsonrpc":"2.0","id":1,"method":"ping"},
		{"jsonrpc":"2.0","id":2,"method":"ping"}
	]`)
	resp := doPost(t, srv, sessionID, nil, batch)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var responses []rpcEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&responses))
	require.Len(t, responses, 2)
	for _, env := range responses {
		assert.Nil(t, env.Error)
	}
}

func TestBatchRejectedOn20250618(t *testing.T) {
	srv := newTestServer(t, nil)
	sessionID := initSession(t, srv, schema.PROTOCOL_VERSION_2025_06_18, schema.ClientCapabilities{})

	batch := []byte(`[
		{"jsonrpc":"2.0","id":1,"method":"ping"},
		{"jsonrpc":"2.0","id":2,"method":"ping"}
	]`)
	resp := doPost(t, srv, sessionID, map[string]string{MCPProtocolVersionHeader: schema.PROTOCOL_VERSION_2025_06_18}, batch)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	require.NotNil(t, env.Error)
	assert.Equal(t, shared.JSONRPCErrorInvalidRequest, env.Error.Code)
	assert.Contains(t, env.Error.Message, "Batch requests are not supported")
}

func TestNotificationsOnlyPost(t *testing.T) {
	srv := newTestServer(t, nil)
	sessionID := initSession(t, srv, schema.PROTOCOL_VERSION_2025_03_26, schema.ClientCapabilities{})

	resp := doPost(t, srv, sessionID, nil, rpcBody(t, nil, schema.MethodNotificationInitialized, nil))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	// Opening a stream for notifications is a protocol violation.
	resp = doPost(t, srv, sessionID, map[string]string{"Accept": contentTypeSSE},
		rpcBody(t, nil, schema.MethodNotificationInitialized, nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestDeleteSession(t *testing.T) {
	srv := newTestServer(t, nil)
	sessionID := initSession(t, srv, schema.PROTOCOL_VERSION_2025_03_26, schema.ClientCapabilities{})

	req, err := http.NewRequest(http.MethodDelete, srv.URL+DefaultEndpointPath, nil)
	require.NoError(t, err)
	req.Header.Set(MCPSessionHeader, sessionID)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The session is gone.
	resp = doPost(t, srv, sessionID, nil, rpcBody(t, 2, "tools/list", map[string]interface{}{}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Deleting again fails the same way.
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// DELETE without a session header is malformed.
	req2, err := http.NewRequest(http.MethodDelete, srv.URL+DefaultEndpointPath, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req2)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGETPreconditions(t *testing.T) {
	srv := newTestServer(t, nil)
	sessionID := initSession(t, srv, schema.PROTOCOL_VERSION_2025_03_26, schema.ClientCapabilities{})

	// Accept must include text/event-stream.
	req, err := http.NewRequest(http.MethodGet, srv.URL+DefaultEndpointPath, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set(MCPSessionHeader, sessionID)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Missing session header.
	req, err = http.NewRequest(http.MethodGet, srv.URL+DefaultEndpointPath, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", contentTypeSSE)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Unknown session.
	req.Header.Set(MCPSessionHeader, "no-such-session")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// A replay cursor that cannot be parsed fails before the stream opens.
	req, err = http.NewRequest(http.MethodGet, srv.URL+DefaultEndpointPath, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", contentTypeSSE)
	req.Header.Set(MCPSessionHeader, sessionID)
	req.Header.Set("Last-Event-ID", "not-an-id")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close()
}

func TestStatelessMode(t *testing.T) {
	srv := newTestServer(t, nil, WithStateless())

	resp := doPost(t, srv, "", nil, rpcBody(t, 1, "initialize", schema.InitializeRequestParams{
		ProtocolVersion: schema.PROTOCOL_VERSION_2025_03_26,
		ClientInfo:      schema.Implementation{Name: "test-client", Version: "1.0"},
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(MCPSessionHeader), "stateless servers allocate no sessions")
	resp.Body.Close()

	// No sessions means no session streams and nothing to delete.
	req, err := http.NewRequest(http.MethodGet, srv.URL+DefaultEndpointPath, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", contentTypeSSE)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()

	req, err = http.NewRequest(http.MethodDelete, srv.URL+DefaultEndpointPath, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()

	// Tool calls still work without a session.
	resp = doPost(t, srv, "", nil, rpcBody(t, 2, "tools/call", map[string]interface{}{
		"name":      "echo",
		"arguments": map[string]interface{}{"text": "stateless"},
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	require.Nil(t, env.Error)
	text, _ := toolText(t, env.Result)
	assert.Equal(t, "echo: stateless", text)
}

func TestHostAndOriginAllowLists(t *testing.T) {
	srv := newTestServer(t, nil, WithAllowedHosts("allowed.example"), WithAllowedOrigins("https://ok.example"))

	// The httptest host is not on the allow-list.
	resp := doPost(t, srv, "", nil, rpcBody(t, 1, "ping", nil))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	open := newTestServer(t, nil, WithAllowedOrigins("https://ok.example"))

	// A disallowed Origin is rejected.
	resp = doPost(t, open, "", map[string]string{"Origin": "https://evil.example"}, rpcBody(t, 1, "ping", nil))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Requests without an Origin header pass.
	resp = doPost(t, open, "", nil, rpcBody(t, 1, "ping", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

type keyAuthManager struct {
	key string
}

func (a *keyAuthManager) Authenticate(authKey, remoteAddr string) (*AuthInfo, error) {
	if authKey != a.key {
		return nil, ErrUnauthorized
	}
	return &AuthInfo{UserID: "tester", RemoteAddr: remoteAddr}, nil
}

func TestAuthentication(t *testing.T) {
	srv := newTestServer(t, nil, WithAuthManager(&keyAuthManager{key: "secret"}))

	resp := doPost(t, srv, "", nil, rpcBody(t, 1, "ping", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = doPost(t, srv, "", map[string]string{"Authorization": "Bearer secret"}, rpcBody(t, 1, "ping", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doPost(t, srv, "", map[string]string{"X-Api-Key": "secret"}, rpcBody(t, 1, "ping", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestMethodHandling(t *testing.T) {
	srv := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodPut, srv.URL+DefaultEndpointPath, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()

	req, err = http.NewRequest(http.MethodOptions, srv.URL+DefaultEndpointPath, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Allow"), http.MethodPost)
	resp.Body.Close()
}

func TestClientResponseCorrelation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	manager := mcp.NewManager(logger, schema.Implementation{Name: "wire-test", Version: "0.1.0"})
	tr, err := New(manager, logger, nil)
	require.NoError(t, err)
	defer tr.Shutdown(context.Background())

	ctx := context.Background()
	sessionID := tr.store.GenerateSessionID()
	require.NoError(t, tr.store.Create(ctx, sessionID, session.Meta{
		ProtocolVersion: schema.PROTOCOL_VERSION_2025_03_26,
	}))

	// A marker event so the outgoing request can be read back via Replay.
	markerID, err := tr.store.AppendEvent(ctx, sessionID, sessionStreamID, []byte(`{}`))
	require.NoError(t, err)

	conn := &transportConn{t: tr, sessionID: sessionID}
	type outcome struct {
		raw    json.RawMessage
		rpcErr *shared.JSONRPCError
	}
	done := make(chan outcome, 1)
	go func() {
		raw, rpcErr := conn.RequestClient(ctx, schema.MethodElicitationCreate,
			&schema.ElicitRequestParams{Message: "name?"}, 5*time.Second)
		done <- outcome{raw, rpcErr}
	}()

	// With no stream connected the request lands on the session's persisted
	// stream; pick its id up the way a reconnecting client would.
	var elicitID string
	require.Eventually(t, func() bool {
		found := false
		_ = tr.store.Replay(ctx, sessionID, markerID, func(_ string, message []byte) error {
			env := &rpcEnvelope{}
			if jerr := json.Unmarshal(message, env); jerr != nil {
				return jerr
			}
			if env.Method == schema.MethodElicitationCreate {
				require.NoError(t, json.Unmarshal(env.ID, &elicitID))
				found = true
			}
			return nil
		})
		return found
	}, 2*time.Second, 10*time.Millisecond, "outgoing request never persisted")

	// Deliver the client's answer through the POST response path; the
	// pending entry must resolve even though the wire id round-tripped
	// through JSON.
	answer := fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"result":{"action":"accept","content":{"name":"Alice"}}}`, elicitID)
	msgs, _, perr := shared.ParseMessages([]byte(answer))
	require.NoError(t, perr)
	require.Len(t, msgs, 1)
	tr.forwardResponse(ctx, sessionID, msgs[0], logger)

	select {
	case out := <-done:
		require.Nil(t, out.rpcErr)
		assert.Contains(t, string(out.raw), "Alice")
	case <-time.After(2 * time.Second):
		t.Fatal("pending request was never resolved")
	}
}

func TestMalformedJSONBody(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := doPost(t, srv, "", nil, []byte(`{"jsonrpc":"2.0",`))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	require.NotNil(t, env.Error)
	assert.Equal(t, shared.JSONRPCErrorParseError, env.Error.Code)
}
