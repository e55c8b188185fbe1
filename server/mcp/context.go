package mcp

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server/pending"
	"github.com/mcpwire/mcpwire/server/session"
	"github.com/mcpwire/mcpwire/shared"
	"github.com/mcpwire/mcpwire/shared/schema"
)

// ToolResult is what a tool handler returns; the tools capability wraps it
// into the wire-level CallToolResult after output-schema validation.
type ToolResult struct {
	Meta              schema.Meta
	Content           []schema.Content
	StructuredContent json.RawMessage
	IsError           bool
}

// ClientConn is the transport-side contract a RequestContext uses to reach
// the client that sent the current message: routing notifications onto the
// right stream and issuing server-to-client requests.
type ClientConn interface {
	// SendNotification delivers a notification. When related is true the
	// notification is tied to the originating request's stream and never
	// persisted; otherwise it follows session-scoped routing.
	SendNotification(ctx context.Context, method string, params interface{}, related bool) error

	// RequestClient sends a server-to-client request and blocks until the
	// client answers, the timeout fires, or ctx is done.
	RequestClient(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, *shared.JSONRPCError)
}

// Client gives handlers a read-only view of the negotiated client identity
// and capabilities.
type Client struct {
	Info         schema.Implementation
	capabilities *schema.ClientCapabilities
}

// Supports checks a dotted capability path such as "sampling", "elicitation"
// or "roots.listChanged" against what the client declared at initialize.
func (c Client) Supports(capability string) bool {
	if c.capabilities == nil {
		return false
	}
	return c.capabilities.Supports(capability)
}

// RequestContext carries one inbound message through the middleware chain and
// into its handler, together with everything the handler may need: session
// metadata, scratch state, and the channel back to the client.
type RequestContext struct {
	Ctx     context.Context
	Message *shared.Message

	// SessionID is empty in stateless mode or before initialize.
	SessionID string
	// Meta is the stored session metadata; nil when there is no session.
	Meta *session.Meta
	// Client describes the connected client; zero value before initialize.
	Client Client

	// State is handler-scoped scratch space, typically filled by middleware
	// (auth results, tenant ids) and read by handlers.
	State map[string]interface{}
	// Env carries deployment-provided key/value pairs, shared by all
	// requests dispatched through the same manager.
	Env map[string]string
	// AuthInfo is whatever the transport's authenticator attached.
	AuthInfo interface{}

	// NegotiatedMeta is produced by the initialize handler; the transport
	// uses it to allocate the session and emit MCP-Session-Id.
	NegotiatedMeta *session.Meta

	Logger *zap.Logger

	conn           ClientConn
	requestTimeout time.Duration

	result    interface{}
	responded bool
}

// NewRequestContext builds the context for one inbound message. conn may be
// nil for dispatch paths that cannot reach the client (tests, internal calls).
func NewRequestContext(ctx context.Context, msg *shared.Message, meta *session.Meta, conn ClientConn, logger *zap.Logger) *RequestContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	rc := &RequestContext{
		Ctx:            ctx,
		Message:        msg,
		SessionID:      msg.SessionID,
		Meta:           meta,
		State:          make(map[string]interface{}),
		Logger:         logger,
		conn:           conn,
		requestTimeout: pending.DefaultTimeout,
	}
	if meta != nil {
		rc.Client = Client{Info: meta.ClientInfo, capabilities: &meta.ClientCapabilities}
	}
	return rc
}

// ProtocolVersion returns the session's negotiated protocol version, falling
// back to the oldest supported version when no session exists.
func (rc *RequestContext) ProtocolVersion() string {
	if rc.Meta != nil && rc.Meta.ProtocolVersion != "" {
		return rc.Meta.ProtocolVersion
	}
	return schema.OLDEST_PROTOCOL_VERSION
}

// respond records the handler outcome so the dispatcher can tell "responded
// with null" apart from "never responded".
func (rc *RequestContext) respond(result interface{}) {
	rc.result = result
	rc.responded = true
}

// requestMetaParams is the slice of params every request may carry under
// "_meta".
type requestMetaParams struct {
	Meta *schema.RequestMeta `json:"_meta,omitempty"`
}

// ProgressToken extracts the progress token the client attached to the
// current request, if any.
func (rc *RequestContext) ProgressToken() *schema.ProgressToken {
	if rc.Message == nil || rc.Message.Params == nil {
		return nil
	}
	var params requestMetaParams
	if err := json.Unmarshal(*rc.Message.Params, &params); err != nil || params.Meta == nil {
		return nil
	}
	return params.Meta.ProgressToken
}

// Progress emits a notifications/progress tied to the current request. It is
// a no-op when the client did not attach a progress token.
func (rc *RequestContext) Progress(progress float64, total *float64, message string) error {
	token := rc.ProgressToken()
	if token == nil {
		return nil
	}
	if rc.conn == nil {
		return nil
	}
	params := &schema.ProgressNotificationParams{
		ProgressToken: *token,
		Progress:      progress,
		Total:         total,
	}
	if message != "" {
		params.Message = &message
	}
	return rc.conn.SendNotification(rc.Ctx, schema.MethodNotificationProgress, params, true)
}

// Notify emits a session-scoped notification (persisted and replayable when
// the session has a stream).
func (rc *RequestContext) Notify(method string, params interface{}) error {
	if rc.conn == nil {
		return nil
	}
	return rc.conn.SendNotification(rc.Ctx, method, params, false)
}

// Log emits a notifications/message at the given level, honoring the
// threshold the client set via logging/setLevel. Messages below the
// threshold are dropped silently.
func (rc *RequestContext) Log(level schema.LoggingLevel, loggerName string, data interface{}) error {
	if rc.Meta != nil && rc.Meta.LogLevel != "" && !schema.LevelIncludes(rc.Meta.LogLevel, level) {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return rc.Notify(schema.MethodNotificationMessage, &schema.LoggingMessageNotificationParams{
		Level:  level,
		Logger: loggerName,
		Data:   raw,
	})
}

// Elicit asks the connected client for structured input and blocks until it
// answers or the timeout fires. The requested schema is reduced to the flat
// subset elicitation supports before it goes out.
func (rc *RequestContext) Elicit(ctx context.Context, message string, requestedSchema json.RawMessage) (*schema.ElicitResult, error) {
	if !rc.Client.Supports("elicitation") {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidRequest, "client does not support elicitation")
	}
	if rc.conn == nil {
		return nil, shared.Errorf(shared.JSONRPCErrorInternal, "no client connection available")
	}
	projected, err := ProjectElicitationSchema(requestedSchema)
	if err != nil {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidParams, "invalid elicitation schema: %v", err)
	}
	raw, rpcErr := rc.conn.RequestClient(ctx, schema.MethodElicitationCreate, &schema.ElicitRequestParams{
		Message:         message,
		RequestedSchema: projected,
	}, rc.requestTimeout)
	if rpcErr != nil {
		return nil, rpcErr
	}
	result := &schema.ElicitResult{}
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, shared.Errorf(shared.JSONRPCErrorInternal, "invalid elicitation result: %v", err)
	}
	return result, nil
}

// Sample asks the connected client to run an LLM completion on the server's
// behalf and blocks until it answers or the timeout fires.
func (rc *RequestContext) Sample(ctx context.Context, params *schema.CreateMessageRequestParams) (*schema.CreateMessageResult, error) {
	if !rc.Client.Supports("sampling") {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidRequest, "client does not support sampling")
	}
	if rc.conn == nil {
		return nil, shared.Errorf(shared.JSONRPCErrorInternal, "no client connection available")
	}
	raw, rpcErr := rc.conn.RequestClient(ctx, schema.MethodSamplingCreateMessage, params, rc.requestTimeout)
	if rpcErr != nil {
		return nil, rpcErr
	}
	result := &schema.CreateMessageResult{}
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, shared.Errorf(shared.JSONRPCErrorInternal, "invalid sampling result: %v", err)
	}
	return result, nil
}
