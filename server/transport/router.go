package transport

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server/mcp"
	"github.com/mcpwire/mcpwire/shared"
	"github.com/mcpwire/mcpwire/shared/schema"
)

// sessionStreamID names the session's persisted event stream. Per-request
// streams are ephemeral and never persist, so one durable stream per session
// is enough.
const sessionStreamID = "session"

var _ mcp.Broadcaster = (*Transport)(nil)

// Broadcast delivers a notification to every connected session stream.
// Only the list_changed family crosses session boundaries; anything else is
// discarded here because it is meaningless without a session.
func (t *Transport) Broadcast(method string, params interface{}) {
	if !strings.HasSuffix(method, "/list_changed") {
		t.logger.Debug("Discarding broadcast of session-scoped method", zap.String("method", method))
		return
	}
	data, err := marshalNotification(method, params)
	if err != nil {
		t.logger.Error("Failed to marshal broadcast notification", zap.Error(err), zap.String("method", method))
		return
	}
	writers := t.writers.SessionWriters()
	for _, w := range writers {
		if err := w.Write(data, ""); err != nil {
			t.logger.Debug("Broadcast write failed", zap.Error(err))
		}
	}
	t.logger.Debug("Broadcast notification sent",
		zap.String("method", method),
		zap.Int("streams", len(writers)),
	)
}

func marshalNotification(method string, params interface{}) ([]byte, error) {
	msg, err := shared.NewNotification(method, params)
	if err != nil {
		return nil, err
	}
	return marshalFrame(msg)
}

// marshalFrame renders an outgoing message with the jsonrpc envelope field.
func marshalFrame(msg *shared.Message) ([]byte, error) {
	frame := struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      *schema.RequestID `json:"id,omitempty"`
		Method  *string           `json:"method,omitempty"`
		Params  *json.RawMessage  `json:"params,omitempty"`
	}{
		JSONRPC: shared.JSONRPCVersion,
		ID:      msg.ID,
		Method:  msg.Method,
		Params:  msg.Params,
	}
	return json.Marshal(&frame)
}

// routeSessionNotification implements the session-scoped delivery policy:
// persist on the session's event stream, then push to the live session
// writer if one is connected. Persisting first keeps replay complete even
// when no stream is open.
func (t *Transport) routeSessionNotification(ctx context.Context, sessionID string, data []byte) {
	eventID := ""
	if t.store != nil {
		id, err := t.store.AppendEvent(ctx, sessionID, sessionStreamID, data)
		if err != nil {
			t.logger.Error("Failed to persist session notification",
				zap.Error(err), zap.String("sessionID", sessionID))
		} else {
			eventID = id
		}
	}
	if w := t.writers.Get(sessionKey(sessionID)); w != nil {
		if err := w.Write(data, eventID); err != nil {
			t.logger.Debug("Session stream write failed",
				zap.Error(err), zap.String("sessionID", sessionID))
		}
	}
}

// requestWriter finds the per-request stream for a message: session-scoped
// first, then the stateless namespace.
func (t *Transport) requestWriter(sessionID, requestID string) *SSEWriter {
	if sessionID != "" {
		if w := t.writers.Get(sessionRequestKey(sessionID, requestID)); w != nil {
			return w
		}
	}
	return t.writers.Get(requestKey(requestID))
}

var _ mcp.ClientConn = (*transportConn)(nil)

// transportConn is the per-message ClientConn handed to handlers: it knows
// which session and which originating request the message belongs to, so it
// can route notifications and server-to-client requests onto the right
// stream.
type transportConn struct {
	t         *Transport
	sessionID string
	requestID string // originating client request id, "" for notifications
}

func (c *transportConn) SendNotification(ctx context.Context, method string, params interface{}, related bool) error {
	data, err := marshalNotification(method, params)
	if err != nil {
		return err
	}

	if related && c.requestID != "" {
		// Request-scoped notifications ride the originating request's
		// stream and are never persisted.
		if w := c.t.requestWriter(c.sessionID, c.requestID); w != nil {
			return w.Write(data, "")
		}
		// No per-request stream; fall through to the session stream so
		// progress is not silently lost.
	}

	if c.sessionID != "" {
		c.t.routeSessionNotification(ctx, c.sessionID, data)
		return nil
	}

	// No session and no per-request stream: only list_changed survives as
	// a broadcast; everything else is dropped.
	if strings.HasSuffix(method, "/list_changed") {
		c.t.Broadcast(method, params)
	}
	return nil
}

func (c *transportConn) RequestClient(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, *shared.JSONRPCError) {
	if c.sessionID == "" {
		return nil, shared.Errorf(shared.JSONRPCErrorInvalidRequest, "server-to-client requests require a session")
	}

	// The pending entry is keyed by RequestID.String() so the lookup in
	// forwardResponse, which only has the echoed wire id, lands on the same
	// key.
	requestID := schema.RequestID{Value: uuid.NewString()}
	outcomeCh, err := c.t.pending.CreatePending(ctx, c.sessionID, requestID.String(), timeout)
	if err != nil {
		return nil, shared.NewJSONRPCError(err)
	}

	msg, err := shared.NewRequest(requestID, method, params)
	if err != nil {
		return nil, shared.NewJSONRPCError(err)
	}
	data, err := marshalFrame(msg)
	if err != nil {
		return nil, shared.NewJSONRPCError(err)
	}

	// Prefer the originating request's stream; fall back to the session
	// stream (persisted, so a reconnecting client still sees it).
	if w := c.t.requestWriter(c.sessionID, c.requestID); w != nil {
		if err := w.Write(data, ""); err != nil {
			c.t.logger.Debug("Per-request stream write failed, using session stream", zap.Error(err))
			c.t.routeSessionNotification(ctx, c.sessionID, data)
		}
	} else {
		c.t.routeSessionNotification(ctx, c.sessionID, data)
	}

	select {
	case outcome := <-outcomeCh:
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		return outcome.Result, nil
	case <-ctx.Done():
		c.t.pending.RejectPending(context.Background(), c.sessionID, requestID.String(),
			shared.Errorf(shared.JSONRPCErrorTimeout, "request cancelled"))
		return nil, shared.Errorf(shared.JSONRPCErrorTimeout, "request cancelled: %v", ctx.Err())
	}
}
