package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server/mcp"
	"github.com/mcpwire/mcpwire/server/session"
	"github.com/mcpwire/mcpwire/shared"
	"github.com/mcpwire/mcpwire/shared/schema"
)

// maxBodySize caps POST bodies before parsing.
const maxBodySize = 4 << 20 // 4MB

// handlePOST processes JSON-RPC traffic: client responses are forwarded to
// the pending adapter, requests are dispatched and answered inline as JSON
// or streamed on an ephemeral per-request SSE stream.
func (t *Transport) handlePOST(w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	authInfo, err := t.authenticate(r)
	if err != nil {
		logger.Warn("Authentication failed", zap.Error(err), zap.String("remoteAddr", r.RemoteAddr))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	bodyBytes, bodyErr := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if bodyErr != nil {
		logger.Error("Failed to read request body", zap.Error(bodyErr))
		sendJSONRPCError(w, http.StatusBadRequest, nil,
			shared.Errorf(shared.JSONRPCErrorParseError, "failed to read request body"), logger)
		return
	}
	defer r.Body.Close()

	msgs, isBatch, parseErr := shared.ParseMessages(bodyBytes)
	if parseErr != nil {
		logger.Warn("Failed to parse JSON-RPC message(s)", zap.Error(parseErr))
		sendJSONRPCError(w, http.StatusBadRequest, nil, shared.NewJSONRPCError(parseErr), logger)
		return
	}

	// --- Resolve the session ---
	sessionID := r.Header.Get(MCPSessionHeader)
	var meta *session.Meta
	if sessionID != "" && !t.stateless {
		var getErr error
		meta, getErr = t.store.Get(r.Context(), sessionID)
		if getErr != nil {
			logger.Warn("Unknown session", zap.String("sessionID", sessionID), zap.Error(getErr))
			http.Error(w, "Bad Request: session expired or invalid", http.StatusBadRequest)
			return
		}
		if err := t.store.Touch(r.Context(), sessionID); err != nil {
			logger.Debug("Failed to touch session", zap.Error(err))
		}
	}

	isInitialize := len(msgs) > 0 && msgs[0].Method != nil && *msgs[0].Method == "initialize"

	// --- Protocol version pinning ---
	if meta != nil && !isInitialize {
		if rpcErr := checkProtocolVersionHeader(r, meta.ProtocolVersion); rpcErr != nil {
			sendJSONRPCError(w, http.StatusBadRequest, nil, rpcErr, logger)
			return
		}
	}

	// --- Batch policy ---
	if isBatch {
		version := schema.OLDEST_PROTOCOL_VERSION
		if meta != nil {
			version = meta.ProtocolVersion
		}
		if !schema.VersionAllowsBatch(version) {
			sendJSONRPCError(w, http.StatusBadRequest, nil,
				shared.Errorf(shared.JSONRPCErrorInvalidRequest, "Batch requests are not supported"), logger)
			return
		}
	}

	// --- Split traffic by frame kind ---
	var requests []*shared.Message
	var notifications []*shared.Message
	responseCount := 0
	for _, msg := range msgs {
		msg.SessionID = sessionID
		switch {
		case msg.IsResponse():
			t.forwardResponse(r.Context(), sessionID, msg, logger)
			responseCount++
		case msg.IsRequest():
			requests = append(requests, msg)
		default:
			notifications = append(notifications, msg)
		}
	}

	// Client responses are acknowledged without content.
	if len(requests) == 0 && len(notifications) == 0 {
		w.WriteHeader(http.StatusAccepted)
		logger.Debug("POST carried only responses, returning 202", zap.Int("count", responseCount))
		return
	}

	wantsSSE := acceptsSSE(r)

	// Notifications never produce responses; streaming them is a protocol
	// violation on the per-request SSE path.
	if len(requests) == 0 {
		if wantsSSE {
			sendJSONRPCError(w, http.StatusBadRequest, nil,
				shared.Errorf(shared.JSONRPCErrorInvalidRequest, "cannot open a stream for notifications"), logger)
			return
		}
		for _, msg := range notifications {
			t.dispatch(r.Context(), msg, meta, authInfo, logger)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if wantsSSE {
		t.respondOnStream(w, r, sessionID, meta, authInfo, requests, notifications, logger)
		return
	}
	t.respondInline(w, r, sessionID, meta, authInfo, requests, notifications, isBatch, isInitialize, logger)
}

// dispatch runs one message through the dispatcher and returns the response
// envelope bytes (nil for notifications).
func (t *Transport) dispatch(ctx context.Context, msg *shared.Message, meta *session.Meta, authInfo *AuthInfo, logger *zap.Logger) ([]byte, *mcp.RequestContext) {
	conn := &transportConn{t: t, sessionID: msg.SessionID}
	if msg.ID != nil {
		conn.requestID = msg.ID.String()
	}
	rc := mcp.NewRequestContext(ctx, msg, meta, conn, logger)
	if authInfo != nil {
		rc.AuthInfo = authInfo
	}

	result, rpcErr := t.manager.Dispatch(rc)
	if msg.IsNotification() {
		return nil, rc
	}

	var data []byte
	var err error
	if rpcErr != nil {
		data, err = shared.MarshalResponse(msg.ID, nil, rpcErr)
	} else {
		data, err = shared.MarshalResponse(msg.ID, result, nil)
	}
	if err != nil {
		logger.Error("Failed to marshal response", zap.Error(err))
		data, _ = shared.MarshalResponse(msg.ID, nil,
			shared.Errorf(shared.JSONRPCErrorInternal, "failed to marshal response"))
	}
	return data, rc
}

// respondInline answers requests with application/json in the POST response.
func (t *Transport) respondInline(w http.ResponseWriter, r *http.Request, sessionID string, meta *session.Meta, authInfo *AuthInfo, requests, notifications []*shared.Message, isBatch, isInitialize bool, logger *zap.Logger) {
	for _, msg := range notifications {
		t.dispatch(r.Context(), msg, meta, authInfo, logger)
	}

	responses := make([]json.RawMessage, 0, len(requests))
	for _, msg := range requests {
		data, rc := t.dispatch(r.Context(), msg, meta, authInfo, logger)
		if isInitialize && rc.NegotiatedMeta != nil {
			if id := t.createSession(r.Context(), rc.NegotiatedMeta, logger); id != "" {
				w.Header().Set(MCPSessionHeader, id)
			}
		}
		responses = append(responses, data)
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	if sessionID != "" {
		w.Header().Set(MCPSessionHeader, sessionID)
	}
	w.WriteHeader(http.StatusOK)

	if isBatch {
		writeJSONArray(w, responses, logger)
		return
	}
	if len(responses) == 1 {
		if _, err := w.Write(responses[0]); err != nil {
			logger.Error("Failed to write response", zap.Error(err))
		}
	}
}

// respondOnStream answers requests on an ephemeral per-request SSE stream.
// Events carry no id: line; these streams are not resumable.
func (t *Transport) respondOnStream(w http.ResponseWriter, r *http.Request, sessionID string, meta *session.Meta, authInfo *AuthInfo, requests, notifications []*shared.Message, logger *zap.Logger) {
	// Claim the stream keys before sending headers so a duplicate request
	// id can be rejected with a clean 409.
	keys := make([]string, 0, len(requests))
	for _, msg := range requests {
		rid := msg.ID.String()
		if sessionID != "" {
			keys = append(keys, sessionRequestKey(sessionID, rid))
		} else {
			keys = append(keys, requestKey(rid))
		}
	}

	sse, err := newClaimedStream(t.writers, keys, w)
	if err != nil {
		if err == ErrWriterExists {
			logger.Warn("Duplicate per-request stream", zap.Strings("keys", keys))
			http.Error(w, "Conflict: a stream for this request already exists", http.StatusConflict)
			return
		}
		logger.Error("Failed to open SSE stream", zap.Error(err))
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	defer sse.Close()

	go func() {
		<-r.Context().Done()
		sse.Close()
	}()

	for _, msg := range notifications {
		t.dispatch(r.Context(), msg, meta, authInfo, logger)
	}
	for _, msg := range requests {
		data, _ := t.dispatch(r.Context(), msg, meta, authInfo, logger)
		if err := sse.Write(data, ""); err != nil {
			logger.Debug("Per-request stream write failed", zap.Error(err))
			return
		}
	}
	// All responses delivered; the stream's job is done.
}

// newClaimedStream registers the writer under every key or none of them.
func newClaimedStream(reg *writerRegistry, keys []string, w http.ResponseWriter) (*SSEWriter, error) {
	sse, err := NewSSEWriterDeferred(w)
	if err != nil {
		return nil, err
	}
	claimed := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := reg.Add(key, sse); err != nil {
			for _, k := range claimed {
				reg.Remove(k, sse)
			}
			return nil, err
		}
		claimed = append(claimed, key)
	}
	sse.OnClose(func() {
		for _, key := range keys {
			reg.Remove(key, sse)
		}
	})
	sse.Start()
	return sse, nil
}

// forwardResponse hands a client response to the pending adapter.
func (t *Transport) forwardResponse(ctx context.Context, sessionID string, msg *shared.Message, logger *zap.Logger) {
	if msg.ID == nil {
		logger.Warn("Dropping response without id")
		return
	}
	requestID := msg.ID.String()
	if msg.Error != nil {
		if !t.pending.RejectPending(ctx, sessionID, requestID, msg.Error) {
			logger.Debug("No pending request for error response", zap.String("requestID", requestID))
		}
		return
	}
	var result json.RawMessage
	if msg.Result != nil {
		result = *msg.Result
	} else {
		result = json.RawMessage("null")
	}
	if !t.pending.ResolvePending(ctx, sessionID, requestID, result) {
		logger.Debug("No pending request for response", zap.String("requestID", requestID))
	}
}

// createSession persists the outcome of an initialize handshake.
func (t *Transport) createSession(ctx context.Context, meta *session.Meta, logger *zap.Logger) string {
	if t.stateless || t.store == nil {
		return ""
	}
	id := t.store.GenerateSessionID()
	if err := t.store.Create(ctx, id, *meta); err != nil {
		logger.Error("Failed to create session", zap.Error(err))
		return ""
	}
	logger.Info("Session created",
		zap.String("sessionID", id),
		zap.String("protocolVersion", meta.ProtocolVersion),
		zap.String("clientName", meta.ClientInfo.Name),
	)
	return id
}

// checkProtocolVersionHeader enforces the MCP-Protocol-Version header rules:
// required and matching on 2025-06-18, tolerated if absent on 2025-03-26.
func checkProtocolVersionHeader(r *http.Request, negotiated string) *shared.JSONRPCError {
	received := r.Header.Get(MCPProtocolVersionHeader)
	if received == "" {
		if schema.VersionRequiresHeader(negotiated) {
			return versionMismatchError(negotiated, received)
		}
		return nil
	}
	if received != negotiated {
		return versionMismatchError(negotiated, received)
	}
	return nil
}

func versionMismatchError(expected, received string) *shared.JSONRPCError {
	return &shared.JSONRPCError{
		Code:    shared.JSONRPCErrorInvalidParams,
		Message: "protocol version mismatch",
		Data: map[string]string{
			"expectedVersion": expected,
			"receivedVersion": received,
		},
	}
}

// sendJSONRPCError writes a JSON-RPC error envelope with the given HTTP
// status.
func sendJSONRPCError(w http.ResponseWriter, statusCode int, id *schema.RequestID, rpcErr *shared.JSONRPCError, logger *zap.Logger) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	resp := shared.JSONRPCErrorResponse{
		JSONRPC: shared.JSONRPCVersion,
		ID:      id,
		Error:   rpcErr,
	}
	if err := json.NewEncoder(w).Encode(&resp); err != nil {
		logger.Error("Failed to encode error response", zap.Error(err))
	}
}

func writeJSONArray(w http.ResponseWriter, items []json.RawMessage, logger *zap.Logger) {
	var buf []byte
	buf = append(buf, '[')
	for i, item := range items {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, item...)
	}
	buf = append(buf, ']')
	if _, err := w.Write(buf); err != nil {
		logger.Error("Failed to write batch response", zap.Error(err))
	}
}
