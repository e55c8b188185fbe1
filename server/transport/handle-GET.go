package transport

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server/session"
)

// handleGET opens the session's long-lived SSE stream. With a Last-Event-ID
// header the retained event buffer is replayed first, using the original
// event ids, so a reconnecting client misses nothing.
func (t *Transport) handleGET(w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	if t.stateless {
		http.Error(w, "Method Not Allowed: server runs without sessions", http.StatusMethodNotAllowed)
		return
	}
	if _, err := t.authenticate(r); err != nil {
		logger.Warn("Authentication failed", zap.Error(err), zap.String("remoteAddr", r.RemoteAddr))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !acceptsSSE(r) {
		http.Error(w, "Bad Request: Accept must include text/event-stream", http.StatusBadRequest)
		return
	}

	sessionID := r.Header.Get(MCPSessionHeader)
	if sessionID == "" {
		http.Error(w, "Bad Request: missing "+MCPSessionHeader+" header", http.StatusBadRequest)
		return
	}
	meta, err := t.store.Get(r.Context(), sessionID)
	if err != nil {
		logger.Warn("Unknown session on GET", zap.String("sessionID", sessionID), zap.Error(err))
		http.Error(w, "Bad Request: session expired or invalid", http.StatusBadRequest)
		return
	}
	if rpcErr := checkProtocolVersionHeader(r, meta.ProtocolVersion); rpcErr != nil {
		sendJSONRPCError(w, http.StatusBadRequest, nil, rpcErr, logger)
		return
	}
	if err := t.store.Touch(r.Context(), sessionID); err != nil {
		logger.Debug("Failed to touch session", zap.Error(err))
	}

	// Reject a malformed replay cursor while a plain HTTP status can still
	// be sent; once the stream starts, replay errors are only logged.
	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID != "" {
		if _, _, err := session.ParseEventID(lastEventID); err != nil {
			logger.Warn("Malformed Last-Event-ID",
				zap.String("lastEventID", lastEventID), zap.Error(err))
			http.Error(w, "Internal Server Error: replay failed", http.StatusInternalServerError)
			return
		}
	}

	sse, err := NewSSEWriterDeferred(w)
	if err != nil {
		logger.Error("Streaming unsupported", zap.Error(err))
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	key := sessionKey(sessionID)
	if err := t.writers.Add(key, sse); err != nil {
		logger.Warn("Duplicate session stream", zap.String("sessionID", sessionID))
		http.Error(w, "Conflict: a stream for this session already exists", http.StatusConflict)
		return
	}
	sse.OnClose(func() {
		t.writers.Remove(key, sse)
	})
	sse.Start()
	defer sse.Close()

	logger.Info("Session stream opened", zap.String("sessionID", sessionID))

	if lastEventID != "" {
		err := t.store.Replay(r.Context(), sessionID, lastEventID, func(eventID string, message []byte) error {
			return sse.Write(message, eventID)
		})
		if err != nil {
			logger.Warn("Event replay failed",
				zap.Error(err),
				zap.String("sessionID", sessionID),
				zap.String("lastEventID", lastEventID),
			)
		}
	} else {
		if err := sse.Write([]byte(`{"type":"connection","status":"established"}`), ""); err != nil {
			logger.Debug("Failed to write connection event", zap.Error(err))
			return
		}
	}

	keepAlive := time.NewTicker(t.keepAliveInterval)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			logger.Debug("Session stream client disconnected", zap.String("sessionID", sessionID))
			return
		case <-sse.Done():
			logger.Debug("Session stream closed", zap.String("sessionID", sessionID))
			return
		case <-t.done:
			return
		case <-keepAlive.C:
			if err := sse.WriteKeepAlive(); err != nil {
				return
			}
		}
	}
}
