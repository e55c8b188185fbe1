package transport

import (
	"net/http"

	"go.uber.org/zap"
)

// handleDELETE terminates a session: every stream it owns is closed and the
// session state, including the retained event buffers, is removed.
func (t *Transport) handleDELETE(w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	if t.stateless {
		http.Error(w, "Method Not Allowed: server runs without sessions", http.StatusMethodNotAllowed)
		return
	}
	if _, err := t.authenticate(r); err != nil {
		logger.Warn("Authentication failed", zap.Error(err), zap.String("remoteAddr", r.RemoteAddr))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionID := r.Header.Get(MCPSessionHeader)
	if sessionID == "" {
		http.Error(w, "Bad Request: missing "+MCPSessionHeader+" header", http.StatusBadRequest)
		return
	}
	exists, err := t.store.Has(r.Context(), sessionID)
	if err != nil || !exists {
		http.Error(w, "Bad Request: session expired or invalid", http.StatusBadRequest)
		return
	}

	t.writers.CloseSession(sessionID)
	if err := t.store.Delete(r.Context(), sessionID); err != nil {
		logger.Error("Failed to delete session", zap.Error(err), zap.String("sessionID", sessionID))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	logger.Info("Session terminated", zap.String("sessionID", sessionID))
	w.WriteHeader(http.StatusOK)
}
