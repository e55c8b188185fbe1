// Package extra holds auxiliary HTTP handlers served next to the MCP
// endpoint.
package extra

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server/config"
	"github.com/mcpwire/mcpwire/server/mcp"
)

// StatusResponse is the body of the /status endpoint.
type StatusResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Config  string `json:"config"`
	Uptime  string `json:"uptime"`
}

// StatusHandler reports server identity and configuration health. It always
// answers 200; problems surface in the body so probes can distinguish a
// degraded server from a dead one.
func StatusHandler(cfg *config.Config, manager *mcp.Manager, logger *zap.Logger) http.HandlerFunc {
	startedAt := time.Now()
	return func(w http.ResponseWriter, r *http.Request) {
		handlerLogger := logger.With(zap.String("handler", "StatusHandler"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		info := manager.ServerInfo()
		response := StatusResponse{
			Name:    info.Name,
			Version: info.Version,
			Config:  "ok",
			Uptime:  time.Since(startedAt).Round(time.Second).String(),
		}
		if _, err := cfg.ServerName(); err != nil {
			handlerLogger.Error("Config is incomplete", zap.Error(err))
			response.Config = "error"
		}

		if err := json.NewEncoder(w).Encode(&response); err != nil {
			handlerLogger.Error("Failed to encode status response", zap.Error(err))
		}
	}
}
