package transport

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server/config"
)

// ErrUnauthorized is returned when authentication is required and no valid
// key was presented.
var ErrUnauthorized = errors.New("authorization required")

// AuthInfo describes the authenticated caller of a request. UserID is empty
// for anonymous access when the server allows it.
type AuthInfo struct {
	UserID     string
	RemoteAddr string
}

// AuthenticationManager validates an authorization key. An empty authKey
// means the caller presented no credentials.
type AuthenticationManager interface {
	Authenticate(authKey string, remoteAddr string) (*AuthInfo, error)
}

// DefaultAuthManager authenticates against the API key hashes in the config.
type DefaultAuthManager struct {
	logger *zap.Logger
	config *config.Config
}

var _ AuthenticationManager = (*DefaultAuthManager)(nil)

// NewAuthenticator creates the config-backed authenticator.
func NewAuthenticator(cfg *config.Config, logger *zap.Logger) *DefaultAuthManager {
	return &DefaultAuthManager{
		config: cfg,
		logger: logger.Named("auth"),
	}
}

// Authenticate resolves the key to a user id. Anonymous access is allowed
// unless the config demands authorized users only.
func (a *DefaultAuthManager) Authenticate(authKey string, remoteAddr string) (*AuthInfo, error) {
	info := &AuthInfo{RemoteAddr: remoteAddr}

	if authKey != "" {
		keyHash := config.HashAPIKey(authKey)
		userID, err := a.config.GetUserIDByKeyHash(keyHash)
		if err == nil && userID != "" {
			a.logger.Debug("Authenticated via API key", zap.String("userID", userID))
			info.UserID = userID
			return info, nil
		}
		a.logger.Debug("Presented key did not match any user")
	}

	if a.config.AuthorizationType() == config.AuthorizedUsersOnly {
		a.logger.Warn("Authorization required but no valid key presented",
			zap.String("remoteAddr", remoteAddr))
		return nil, ErrUnauthorized
	}
	return info, nil
}

// authenticate extracts credentials from the request and runs them through
// the configured manager. A nil manager means authentication is disabled.
func (t *Transport) authenticate(r *http.Request) (*AuthInfo, error) {
	if t.authManager == nil {
		return &AuthInfo{RemoteAddr: r.RemoteAddr}, nil
	}
	return t.authManager.Authenticate(extractAuthKey(r), r.RemoteAddr)
}

// extractAuthKey pulls the API key from the Authorization header (Bearer
// scheme) or, failing that, the X-Api-Key header.
func extractAuthKey(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return r.Header.Get("X-Api-Key")
}
