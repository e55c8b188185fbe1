// Package config loads server configuration from a YAML file and supports
// hot reload through a file watcher. Auth keys are stored as SHA-256 hashes;
// plaintext keys never appear in the file.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// AuthorizationType represents different authorization strategies.
type AuthorizationType int

const (
	// AuthorizedUsersOnly requires a valid API key for all requests.
	AuthorizedUsersOnly AuthorizationType = iota
	// NotAuthorizedEverywhere allows all requests without authentication.
	NotAuthorizedEverywhere
)

func (at AuthorizationType) String() string {
	names := [...]string{"AuthorizedUsersOnly", "NotAuthorizedEverywhere"}
	if at < 0 || int(at) >= len(names) {
		return "Unknown"
	}
	return names[at]
}

// SSLConfig carries the TLS bootstrap settings consumed by the HTTP server.
type SSLConfig struct {
	Enabled      bool
	Mode         string // "manual" or "acme"
	CertFile     string
	KeyFile      string
	AcmeDomains  []string
	AcmeEmail    string
	AcmeCacheDir string
}

// Config is the YAML-file-backed server configuration. All accessors are
// safe for concurrent use; Update swaps the state atomically under the lock.
type Config struct {
	mu         sync.RWMutex
	configPath string
	logger     *zap.Logger

	serverName    string
	serverVersion string
	listenAddr    string
	logLevel      string
	instructions  string
	endpointPath  string

	allowedOrigins []string
	allowedHosts   []string

	authorization AuthorizationType
	userKeyHashes map[string]string // keyHash -> userID

	sessionTimeout  time.Duration
	cleanupInterval time.Duration

	ssl SSLConfig

	watcher  *watcher
	onReload []func()
}

// yamlConfig mirrors the file layout.
type yamlConfig struct {
	Server struct {
		Address         string   `yaml:"address"`
		Name            string   `yaml:"name"`
		Version         string   `yaml:"version"`
		LogLevel        string   `yaml:"log_level"`
		Instructions    string   `yaml:"instructions"`
		EndpointPath    string   `yaml:"endpoint_path"`
		Authorization   string   `yaml:"authorization"` // "users_only" or "none"
		AllowedOrigins  []string `yaml:"allowed_origins"`
		AllowedHosts    []string `yaml:"allowed_hosts"`
		SessionTimeout  string   `yaml:"session_timeout"`
		CleanupInterval string   `yaml:"cleanup_interval"`
		SSL             struct {
			Enabled      bool     `yaml:"enabled"`
			Mode         string   `yaml:"mode"`
			CertFile     string   `yaml:"cert_file"`
			KeyFile      string   `yaml:"key_file"`
			AcmeDomains  []string `yaml:"acme_domains"`
			AcmeEmail    string   `yaml:"acme_email"`
			AcmeCacheDir string   `yaml:"acme_cache_dir"`
		} `yaml:"ssl"`
	} `yaml:"server"`

	Users map[string]struct {
		Keys []string `yaml:"keys"` // SHA-256 hashes
	} `yaml:"users"`
}

// NewYamlConfig loads configuration from the given path.
func NewYamlConfig(configPath string, logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	c := &Config{
		configPath:      configPath,
		logger:          logger.Named("config"),
		userKeyHashes:   make(map[string]string),
		authorization:   NotAuthorizedEverywhere,
		endpointPath:    "/mcp",
		sessionTimeout:  30 * time.Minute,
		cleanupInterval: 5 * time.Minute,
	}
	if err := c.Update(); err != nil {
		return nil, err
	}
	return c, nil
}

// Update reloads configuration from the YAML file.
func (c *Config) Update() error {
	data, err := os.ReadFile(c.configPath)
	if err != nil {
		c.logger.Error("Failed to read config file", zap.Error(err))
		return err
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		c.logger.Error("Failed to parse YAML", zap.Error(err))
		return fmt.Errorf("failed to parse config: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.listenAddr = yamlCfg.Server.Address
	c.serverName = yamlCfg.Server.Name
	c.serverVersion = yamlCfg.Server.Version
	c.logLevel = yamlCfg.Server.LogLevel
	c.instructions = yamlCfg.Server.Instructions
	if yamlCfg.Server.EndpointPath != "" {
		c.endpointPath = yamlCfg.Server.EndpointPath
	}
	c.allowedOrigins = yamlCfg.Server.AllowedOrigins
	c.allowedHosts = yamlCfg.Server.AllowedHosts

	switch strings.ToLower(yamlCfg.Server.Authorization) {
	case "users_only":
		c.authorization = AuthorizedUsersOnly
	default:
		c.authorization = NotAuthorizedEverywhere
	}

	c.userKeyHashes = make(map[string]string)
	for userID, user := range yamlCfg.Users {
		for _, keyHash := range user.Keys {
			c.userKeyHashes[keyHash] = userID
		}
	}

	if yamlCfg.Server.SessionTimeout != "" {
		if d, err := time.ParseDuration(yamlCfg.Server.SessionTimeout); err == nil && d > 0 {
			c.sessionTimeout = d
		} else {
			c.logger.Warn("Invalid session_timeout, keeping previous value",
				zap.String("value", yamlCfg.Server.SessionTimeout))
		}
	}
	if yamlCfg.Server.CleanupInterval != "" {
		if d, err := time.ParseDuration(yamlCfg.Server.CleanupInterval); err == nil && d > 0 {
			c.cleanupInterval = d
		} else {
			c.logger.Warn("Invalid cleanup_interval, keeping previous value",
				zap.String("value", yamlCfg.Server.CleanupInterval))
		}
	}

	c.ssl = SSLConfig{
		Enabled:      yamlCfg.Server.SSL.Enabled,
		Mode:         strings.ToLower(yamlCfg.Server.SSL.Mode),
		CertFile:     yamlCfg.Server.SSL.CertFile,
		KeyFile:      yamlCfg.Server.SSL.KeyFile,
		AcmeDomains:  yamlCfg.Server.SSL.AcmeDomains,
		AcmeEmail:    yamlCfg.Server.SSL.AcmeEmail,
		AcmeCacheDir: yamlCfg.Server.SSL.AcmeCacheDir,
	}
	if c.ssl.Mode != "acme" {
		c.ssl.Mode = "manual"
	}
	if c.ssl.AcmeCacheDir == "" {
		c.ssl.AcmeCacheDir = "./.autocert-cache"
	}

	c.logger.Debug("Configuration updated", zap.String("path", c.configPath))
	return nil
}

func (c *Config) ListenAddr() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listenAddr == "" {
		return ":4000", nil
	}
	return c.listenAddr, nil
}

func (c *Config) ServerName() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.serverName == "" {
		return "", fmt.Errorf("server name is not configured")
	}
	return c.serverName, nil
}

func (c *Config) ServerVersion() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.serverVersion == "" {
		return "", fmt.Errorf("server version is not configured")
	}
	return c.serverVersion, nil
}

func (c *Config) LogLevel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logLevel
}

func (c *Config) Instructions() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instructions
}

func (c *Config) EndpointPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpointPath
}

func (c *Config) AllowedOrigins() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.allowedOrigins...)
}

func (c *Config) AllowedHosts() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.allowedHosts...)
}

func (c *Config) AuthorizationType() AuthorizationType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authorization
}

// GetUserIDByKeyHash resolves a hashed API key to a user id.
func (c *Config) GetUserIDByKeyHash(keyHash string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if keyHash == "" {
		return "", fmt.Errorf("key hash is empty")
	}
	userID, ok := c.userKeyHashes[keyHash]
	if !ok {
		return "", fmt.Errorf("key not found")
	}
	return userID, nil
}

func (c *Config) SessionTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionTimeout
}

func (c *Config) CleanupInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cleanupInterval
}

func (c *Config) SSL() SSLConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ssl
}

// OnReload registers a callback invoked after every successful hot reload.
func (c *Config) OnReload(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReload = append(c.onReload, fn)
}

// Close stops the file watcher if one is running.
func (c *Config) Close() error {
	c.mu.Lock()
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()
	if w != nil {
		return w.stop()
	}
	return nil
}

// HashAPIKey converts a plaintext API key to its SHA-256 hash representation.
func HashAPIKey(key string) string {
	if key == "" {
		return ""
	}
	hasher := sha256.New()
	hasher.Write([]byte(key))
	return hex.EncodeToString(hasher.Sum(nil))
}
