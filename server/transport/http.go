package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/mcpwire/mcpwire/server/config"
)

// StartHTTPServer starts the HTTP or HTTPS listener described by the config.
// It returns the server and a channel that reports listener errors after
// startup; setup failures are returned immediately.
func StartHTTPServer(ctx context.Context, logger *zap.Logger, cfg *config.Config, handler http.Handler, overrideListenAddr string) (*http.Server, <-chan error, error) {
	if logger == nil {
		return nil, nil, errors.New("logger cannot be nil")
	}
	if cfg == nil {
		return nil, nil, errors.New("config cannot be nil")
	}
	if handler == nil {
		return nil, nil, errors.New("http handler cannot be nil")
	}

	listenAddr := overrideListenAddr
	if listenAddr == "" {
		var err error
		listenAddr, err = cfg.ListenAddr()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get listen address: %w", err)
		}
	}

	server := &http.Server{
		Addr:    listenAddr,
		Handler: handler,
		// WriteTimeout stays generous because SSE streams are long-lived.
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 90 * time.Second,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	ssl := cfg.SSL()
	var certFile, keyFile string
	isACME := false

	if ssl.Enabled {
		if ssl.Mode == "acme" {
			isACME = true
			if len(ssl.AcmeDomains) == 0 {
				return nil, nil, errors.New("ACME mode requires at least one domain (config key 'ssl.acme_domains')")
			}
			cacheDir := ssl.AcmeCacheDir
			if cacheDir == "" {
				cacheDir = "./.certs"
			}
			if err := os.MkdirAll(cacheDir, 0700); err != nil {
				return nil, nil, fmt.Errorf("failed to create ACME cache directory %q: %w", cacheDir, err)
			}

			certManager := autocert.Manager{
				Prompt:     autocert.AcceptTOS,
				HostPolicy: autocert.HostWhitelist(ssl.AcmeDomains...),
				Email:      ssl.AcmeEmail,
				Cache:      autocert.DirCache(cacheDir),
			}
			server.TLSConfig = certManager.TLSConfig()

			// ACME needs the HTTP-01 challenge answered on port 80.
			go func() {
				challengeServer := &http.Server{
					Addr:    ":80",
					Handler: certManager.HTTPHandler(nil),
				}
				logger.Info("Starting ACME HTTP challenge listener", zap.String("addr", ":80"))
				if err := challengeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("ACME HTTP challenge listener error", zap.Error(err))
				}
			}()
		} else {
			if ssl.CertFile == "" {
				return nil, nil, errors.New("manual SSL mode requires a certificate file (config key 'ssl.cert_file')")
			}
			if ssl.KeyFile == "" {
				return nil, nil, errors.New("manual SSL mode requires a private key file (config key 'ssl.key_file')")
			}
			certFile, keyFile = ssl.CertFile, ssl.KeyFile
			server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	listenerErrChan := make(chan error, 1)
	go func() {
		defer close(listenerErrChan)

		var err error
		if ssl.Enabled {
			logger.Info("Starting HTTPS server", zap.String("addr", listenAddr), zap.Bool("acme", isACME))
			err = server.ListenAndServeTLS(certFile, keyFile)
		} else {
			logger.Info("Starting HTTP server", zap.String("addr", listenAddr))
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server listener error", zap.Error(err))
			listenerErrChan <- err
			return
		}
		logger.Info("Server listener stopped")
	}()

	return server, listenerErrChan, nil
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(ctx context.Context, logger *zap.Logger, server *http.Server) {
	if server == nil {
		return
	}
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server graceful shutdown failed", zap.Error(err))
		return
	}
	logger.Info("Server shut down gracefully")
}
