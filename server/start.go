// Package server assembles the MCP server from its parts: dispatcher,
// capabilities, validators, streaming HTTP transport and the HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server/config"
	"github.com/mcpwire/mcpwire/server/extra"
	"github.com/mcpwire/mcpwire/server/mcp"
	"github.com/mcpwire/mcpwire/server/mcp/validators"
	"github.com/mcpwire/mcpwire/server/transport"
	"github.com/mcpwire/mcpwire/shared/schema"
)

// Start builds and starts the MCP server with the provided options. It
// returns a channel reporting listener errors after startup; the server
// shuts down gracefully when ctx is cancelled.
func Start(ctx context.Context, logger *zap.Logger, cfg *config.Config, options ...ServerOption) (<-chan error, error) {
	builder, err := build(ctx, logger, cfg, options...)
	if err != nil {
		return nil, err
	}
	return builder.start()
}

// build runs the option pipeline and wires the dispatcher and transport.
func build(ctx context.Context, logger *zap.Logger, cfg *config.Config, options ...ServerOption) (*ServerBuilder, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	listenAddr, err := cfg.ListenAddr()
	if err != nil {
		return nil, fmt.Errorf("failed to get listen address: %w", err)
	}
	serverName, err := cfg.ServerName()
	if err != nil {
		return nil, fmt.Errorf("failed to get server name: %w", err)
	}
	serverVersion, err := cfg.ServerVersion()
	if err != nil {
		return nil, fmt.Errorf("failed to get server version: %w", err)
	}

	manager := mcp.NewManager(logger,
		schema.Implementation{Name: serverName, Version: serverVersion},
		mcp.WithInstructions(cfg.Instructions()),
	)

	builder := &ServerBuilder{
		ctx:        ctx,
		logger:     logger,
		cfg:        cfg,
		listenAddr: listenAddr,
		manager:    manager,
		mux:        http.NewServeMux(),
	}

	for _, option := range options {
		if err := option(builder); err != nil {
			return nil, fmt.Errorf("failed to apply server option: %w", err)
		}
	}

	manager.AddValidator(validators.CreateDefaultValidators()...)
	manager.AddValidator(builder.validators...)
	manager.Use(builder.middlewares...)

	return builder, nil
}

// start creates the transport, registers handlers and runs the listener.
func (b *ServerBuilder) start() (<-chan error, error) {
	if len(b.capabilities) > 0 {
		b.logger.Info("Registering capabilities", zap.Int("count", len(b.capabilities)))
		b.manager.AddCapability(b.capabilities...)
	}

	t, err := transport.New(b.manager, b.logger, b.cfg, b.transportOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	t.RegisterHandlers(b.mux)
	b.mux.HandleFunc("/status", extra.StatusHandler(b.cfg, b.manager, b.logger))
	b.markBound()

	serverInstance, listenerErrChan, err := transport.StartHTTPServer(b.ctx, b.logger, b.cfg, b.mux, b.listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to start HTTP server: %w", err)
	}

	go func() {
		<-b.ctx.Done()
		b.logger.Info("Shutdown signal received, stopping server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = t.Shutdown(shutdownCtx)
		transport.ShutdownHTTPServer(shutdownCtx, b.logger, serverInstance)
	}()

	return listenerErrChan, nil
}
