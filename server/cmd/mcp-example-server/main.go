package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mcpwire/mcpwire/server"
	"github.com/mcpwire/mcpwire/server/cmd/mcp-example-server/exampleCapability"
	"github.com/mcpwire/mcpwire/server/config"
)

func main() {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	port := flag.Int("port", 0, "Port to run the server on")
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.NewYamlConfig(*configPath, logger)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	defer cfg.Close()

	if err := cfg.Watch(); err != nil {
		logger.Warn("Config hot reload disabled", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Info("Received shutdown signal, stopping server")
		cancel()
	}()

	serverOptions := exampleCapability.BuildOptions(logger)
	if *port != 0 {
		serverOptions = append(serverOptions, server.WithListenAddr(fmt.Sprintf(":%d", *port)))
	}

	errChan, err := server.Start(ctx, logger, cfg, serverOptions...)
	if err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	select {
	case startErr := <-errChan:
		if startErr != nil {
			logger.Fatal("Server encountered an error", zap.Error(startErr))
		}
		logger.Info("Server shutdown initiated cleanly")
	case <-ctx.Done():
		logger.Info("Server context done")
	}

	logger.Info("Server stopped")
}
