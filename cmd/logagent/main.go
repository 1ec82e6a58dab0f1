package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/oicur0t/logagent/internal/config"
	"github.com/oicur0t/logagent/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "/etc/logagent/config.yaml", "Path to configuration file")
	flag.Parse()

	if err := config.Bootstrap(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting logagent",
		zap.String("server_addr", cfg.ServerAddr),
		zap.Int("sources", len(cfg.Sources)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()

		time.Sleep(30 * time.Second)
		logger.Error("forced shutdown after timeout")
		os.Exit(1)
	}()

	sup, err := supervisor.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to construct supervisor", zap.Error(err))
	}

	if err := sup.Run(ctx); err != nil {
		logger.Error("supervisor exited with error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("logagent stopped gracefully")
}

// initLogger creates a configured zap logger
func initLogger(level string, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var loggerConfig zap.Config
	if format == "json" {
		loggerConfig = zap.NewProductionConfig()
	} else {
		loggerConfig = zap.NewDevelopmentConfig()
	}

	loggerConfig.Level = zap.NewAtomicLevelAt(zapLevel)

	return loggerConfig.Build()
}
