package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/sources/s3"
	"github.com/ajitpratap0/nebula-source-s3/pkg/launcher"
	"github.com/ajitpratap0/nebula-source-s3/pkg/logger"
	"github.com/ajitpratap0/nebula-source-s3/pkg/observability"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := initLogging(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	shutdown, err := observability.InitTracing(observability.ConfigFromEnv("source-s3", s3.Version))
	if err != nil {
		logger.Get().Warn("tracing disabled", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	_, err = launcher.New().Run(ctx, os.Args[1:])

	stop()
	if shutdown != nil {
		_ = shutdown(context.Background())
	}
	if err != nil {
		// the entrypoint has already reported the failure as a trace
		_ = logger.Sync()
		os.Exit(1)
	}
}

// initLogging routes log entries into LOG messages on out
func initLogging(out io.Writer) error {
	return logger.Init(logger.Config{
		Level:    envOr("LOG_LEVEL", "info"),
		Encoding: logger.EncodingProtocol,
		Writer:   out,
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
