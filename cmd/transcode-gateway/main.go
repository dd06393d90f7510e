package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/polywire/polywire/internal/codec"
	"github.com/polywire/polywire/internal/config"
	"github.com/polywire/polywire/internal/gateway"
	"github.com/polywire/polywire/internal/interceptor"
	"github.com/polywire/polywire/internal/recorder"
	"github.com/polywire/polywire/internal/storage/sqlite"
	"github.com/polywire/polywire/internal/telemetry"
	"github.com/polywire/polywire/pkg/client"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer("polywire-gateway", logger)
	if err != nil {
		log.Fatalf("init tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("tracer shutdown", slog.String("error", err.Error()))
		}
	}()

	configPath := os.Getenv("POLYWIRE_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if len(cfg.Vendors) == 0 {
		log.Fatal("no vendors configured")
	}

	c, cleanup, err := buildClient(cfg, logger)
	if err != nil {
		log.Fatalf("build client: %v", err)
	}
	defer cleanup()

	policy, err := codec.ParsePolicy(cfg.Encode.UnsupportedPolicy)
	if err != nil {
		log.Fatalf("encode.unsupported_policy: %v", err)
	}
	handler, err := gateway.NewHandler(c, policy, logger)
	if err != nil {
		log.Fatalf("build handler: %v", err)
	}

	srv := gateway.NewServer(cfg.Server.Port, logger, handler)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server: %v", err)
		}
	case <-sigCh:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

// buildClient assembles the backend client from configuration: vendor
// credentials, interceptors, retry policy, and the optional interaction
// recorder.
func buildClient(cfg *config.Config, logger *slog.Logger) (*client.Client, func(), error) {
	backend := cfg.Server.Backend
	if backend == "" {
		backend = clientVendorName(cfg.Vendors[0])
	}

	opts := []client.Option{
		client.WithLogger(logger),
		client.WithAuthRetry(cfg.Retry.AuthRetry),
		client.WithInterceptors(
			interceptor.Correlation{},
			interceptor.NewLogging(logger),
			interceptor.NewTracing("polywire-gateway"),
		),
	}

	var backendKey string
	for _, v := range cfg.Vendors {
		name := clientVendorName(v)
		if v.BaseURL != "" {
			opts = append(opts, client.WithBaseURL(name, v.BaseURL))
		}
		if name == backend {
			backendKey = v.APIKey
			continue
		}
		opts = append(opts, client.WithVendor(name, v.APIKey))
	}

	cleanup := func() {}
	if cfg.Record.Enabled {
		store, err := sqlite.New(cfg.Record.Path)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() {
			if err := store.Close(); err != nil {
				logger.Error("close store", slog.String("error", err.Error()))
			}
		}
		var recOpts []recorder.Option
		if cfg.Record.StreamChunks {
			recOpts = append(recOpts, recorder.WithStreamChunks())
		}
		opts = append(opts, client.WithMiddleware(recorder.New(store, logger, recOpts...)))
	}

	c, err := client.New(backend, backendKey, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return c, cleanup, nil
}

func clientVendorName(v config.VendorConfig) string {
	if v.Name == client.VendorOpenAI && v.UseResponses {
		return client.VendorOpenAIResponses
	}
	return v.Name
}
