// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	httpAdapter "github.com/leseb/websearch-gw/pkg/adapters/http"
	"github.com/leseb/websearch-gw/pkg/core/api"
	"github.com/leseb/websearch-gw/pkg/core/config"
	"github.com/leseb/websearch-gw/pkg/core/engine"
	"github.com/leseb/websearch-gw/pkg/observability/logging"
	"github.com/leseb/websearch-gw/pkg/runstore"
	_ "github.com/leseb/websearch-gw/pkg/runstore/memory"
	_ "github.com/leseb/websearch-gw/pkg/runstore/sqlstore"
	"github.com/leseb/websearch-gw/pkg/websearch"
)

var (
	// Version is set via ldflags during build
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	port := flag.Int("port", 0, "HTTP port to listen on (overrides config)")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("Web Search Gateway Server\nVersion: %s\nBuild Time: %s\n", Version, BuildTime)
		os.Exit(0)
	}

	// Load configuration before the logger so its settings apply
	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil {
		cfg = config.Default()
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.Info("Starting Web Search Gateway Server",
		"version", Version,
		"build_time", BuildTime)
	if cfgErr != nil {
		logger.Warn("Failed to load config, using defaults", "error", cfgErr)
	}

	if *port != 0 {
		cfg.Server.Port = *port
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	initCtx := context.Background()

	instructions, err := config.LoadInstructions(initCtx, cfg.Instructions)
	if err != nil {
		logger.Error("Failed to load instructions", "error", err, "path", cfg.Instructions.Path)
		os.Exit(1)
	}
	logger.Info("Loaded instructions", "path", cfg.Instructions.Path)

	// Initialize completion client
	var llm api.ChatCompletionClient
	switch cfg.Engine.Backend {
	case "mock":
		llm = api.NewMockChatCompletionClient()
		logger.Warn("Using mock completion backend")
	default:
		llm = api.NewOpenAIClient(cfg.Engine.ModelEndpoint, cfg.Engine.APIKey)
		logger.Info("Initialized OpenAI completion client", "endpoint", cfg.Engine.ModelEndpoint)
	}

	// Initialize search provider
	search, err := websearch.Providers.New(initCtx, cfg.Search.Provider, cfg.Search.Params())
	if err != nil {
		logger.Error("Failed to initialize search provider", "error", err, "provider", cfg.Search.Provider)
		os.Exit(1)
	}
	logger.Info("Initialized search provider", "provider", search.Name())

	// Initialize run store
	var runs runstore.Store
	if cfg.RunStore.Type != "none" {
		runs, err = runstore.Providers.New(initCtx, cfg.RunStore.Type, map[string]string{
			"dsn":      cfg.RunStore.DSN,
			"max_runs": strconv.Itoa(cfg.RunStore.MaxRuns),
		})
		if err != nil {
			logger.Error("Failed to initialize run store", "error", err, "type", cfg.RunStore.Type)
			os.Exit(1)
		}
		defer runs.Close()
		logger.Info("Initialized run store", "type", cfg.RunStore.Type)
	}

	opts := []engine.Option{engine.WithLogger(logger.Logger)}
	if runs != nil {
		opts = append(opts, engine.WithRunStore(runs))
	}
	eng, err := engine.New(&cfg.Engine, llm, search, instructions, opts...)
	if err != nil {
		logger.Error("Failed to initialize engine", "error", err)
		os.Exit(1)
	}
	logger.Info("Initialized engine",
		"query_model", cfg.Engine.QueryModel,
		"high_accuracy_models", cfg.Engine.HighAccuracyModels)

	if cfg.Auth.APIKey == "" {
		logger.Warn("API_KEY not set, requests are not authorized")
	}

	handler := httpAdapter.New(eng, runs, cfg.Auth.APIKey, logger)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serveErr:
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}
