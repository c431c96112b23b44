// MOVI fleet assistant server — exposes the conversational HTTP API,
// runs the agent graph, and reaps durable sessions in the background.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fleetops/movi/pkg/agent"
	"github.com/fleetops/movi/pkg/api"
	"github.com/fleetops/movi/pkg/cleanup"
	"github.com/fleetops/movi/pkg/config"
	"github.com/fleetops/movi/pkg/database"
	"github.com/fleetops/movi/pkg/llm"
	"github.com/fleetops/movi/pkg/services"
	"github.com/fleetops/movi/pkg/tools"
	"github.com/fleetops/movi/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("MOVI_CONFIG", "movi.yaml"),
		"Path to the configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")

	slog.Info("Starting MOVI",
		"version", version.Full(),
		"http_port", httpPort,
		"config", *configPath)

	ctx := context.Background()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Connect to the database (migrations + schema guard run at boot)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Domain services
	store := tools.NewStore(dbClient)
	sessionService := services.NewSessionService(dbClient, cfg.Session.TTL)
	slog.Info("Services initialized", "session_ttl", cfg.Session.TTL)

	// 4. LLM client
	llmClient, err := llm.NewOpenAIClient(cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	slog.Info("LLM client initialized", "model", cfg.LLM.Model)

	// 5. Agent graph
	ag, err := agent.New(cfg.Agent, llmClient, store, sessionService)
	if err != nil {
		slog.Error("Failed to build agent graph", "error", err)
		os.Exit(1)
	}
	slog.Info("Agent graph built")

	// 6. Session reaper
	reaper := cleanup.NewService(cfg.Session, sessionService)
	reaper.Start(ctx)

	// 7. HTTP server
	server := api.NewServer(ag, sessionService, dbClient)
	httpServer := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("Shutdown signal received", "signal", sig)

	// Stop taking new requests, then stop the reaper
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	reaper.Stop()

	slog.Info("Shutdown complete")
}
