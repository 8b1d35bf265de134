package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/talktalk/server/internal/auth"
	"github.com/talktalk/server/internal/config"
	"github.com/talktalk/server/internal/db"
	httphandler "github.com/talktalk/server/internal/http"
	"github.com/talktalk/server/internal/http/handlers"
	"github.com/talktalk/server/internal/relay"
	"github.com/talktalk/server/internal/store"
	"github.com/talktalk/server/internal/ws"
	_ "github.com/lib/pq"
)

func main() {
	// Load .env from CWD (env vars override)
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	// History is Postgres-backed when DATABASE_URL is set, in-memory otherwise
	var history store.HistoryLog
	if cfg.DatabaseURL != "" {
		database, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()

		if err := runMigrations(database); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		history = store.NewPgHistory(database)
	} else {
		log.Println("DATABASE_URL not set; message history is in-memory only")
		history = store.NewMemoryHistory()
	}

	// Core state: one instance each, injected everywhere
	identities := store.NewIdentityStore()
	registry := relay.NewRegistry()

	metricsRegistry := prometheus.NewRegistry()
	metrics := relay.NewMetrics(metricsRegistry)

	presence := relay.NewPresence(identities, registry, metrics)
	messageRelay := relay.NewMessageRelay(history, registry, metrics)
	signallingRelay := relay.NewSignallingRelay(registry, metrics)
	gateway := ws.NewGateway(identities, registry, presence, messageRelay, signallingRelay, metrics)

	// Auth services
	otpProvider := auth.NewOtpStub(cfg.OTPSalt, cfg.DevMode)
	jwtService := auth.NewJWTService(cfg.JWTSecret)

	// Handlers
	otpHandler := handlers.NewOtpHandler(otpProvider, jwtService, identities, presence, cfg.DevMode)
	directoryHandler := handlers.NewDirectoryHandler(identities, history)

	// Create router
	router := httphandler.NewRouter(otpHandler, directoryHandler, gateway, jwtService, identities, metricsRegistry)

	// Create HTTP server with timeouts. No WriteTimeout: it would sever
	// long-lived WebSocket connections.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the module root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
