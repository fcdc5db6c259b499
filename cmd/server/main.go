package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"chat-relay/internal"
	"chat-relay/logs"
	"chat-relay/observability"
	"chat-relay/presence"
	"chat-relay/registry"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/transport/ws"

	"chat-relay/auth"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Presence core
	monitoring := observability.NewMonitor()
	sessions := repositories.NewSessionRepository(db)
	rooms := repositories.NewRoomStore(db)
	conversations := repositories.NewConversationStore(db)
	verifier := auth.NewVerifier([]byte(config.JWTSecret))

	sessionRegistry := registry.NewRegistry(log, verifier, sessions, monitoring)
	router := runtime.NewRouter(log, sessionRegistry, monitoring)
	tracker := presence.NewTracker(sessionRegistry)
	lifecycle := runtime.NewLifecycle(log, sessionRegistry, router, tracker, conversations, rooms)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Background workers
	sup := workers.NewSupervisor(log)
	sup.Add(
		workers.NewJanitorWorker(log, rooms, config.JanitorInterval),
		workers.NewStatsWorker(log, monitoring, config.StatsInterval),
	)
	go sup.Run(ctx)

	// 6. HTTP Server Setup
	handler := ws.NewHandler(log, lifecycle, ws.Options{
		SendBufferSize: config.SendBufferSize,
		MaxMessageSize: config.MaxMessageSize,
		PongWait:       config.PongWait,
		PingInterval:   config.PingInterval,
		WriteWait:      config.WriteWait,
	})
	server := ws.CreateServer(config.Host, config.Port, handler)

	// Use an error channel to capture ListenAndServe() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting websocket server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	if err := ws.Shutdown(log, server, config.ShutdownTimeout); err != nil {
		log.Error("Shutdown incomplete", "err", err)
	}
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
