package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// CreateServer builds the HTTP server exposing the socket endpoint and
// a liveness probe. Idle and header timeouts protect the accept path;
// upgraded connections live outside them.
func CreateServer(host string, port int, handler *Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/ws", handler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Shutdown stops accepting new connections and waits up to the timeout
// for in-flight handlers to finish.
func Shutdown(log *slog.Logger, server *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Info("Shutting down HTTP server")
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	log.Info("HTTP server stopped")
	return nil
}
