// Command testserver runs a configurable WebSocket server for load testing.
//
// Usage:
//
//	testserver [flags]
//
// Flags:
//
//	-port    Port to listen on (default: 8080)
//	-host    Host to bind to (default: localhost)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"volley/testserver"
)

func main() {
	port := flag.Int("port", 8080, "port to listen on")
	host := flag.String("host", "localhost", "host to bind to")
	flag.Parse()

	server := testserver.NewServer()
	addr := fmt.Sprintf("%s:%d", *host, *port)

	fmt.Println("Volley Test Server")
	fmt.Println("==================")
	fmt.Printf("Listening on ws://%s\n\n", addr)
	fmt.Println("Endpoints:")
	fmt.Println("  GET /health            - Health check")
	fmt.Println("  GET /stats             - Connection and message counters")
	fmt.Println("  WS  /ws                - Ack connection_init, echo frames (?echo=false, ?delay=ms)")
	fmt.Println("  GET /reject/{code}     - Refuse the handshake with a status code")
	fmt.Println("  WS  /close             - Accept then close immediately")
	fmt.Println("  WS  /fail-rate         - Refuse a percentage of handshakes (?rate=10)")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: server.Handler()}
	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
