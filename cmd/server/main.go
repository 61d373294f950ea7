/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the field payroll engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file via -config/CONFIG_PATH, else environment)
  2. Initialize SQLite store
  3. Apply the optional master-data seed file (SEED_PATH)
  4. Start the in-process task queue and register all handlers
  5. Configure HTTP router
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Drain and close the task queue
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with a config file
  ./server -config=./config/local.yaml

  # Run from environment alone
  DB_PATH=:memory: HTTP_ADDRESS=:3000 ./server

SEE ALSO:
  - config/config.go: Configuration schema
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldpay/payroll-engine/api"
	"github.com/fieldpay/payroll-engine/config"
	"github.com/fieldpay/payroll-engine/hrsync"
	"github.com/fieldpay/payroll-engine/importer"
	"github.com/fieldpay/payroll-engine/payroll"
	"github.com/fieldpay/payroll-engine/queue"
	"github.com/fieldpay/payroll-engine/seed"
	"github.com/fieldpay/payroll-engine/store/sqlite"
)

func main() {
	cfg := config.MustLoad()

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Optional master-data bootstrap
	if cfg.SeedPath != "" {
		ds, err := seed.Load(cfg.SeedPath)
		if err != nil {
			log.Fatalf("Failed to load seed file: %v", err)
		}
		if err := ds.Apply(context.Background(), store); err != nil {
			log.Fatalf("Failed to apply seed file: %v", err)
		}
	}

	// Task queue and handlers
	q := queue.New(cfg.Queue.Workers)
	opts := queue.Options{
		MaxRetries: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryDelay,
	}

	pipeline := importer.New(store, q)
	payroll.RegisterTasks(q, store, opts)
	pipeline.Register(q, opts)
	hrsync.Register(q, store, opts)
	q.Start()

	// HTTP layer
	svc := payroll.NewService(store, q)
	handler := api.NewHandler(store, svc, q, pipeline, cfg.UploadDir)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Printf("Server starting on %s (env=%s)", cfg.HTTPServer.Address, cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Let queued recalculations settle before closing the store.
	q.Drain()
	q.Close()

	log.Println("Server stopped")
}
