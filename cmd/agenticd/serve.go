package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dembrane/agentic/pkg/api"
	"github.com/dembrane/agentic/pkg/config"
	"github.com/dembrane/agentic/pkg/coordinator"
	"github.com/dembrane/agentic/pkg/directory/postgres"
	"github.com/dembrane/agentic/pkg/runstore"
	"github.com/dembrane/agentic/pkg/upstream"
	"github.com/dembrane/agentic/pkg/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the in-process worker pool",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", getEnvOrDefault("HTTP_ADDR", ":8080"), "HTTP listen address")
	serveCmd.Flags().String("pod-id", "", "Identifier for this process's workers (defaults to hostname)")
	serveCmd.Flags().Int("workers", 4, "Number of concurrent worker goroutines")
	serveCmd.Flags().Int("queue-capacity", 64, "Number of runs that may be queued ahead of the workers")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Grace period for in-flight HTTP requests during shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	agenticCfg, err := config.LoadAgenticConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load agentic config: %w", err)
	}

	dbCfg, err := config.LoadDatabaseConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load database config: %w", err)
	}

	redisCfg, err := config.LoadRedisConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load redis config: %w", err)
	}

	dbClient, err := postgres.NewClient(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()
	slog.Info("connected to postgres and applied migrations")

	dirStore := postgres.New(dbClient)
	runs := runstore.New(dirStore)
	coord := coordinator.NewRedisCoordinator(redisCfg)
	upstreamClient := upstream.NewClient()

	podID, _ := cmd.Flags().GetString("pod-id")
	if podID == "" {
		podID, _ = os.Hostname()
		if podID == "" {
			podID = "agenticd"
		}
	}
	workerCount, _ := cmd.Flags().GetInt("workers")
	queueCapacity, _ := cmd.Flags().GetInt("queue-capacity")

	pool := worker.NewPool(podID, workerCount, queueCapacity, runs, coord, upstreamClient, agenticCfg)
	pool.Start(ctx)
	defer pool.Stop()

	server := api.NewServer(agenticCfg, runs, coord, pool)

	addr, _ := cmd.Flags().GetString("addr")
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		slog.Info("shutdown signal received")
	case err := <-errCh:
		slog.Error("serving stopped unexpectedly", "error", err)
	}

	shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during HTTP shutdown", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
