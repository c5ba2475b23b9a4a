package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-triage/internal/processing"
	"github.com/kozaktomas/photo-triage/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Photo Triage web server.
The server exposes the processing, search and catalog API under /api/v1
and a small status page at /.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("workers", 0, "Parallel photo workers per task (overrides MAX_WORKERS)")
	serveCmd.Flags().Int("batch-size", 0, "Photos written to the index per batch (overrides BATCH_SIZE)")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" && !cmd.Flags().Changed("port") {
		if p, err := strconv.Atoi(envPort); err == nil {
			port = p
		}
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" && !cmd.Flags().Changed("host") {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := processing.OptionsFromConfig(cfg)
	applyPoolFlags(cmd, &opts.MaxWorkers, &opts.BatchSize)

	b, err := openBackend(cmd.Context(), cfg, log, opts)
	if err != nil {
		return err
	}

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, b.orch, log, port, host)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("Starting Photo Triage on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	select {
	case err := <-errCh:
		if closeErr := b.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("failed to close backend")
		}
		if err != nil {
			return fmt.Errorf("starting server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("error during shutdown")
	}
	// Cancels running tasks, then saves the index
	if err := b.Close(); err != nil {
		return fmt.Errorf("closing backend: %w", err)
	}
	return nil
}
