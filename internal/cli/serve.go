package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lazypower/palace/internal/maintain"
	"github.com/lazypower/palace/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and maintenance schedule",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	srv := server.New(a.db, server.Engines{
		Gravity:  a.gravity,
		Chambers: a.chambers,
		Doors:    a.doors,
		Mirrors:  a.mirrors,
		Pipeline: a.pipeline,
		Maintain: a.maintain,
	}, VersionString())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var scheduler *maintain.Scheduler
	if a.cfg.Maintenance.Enabled {
		scheduler = maintain.NewScheduler(a.maintain, a.cfg.Maintenance.Schedule)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer scheduler.Stop()
	}

	addr := a.cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "palace serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", a.db.Path)
		if a.cfg.Corpus.Root != "" {
			fmt.Fprintf(os.Stderr, "  corpus: %s\n", a.cfg.Corpus.Root)
		}
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	return httpServer.Shutdown(shutdownCtx)
}
