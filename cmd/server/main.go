package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zigurattt/Visual-Assistant-AI/internal/config"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/httpserver"
)

func main() {
	// Session logs interleave tightly; sub-second timestamps keep them
	// readable.
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()
	if err := run(cfg); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func run(cfg config.Config) error {
	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           httpserver.New(cfg).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Printf("assistant listening on %s", cfg.HTTPAddress)
		errs <- server.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-sigs:
		log.Printf("shutting down on %v", sig)
	}

	// Give open sessions a bounded window to finish before cutting them off.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		return server.Close()
	}
	return nil
}
