// Package main runs the track tokenization service layer: the HTTP API,
// the ledger dispatch queue and the mirror reconciler.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tunevault/service_layer/internal/app"
	"github.com/tunevault/service_layer/internal/config"
	"github.com/tunevault/service_layer/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}).WithField("component", "server")

	application, err := app.New(*cfg, app.Stores{}, app.Ledger{}, log)
	if err != nil {
		log.WithError(err).Error("application init failed")
		os.Exit(1)
	}

	if err := application.Start(); err != nil {
		log.WithError(err).Error("application start failed")
		os.Exit(1)
	}

	addr := cfg.Addr()
	server := &http.Server{
		Addr:         addr,
		Handler:      application.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Infof("received %s, shutting down", sig)
	case err := <-errCh:
		log.WithError(err).Error("server stopped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	if err := application.Stop(ctx); err != nil && err != context.DeadlineExceeded {
		log.WithError(err).Warn("application shutdown incomplete")
	}
	log.Info("shutdown complete")
}
