// Command daraja-mock is a local stand-in for the Daraja sandbox. Point
// DARAJA_BASE_URL at it to exercise STK push end to end without credentials.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

const (
	defaultAddr          = ":8085"
	defaultCallbackDelay = 3 * time.Second
	defaultSuccessRate   = 0.5
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("service", "daraja-mock")

	addr := envOr("MOCK_ADDR", defaultAddr)
	delay := defaultCallbackDelay
	if v, err := time.ParseDuration(os.Getenv("MOCK_CALLBACK_DELAY")); err == nil {
		delay = v
	}
	rate := defaultSuccessRate
	if v, err := strconv.ParseFloat(os.Getenv("MOCK_SUCCESS_RATE"), 64); err == nil {
		rate = v
	}

	m := newMock(logger, delay, rate)
	server := &http.Server{
		Addr:              addr,
		Handler:           loggingMiddleware(logger, newReferenceTracker(), m.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("Daraja mock listening", "addr", addr, "callbackDelay", delay.String(), "successRate", rate)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Mock server error", "error", err)
		os.Exit(1)
	}
	m.wait()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
