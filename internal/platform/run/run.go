package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type Runner struct {
	Logger          *zap.Logger
	ShutdownTimeout time.Duration
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log, ShutdownTimeout: 10 * time.Second}
}

// WithSignals runs start until it returns or SIGINT/SIGTERM arrives and
// converts the outcome into a process exit code.
func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- start(ctx)
	}()

	select {
	case <-ctx.Done():
		r.Logger.Info("shutdown signal received")
		return 0
	case err := <-errCh:
		return r.code(err)
	}
}

// Once runs fn to completion under a signal-aware context. Used for one-shot
// invocations from an external scheduler.
func (r *Runner) Once(fn func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return r.code(fn(ctx))
}

// Graceful calls shutdown with a fresh context bounded by ShutdownTimeout.
func (r *Runner) Graceful(shutdown func(context.Context) error) {
	timeout := r.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(c); err != nil {
		r.Logger.Warn("graceful shutdown", zap.Error(err))
	}
}

func (r *Runner) code(err error) int {
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return 0
	}
	r.Logger.Error("service exited with error", zap.Error(err))
	return 1
}

func Exit(code int) {
	os.Exit(code)
}
