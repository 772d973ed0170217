// Package server runs the HTTP server until the process is asked to stop,
// then drains in-flight requests and runs the registered shutdown hooks.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// Serve accepts connections on listener until ctx is cancelled or the process
// receives SIGINT or SIGTERM. In-flight requests are given shutdownTimeout to
// complete before the hooks run.
func Serve(ctx context.Context, srv *http.Server, listener net.Listener, shutdownTimeout time.Duration, hooks *ShutdownHooks) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", listener.Addr().String()).Msg("server listening")
		serveErr <- srv.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Dur("timeout", shutdownTimeout).Msg("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = fmt.Errorf("server shutdown: %w", err)
	}

	if hooks != nil {
		errs = errors.Join(errs, hooks.Execute(shutdownCtx))
	}

	log.Info().Msg("server shutdown complete")

	return errs
}

// ListenAndServe listens on addr and calls Serve.
func ListenAndServe(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, hooks *ShutdownHooks) error {
	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}

	return Serve(ctx, srv, listener, shutdownTimeout, hooks)
}
