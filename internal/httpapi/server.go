package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"switchgear/internal/config"
	"switchgear/pkg/logger"

	"go.uber.org/zap"
)

// Server wraps one of the three gin engines in an *http.Server,
// binding plain HTTP or HTTPS depending on its TLSConfig, per
// spec.md §6 ("tls.{cert-path,key-path}: optional TLS; when set,
// bind HTTPS"). Grounded on the teacher's cmd/worker/fund_card
// graceful-shutdown shape (signal-driven context cancellation),
// adapted here from a queue consumer loop to an http.Server's
// ListenAndServe/Shutdown pair.
type Server struct {
	name   string
	http   *http.Server
	tls    config.TLSConfig
	logger *zap.Logger
}

// NewServer builds a Server bound to address, serving engine, logging
// to sink. name identifies the server in log lines ("lnurl",
// "discovery", "offer").
func NewServer(name, address string, tls config.TLSConfig, engine http.Handler, sink string) *Server {
	return &Server{
		name: name,
		http: &http.Server{
			Addr:    config.SplitHostPort(address),
			Handler: engine,
		},
		tls:    tls,
		logger: logger.Sink(sink),
	}
}

// Serve runs the server until ctx is canceled, then shuts it down
// gracefully. It returns nil on a clean shutdown and a non-nil error
// on bind failure, per spec.md §6's exit-code contract (bind failure
// is non-zero; SIGTERM/SIGINT-triggered shutdown is 0).
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.tls.Enabled() {
			s.logger.Info("listening", zap.String("server", s.name), zap.String("addr", s.http.Addr), zap.Bool("tls", true))
			err = s.http.ListenAndServeTLS(s.tls.CertPath, s.tls.KeyPath)
		} else {
			s.logger.Info("listening", zap.String("server", s.name), zap.String("addr", s.http.Addr), zap.Bool("tls", false))
			err = s.http.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down", zap.String("server", s.name))
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
