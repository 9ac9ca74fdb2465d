package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// Server exposes /metrics, /healthz and /readyz while a run is in progress.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// StartServer listens on bind and serves in the background.
func StartServer(bind string, metrics http.Handler, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", bind, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics)
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleHealth)

	s := &Server{
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()

	logger.Info("metrics server started", slog.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr is the bound listener address.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Shutdown stops the server and waits for the serve loop to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
