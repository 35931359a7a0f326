// Package ops exposes the operational HTTP surface: a manual scan
// trigger and a health probe. It is not the application's REST API;
// that lives elsewhere and consumes the pipeline only through its
// side effects.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Server is the operational HTTP listener.
type Server struct {
	addr   string
	scan   func(context.Context)
	logger *slog.Logger
	srv    *http.Server
}

// NewServer creates the ops server. scan is fired asynchronously on
// each trigger request; overlapping triggers are resolved by the
// scanner's own batch guard, not here.
func NewServer(addr string, scan func(context.Context), logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{addr: addr, scan: scan, logger: logger}

	router := mux.NewRouter()
	router.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info("ops listener started", "addr", s.addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

// handleScan fires a scan batch in the background. It always reports
// acceptance: scan errors are internal, surfaced through logs only.
func (s *Server) handleScan(w http.ResponseWriter, _ *http.Request) {
	s.logger.Info("manual mailbox scan triggered")
	go s.scan(context.Background())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scan started"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
