// Package diagserver is the node's HTTP diagnostics surface:
// liveness/readiness probes plus a JSON snapshot of MainTask's current
// state for operators and uptime monitors.
package diagserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sedaoverlay/node/pkg/dispatcher"
	"github.com/sedaoverlay/node/pkg/overlay"
)

// healthResponse is the `/api/health` wire shape. Pool is
// populated only when the request asks for it with `?pool=true`.
type healthResponse struct {
	ActivelyExecutingSize              int                  `json:"activelyExecutingSize"`
	EligibleButWaitingForExecutionSize int                  `json:"eligibleButWaitingForExecutionSize"`
	DataRequestPoolSize                int                  `json:"dataRequestPoolSize"`
	CompletedDataRequests              uint64               `json:"completedDataRequests"`
	RevealedDataRequests               uint64               `json:"revealedDataRequests"`
	FailedDataRequests                 uint64               `json:"failedDataRequests"`
	TxStats                            dispatcher.TxStats   `json:"txStats"`
	ActiveIdentities                   []string             `json:"activeIdentities"`
	Pool                               []overlay.PoolEntry  `json:"pool,omitempty"`
	Version                            string               `json:"version"`
	VmVersion                          string               `json:"vmVersion"`
}

// Config holds the diagnostics server's own metadata: the
// version/vmVersion fields, which are build-time constants rather than
// runtime state.
type Config struct {
	Version   string
	VmVersion string
}

// Server is the diagnostics HTTP server, backed by the overlay's MainTask
// for its live snapshot.
type Server struct {
	router  *mux.Router
	overlay *overlay.Overlay
	cfg     Config
}

// New wires a Server over overlay's snapshot surface.
func New(ov *overlay.Overlay, cfg Config) *Server {
	s := &Server{overlay: ov, cfg: cfg, router: mux.NewRouter()}
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	s.router.HandleFunc("/api/health", s.handleAPIHealth).Methods(http.MethodGet)
	return s
}

// Handler returns the server's http.Handler for embedding in an
// *http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealthz is a bare liveness probe: the process answering at all
// is sufficient.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleReadyz is a bare readiness probe, identical to healthz: MainTask's
// subsystem loops run independently of this server, so there is no
// separate "not ready yet" state to report once the server is listening.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleAPIHealth serves the full diagnostics snapshot.
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.overlay.Snapshot()
	resp := healthResponse{
		ActivelyExecutingSize:              snap.ActivelyExecutingSize,
		EligibleButWaitingForExecutionSize: snap.EligibleButWaitingForExecutionSize,
		DataRequestPoolSize:                snap.DataRequestPoolSize,
		CompletedDataRequests:              snap.CompletedDataRequests,
		RevealedDataRequests:               snap.RevealedDataRequests,
		FailedDataRequests:                 snap.FailedDataRequests,
		TxStats:                            snap.TxStats,
		ActiveIdentities:                   snap.ActiveIdentities,
		Version:                            s.cfg.Version,
		VmVersion:                          s.cfg.VmVersion,
	}
	if r.URL.Query().Get("pool") == "true" {
		resp.Pool = s.overlay.PoolContents()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("diagserver: encoding health response failed")
	}
}

// Run starts an *http.Server bound to addr and blocks until ctx is
// cancelled, then shuts it down gracefully within a 5s deadline.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("diagserver: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
