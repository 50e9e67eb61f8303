// Package transport exposes the journal over HTTP: fill ingestion, position
// queries, batch verification, and the metrics/health endpoints.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/tradeproof/engine/internal/ledger"
	"github.com/tradeproof/engine/internal/observ"
	"github.com/tradeproof/engine/internal/verify"
)

type Server struct {
	ledger   *ledger.Ledger
	verifier *verify.Engine
	srv      *http.Server
}

func NewServer(addr string, l *ledger.Ledger, v *verify.Engine) *Server {
	s := &Server{ledger: l, verifier: v}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // batch verification can take a while
	}
	return s
}

// Handler builds the route table. Exposed separately so tests can drive the
// API through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/fills/entry", s.handleEntry)
	mux.HandleFunc("POST /v1/fills/exit", s.handleExit)
	mux.HandleFunc("POST /v1/verify", s.handleVerify)
	mux.HandleFunc("GET /v1/positions/{owner}", s.handlePositions)
	mux.Handle("GET /metrics", observ.Handler())
	mux.Handle("GET /health", observ.Health())
	mux.Handle("GET /healthz", observ.HealthHandler())
	return mux
}

func (s *Server) Start() error {
	observ.Log("http_listen", map[string]any{"addr": s.srv.Addr})
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	var fill ledger.EntryFill
	if !decodeJSON(w, r, &fill) {
		return
	}
	lot, err := s.ledger.Entry(r.Context(), fill)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lot)
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	var fill ledger.ExitFill
	if !decodeJSON(w, r, &fill) {
		return
	}
	res, err := s.ledger.Exit(r.Context(), fill)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner required")
		return
	}
	lots, err := s.ledger.Positions(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "lots": lots})
}

type verifyRequest struct {
	Trades []verify.Trade `json:"trades"`
}

type verifyResponse struct {
	Results []verify.Result `json:"results"`
	Summary verify.Summary  `json:"summary"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Trades) == 0 {
		writeError(w, http.StatusBadRequest, "no trades given")
		return
	}
	results, summary, err := s.verifier.VerifyBatch(r.Context(), req.Trades, nil)
	if err != nil {
		// Client went away mid-batch; nothing useful to write.
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Results: results, Summary: summary})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return false
	}
	return true
}

func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrUnsupportedSymbol):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrNoOpenPosition):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
