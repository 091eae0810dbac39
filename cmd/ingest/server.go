package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"solana-swap-indexer/internal/ingestion"
	"solana-swap-indexer/internal/observability"
	"solana-swap-indexer/internal/scheduler"
)

// opsServer exposes metrics, liveness and ingestion progress.
type opsServer struct {
	tip      scheduler.LatestSlotSource
	progress ingestion.ProgressReader
	log      *zap.SugaredLogger
	router   *mux.Router
}

func newOpsServer(tip scheduler.LatestSlotSource, progress ingestion.ProgressReader, log *zap.SugaredLogger) *opsServer {
	s := &opsServer{
		tip:      tip,
		progress: progress,
		log:      log,
		router:   mux.NewRouter(),
	}
	s.router.Handle("/metrics", observability.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/progress", s.handleProgress).Methods("GET")
	return s
}

func (s *opsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *opsServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *opsServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	p, err := ingestion.ReadProgress(r.Context(), s.progress, s.tip.Latest())
	if err != nil {
		s.log.Warnw("progress query failed", "err", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *opsServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Debugw("write response", "err", err)
	}
}
