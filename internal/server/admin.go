package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rishav/order-book/internal/marketdata"
	"github.com/rishav/order-book/internal/metrics"
)

// startAdmin binds the HTTP admin listener: prometheus scrape endpoint,
// health probe, clearing tallies, and the market data websocket feed.
func (s *Server) startAdmin() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/clearing", s.handleClearing)
	if s.publisher != nil {
		mux.Handle("/ws/marketdata", marketdata.NewHub(s.publisher, s.log))
	}

	s.admin = &http.Server{
		Addr:         s.cfg.AdminListen,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.cfg.AdminListen)
	if err != nil {
		return err
	}
	s.adminAddr = ln.Addr().String()
	s.log.Info().Str("addr", s.adminAddr).Msg("admin listening")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.admin.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("admin listener failed")
		}
	}()
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleClearing(w http.ResponseWriter, _ *http.Request) {
	if s.house == nil {
		http.Error(w, "clearing disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, s.house.Stats())
}

func (s *Server) stopAdmin(ctx context.Context) error {
	if s.admin == nil {
		return nil
	}
	return s.admin.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
