package web

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handlePortfolios(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	portfolios, err := s.repo.ListPortfolios()
	if err != nil {
		s.logger.Error("list portfolios", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, portfolios)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	portfolioID := r.URL.Query().Get("portfolio")
	if portfolioID == "" {
		http.Error(w, "portfolio query parameter is required", http.StatusBadRequest)
		return
	}

	entries, err := s.repo.HistoryEntries(portfolioID)
	if err != nil {
		s.logger.Error("load history entries", "portfolio", portfolioID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, entries)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	portfolioID := r.URL.Query().Get("portfolio")
	if portfolioID == "" {
		http.Error(w, "portfolio query parameter is required", http.StatusBadRequest)
		return
	}

	p, err := s.repo.PortfolioByID(portfolioID)
	if err != nil {
		http.Error(w, "portfolio not found", http.StatusNotFound)
		return
	}

	result, err := s.scheduler.SyncPortfolio(r.Context(), p.ID, p.UserID)
	if err != nil {
		s.logger.Error("sync portfolio history", "portfolio", portfolioID, "error", err)
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
