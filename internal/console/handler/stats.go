package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xela07ax/enrollgate/internal/domain"
)

type StatsProvider interface {
	Stats(ctx context.Context) (domain.Stats, error)
}

type StatsHandler struct {
	service StatsProvider
}

func NewStatsHandler(s StatsProvider) *StatsHandler {
	return &StatsHandler{service: s}
}

func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
