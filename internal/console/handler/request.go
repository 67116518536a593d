package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/enrollgate/internal/domain"
	"github.com/xela07ax/enrollgate/internal/infra/auth"
	"github.com/xela07ax/enrollgate/internal/workflow"
)

// RequestService Описываем, что нам нужно от workflow
type RequestService interface {
	Get(ctx context.Context, id string) (*domain.Request, error)
	List(ctx context.Context, status domain.Status) ([]*domain.Request, error)
	Decide(ctx context.Context, id, actor string, decision workflow.Decision) (*workflow.DecisionResult, error)
}

type RequestHandler struct {
	service RequestService
}

func NewRequestHandler(s RequestService) *RequestHandler {
	return &RequestHandler{service: s}
}

func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("status") // Достаем из ?status=...
	if raw == "" {
		raw = "PENDING" // Дефолт для удобства админки
	}
	status, ok := domain.ParseStatus(raw)
	if !ok {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}

	list, err := h.service.List(r.Context(), status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (h *RequestHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := h.service.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(req)
}

type DecideRequest struct {
	Decision string `json:"decision"` // "approve" или "reject"
}

type DecideResponse struct {
	Request  *domain.Request `json:"request"`
	Notified bool            `json:"notified"`
}

func (h *RequestHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Оператора достает из токена middleware
	actor, ok := auth.UserID(r.Context())
	if !ok || actor == "" {
		http.Error(w, "actor is required", http.StatusUnauthorized)
		return
	}

	decision := workflow.Decision(strings.ToLower(body.Decision))
	result, err := h.service.Decide(r.Context(), id, actor, decision)
	switch {
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case errors.Is(err, domain.ErrAlreadyDecided):
		http.Error(w, "request already decided", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(DecideResponse{Request: result.Request, Notified: result.Notified})
}
