package account

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ledger-serverless/internal/apperr"
	"ledger-serverless/internal/httpx"
)

type Getter interface {
	Get(ctx context.Context, id string) (Account, error)
}

type Handler struct {
	accounts Getter
}

func NewHandler(accounts Getter) *Handler {
	return &Handler{accounts: accounts}
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, "user id is required")
		return
	}

	a, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "User not found")
			return
		}
		httpx.WriteAppError(w, r, apperr.Store("failed to fetch user", err))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"data": a})
}
