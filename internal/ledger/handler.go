package ledger

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ledger-serverless/internal/httpx"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type loanRequest struct {
	UserID string  `json:"userId"`
	Vendor string  `json:"vendor"`
	Amount *Amount `json:"amount"`
}

func (h *Handler) AddLoan(w http.ResponseWriter, r *http.Request) {
	req, ok := parseLoanRequest(w, r)
	if !ok {
		return
	}

	balance, err := h.service.AddLoan(r.Context(), req.UserID, req.Vendor, *req.Amount)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message":   "Loan added successfully",
		"newAmount": balance,
	})
}

func (h *Handler) ClearLoan(w http.ResponseWriter, r *http.Request) {
	req, ok := parseLoanRequest(w, r)
	if !ok {
		return
	}

	balance, err := h.service.ClearLoan(r.Context(), req.UserID, req.Vendor, *req.Amount)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message":   "Loan cleared successfully",
		"newAmount": balance,
	})
}

func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	balance, err := h.service.GetLoan(r.Context(), query.Get("userId"), query.Get("vendor"))
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"amount": balance})
}

func (h *Handler) RecentTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	transactions, err := h.service.RecentTransactions(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

func parseLoanRequest(w http.ResponseWriter, r *http.Request) (loanRequest, bool) {
	var req loanRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return loanRequest{}, false
	}

	if req.UserID == "" || req.Vendor == "" || req.Amount == nil {
		httpx.WriteError(w, http.StatusBadRequest, "Missing fields in request")
		return loanRequest{}, false
	}
	return req, true
}
