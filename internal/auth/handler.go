package auth

import (
	"net/http"

	"ledger-serverless/internal/httpx"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Name      string `json:"name"`
	StudentID string `json:"studentId"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	IDToken string `json:"idToken"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}

	_, err := h.service.Register(r.Context(), RegisterInput{
		Name:      body.Name,
		StudentID: body.StudentID,
		Email:     body.Email,
		Password:  body.Password,
	})
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}

	httpx.WriteMessage(w, http.StatusOK, "User created successfully.")
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}

	result, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), body.Email); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}

	httpx.WriteMessage(w, http.StatusOK, "Password reset email sent successfully")
}

func (h *Handler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	var body tokenRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}

	userID, err := h.service.VerifyToken(r.Context(), body.IDToken)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Token is valid",
		"userId":  userID,
	})
}

func (h *Handler) SendVerification(w http.ResponseWriter, r *http.Request) {
	var body tokenRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}

	if err := h.service.SendVerificationEmail(r.Context(), body.IDToken); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}

	httpx.WriteMessage(w, http.StatusOK, "Verification email sent successfully")
}
