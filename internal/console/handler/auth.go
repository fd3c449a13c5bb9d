package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/integrity-gate/internal/console/service"
	"github.com/xela07ax/integrity-gate/internal/domain"
)

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(s *service.AuthService) *AuthHandler {
	return &AuthHandler{service: s}
}

// Login выдает RS256 токен по учетке оператора
// POST /auth/token {"username": "...", "password": "..."}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := h.service.GenerateToken(r.Context(), req.Username, req.Password)
	if err != nil {
		// tip: Детали не отдаем — для атакующего это один и тот же отказ
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	writeJSON(w, token)
}
