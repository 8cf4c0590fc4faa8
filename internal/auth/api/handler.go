package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-reservations/internal/auth"
	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/utils"
)

type Handler struct {
	Service *auth.Service
	Logger  *logger.Logger
}

func NewHandler(service *auth.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/session", h.OpenSession)
	r.Delete("/auth/session", h.CloseSession)
}

func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid request body"))
		return
	}
	result, err := h.Service.Login(body.Email, body.Name)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("OpenSession: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "session opened", result)
}

func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	rawToken, err := auth.ExtractTokenFromRequest(r)
	if err != nil {
		utils.WriteError(w, errs.Unauthorized(err.Error()))
		return
	}
	if err := h.Service.Logout(rawToken); err != nil {
		utils.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
