package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-reservations/internal/auth"
	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/transfer"
	"ms-reservations/internal/utils"
)

type Handler struct {
	Service *transfer.Service
	Logger  *logger.Logger
}

func NewHandler(service *transfer.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/transfers", h.Initiate)
	r.Post("/transfers/accept", h.Accept)
	r.Delete("/transfers/{transferId}", h.Cancel)
	r.Post("/transfers/{transferId}/resend", h.Resend)
	r.Get("/my/transfers/outgoing", h.Outgoing)
	r.Get("/my/transfers/incoming", h.Incoming)
	r.Get("/my/transfers/history", h.History)
}

func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ReservationUnitID int64  `json:"reservation_unit_id"`
		ToEmail           string `json:"to_email"`
		Message           string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid request body"))
		return
	}

	t, err := h.Service.Initiate(body.ReservationUnitID, auth.UserID(r.Context()), body.ToEmail, body.Message)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("InitiateTransfer ru %d: %v", body.ReservationUnitID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "transfer created", t)
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		utils.WriteError(w, errs.InvalidInput("token is required"))
		return
	}

	result, err := h.Service.Accept(body.Token, auth.UserID(r.Context()), auth.UserEmail(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("AcceptTransfer: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "transfer accepted", result)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	transferID, err := strconv.ParseInt(chi.URLParam(r, "transferId"), 10, 64)
	if err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid transfer id"))
		return
	}
	if err := h.Service.Cancel(transferID, auth.UserID(r.Context())); err != nil {
		utils.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	transferID, err := strconv.ParseInt(chi.URLParam(r, "transferId"), 10, 64)
	if err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid transfer id"))
		return
	}
	if err := h.Service.Resend(transferID, auth.UserID(r.Context())); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "invitation resent", map[string]any{
		"transfer_id": transferID,
	})
}

func (h *Handler) Outgoing(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.Outgoing(auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "outgoing transfers", rows)
}

func (h *Handler) Incoming(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.Incoming(auth.UserEmail(r.Context()))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "incoming transfers", rows)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.History(auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "transfer history", rows)
}
