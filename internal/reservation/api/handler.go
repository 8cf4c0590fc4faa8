package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-reservations/internal/auth"
	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/reservation"
	"ms-reservations/internal/utils"
)

type Handler struct {
	Service *reservation.Service
	Logger  *logger.Logger
}

func NewHandler(service *reservation.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/reservations", h.CreateReservation)
	r.Get("/reservations/{reservationId}", h.GetReservation)
	r.Get("/reservations/{reservationId}/timeout", h.Timeout)
	r.Delete("/reservations/{reservationId}", h.CancelReservation)
}

func (h *Handler) RegisterAuthedRoutes(r chi.Router) {
	r.Get("/my/reservations", h.MyReservations)
	r.Get("/my/tickets", h.MyTickets)
}

func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var in reservation.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid request body"))
		return
	}
	// An authenticated caller's identity wins over whatever the body
	// claims.
	if uid := auth.UserID(r.Context()); uid != "" {
		in.BuyerID = uid
	}

	result, err := h.Service.CreateReservation(in)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateReservation: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "reservation created", result)
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationId")
	res, units, err := h.Service.GetReservation(reservationID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "reservation", map[string]any{
		"reservation": res,
		"units":       units,
	})
}

func (h *Handler) Timeout(w http.ResponseWriter, r *http.Request) {
	info, err := h.Service.Timeout(chi.URLParam(r, "reservationId"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "timeout", info)
}

// Confirmation is not exposed here: only the payment gateway's webhook
// drives ConfirmReservation.

func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationId")
	callerID := auth.UserID(r.Context())
	if callerID == "" {
		// Public checkouts pass the buyer id explicitly.
		var body struct {
			BuyerID string `json:"buyer_id"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		callerID = body.BuyerID
	}

	if err := h.Service.CancelReservation(reservationID, callerID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CancelReservation %s: %v", reservationID, err))
		utils.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MyReservations(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.ListByBuyer(auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "reservations", rows)
}

func (h *Handler) MyTickets(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.MyTickets(auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "tickets", rows)
}
