package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-reservations/internal/logger"
	"ms-reservations/internal/payment"
	"ms-reservations/internal/utils"
)

type Handler struct {
	Service *payment.Service
	Logger  *logger.Logger
}

func NewHandler(service *payment.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/reservations/{reservationId}/payment", h.StartPayment)
	r.Get("/reservations/{reservationId}/payments", h.Payments)
	r.Post("/webhooks/stripe", h.StripeWebhook)
}

func (h *Handler) StartPayment(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationId")
	result, err := h.Service.StartPayment(reservationID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("StartPayment %s: %v", reservationID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "payment started", result)
}

func (h *Handler) Payments(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.PaymentsFor(chi.URLParam(r, "reservationId"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "payments", rows)
}

// StripeWebhook acks retries for anything already settled; Stripe keeps
// retrying non-2xx deliveries for days.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.HandleWebhook(r); err != nil {
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: %v", err))
		utils.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
