package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/sse"
	"ms-reservations/internal/tickets"
	"ms-reservations/internal/utils"
)

type Handler struct {
	Service *tickets.Service
	Emitter *sse.GateEventEmitter
	Logger  *logger.Logger
}

func NewHandler(service *tickets.Service, emitter *sse.GateEventEmitter, log *logger.Logger) *Handler {
	return &Handler{Service: service, Emitter: emitter, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/gate/validate", h.ValidateAtGate)
	r.Post("/tickets/qr", h.RenderQR)
	r.Post("/tickets/{ruId}/reset", h.ResetTicket)
	r.Get("/tickets/{ruId}/history", h.History)
	r.Get("/events/{eventSlug}/checkin-stats", h.Stats)
	r.Get("/events/{eventSlug}/gate/stream", h.StreamScans)
}

// ValidateAtGate always answers 200 with a gate verdict; only transport
// level failures surface as errors. Scanners key off result.status.
func (h *Handler) ValidateAtGate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token     string `json:"token"`
		EventSlug string `json:"event_slug"`
		Operator  string `json:"operator"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid request body"))
		return
	}
	result, err := h.Service.ValidateAtGate(body.Token, body.EventSlug, body.Operator)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ValidateAtGate: %v", err))
		utils.WriteError(w, err)
		return
	}

	if h.Emitter != nil {
		scan := sse.GateScan{
			EventSlug: body.EventSlug,
			Status:    result.Status,
			Reason:    result.Reason,
			Operator:  body.Operator,
			At:        time.Now(),
		}
		if result.Ticket != nil {
			scan.ReservationUnitID = result.Ticket.ReservationUnitID
		}
		h.Emitter.Emit(scan)
	}

	utils.WriteJSON(w, http.StatusOK, "gate check", result)
}

// StreamScans feeds a live check-in board over SSE. One message per
// scan at this event's gates, until the client disconnects.
func (h *Handler) StreamScans(w http.ResponseWriter, r *http.Request) {
	eventSlug := chi.URLParam(r, "eventSlug")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	scans := h.Emitter.Subscribe(ctx, eventSlug)

	fmt.Fprintf(w, "event: connected\ndata: {\"event_slug\":%q}\n\n", eventSlug)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Board connected to gate stream for %s", eventSlug))

	for {
		select {
		case scan, ok := <-scans:
			if !ok {
				return
			}
			payload, err := json.Marshal(scan)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize gate scan: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: scan\ndata: %s\n\n", payload)
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Board disconnected from gate stream for %s", eventSlug))
			return
		}
	}
}

func (h *Handler) RenderQR(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		utils.WriteError(w, errs.InvalidInput("token is required"))
		return
	}
	png, err := h.Service.IssueQR(body.Token)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) ResetTicket(w http.ResponseWriter, r *http.Request) {
	ruID, err := strconv.ParseInt(chi.URLParam(r, "ruId"), 10, 64)
	if err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid ticket id"))
		return
	}
	var body struct {
		Operator string `json:"operator"`
		Reason   string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid request body"))
		return
	}
	if err := h.Service.ResetTicket(ruID, body.Operator, body.Reason); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ResetTicket %d: %v", ruID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "ticket reset", map[string]any{
		"reservation_unit_id": ruID,
	})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	ruID, err := strconv.ParseInt(chi.URLParam(r, "ruId"), 10, 64)
	if err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid ticket id"))
		return
	}
	rows, err := h.Service.History(ruID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "history", rows)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Stats(chi.URLParam(r, "eventSlug"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "check-in stats", stats)
}
