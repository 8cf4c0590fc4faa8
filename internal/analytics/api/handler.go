package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-reservations/internal/analytics"
	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/utils"
)

type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

func NewHandler(service *analytics.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics/{clusterSlug}", func(r chi.Router) {
		r.Get("/areas", h.SalesByArea)
		r.Get("/stages", h.StageUptake)
		r.Get("/promotions", h.PromoUsage)
		r.Get("/daily", h.DailySales)
	})
}

func (h *Handler) SalesByArea(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.SalesByArea(chi.URLParam(r, "clusterSlug"))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("SalesByArea: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "sales by area", rows)
}

func (h *Handler) StageUptake(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.StageUptakeForCluster(chi.URLParam(r, "clusterSlug"))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("StageUptake: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "stage uptake", rows)
}

func (h *Handler) PromoUsage(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.PromoUsageForCluster(chi.URLParam(r, "clusterSlug"))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PromoUsage: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "promotion usage", rows)
}

func (h *Handler) DailySales(w http.ResponseWriter, r *http.Request) {
	since := time.Now().AddDate(0, 0, -30)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.WriteError(w, errs.InvalidInput("since must be RFC3339"))
			return
		}
		since = parsed
	}
	rows, err := h.Service.DailySalesForCluster(chi.URLParam(r, "clusterSlug"), since)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("DailySales: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "daily sales", rows)
}
