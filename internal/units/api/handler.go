package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/units"
	"ms-reservations/internal/utils"
)

type Handler struct {
	Ledger *units.Ledger
	Logger *logger.Logger
}

func NewHandler(ledger *units.Ledger, log *logger.Logger) *Handler {
	return &Handler{Ledger: ledger, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/areas/{areaId}/units", h.UnitsMap)
	r.Post("/areas/{areaId}/units", h.CreateUnits)
	r.Patch("/units/{unitId}/status", h.SetUnitStatus)
}

func (h *Handler) UnitsMap(w http.ResponseWriter, r *http.Request) {
	areaID, err := strconv.ParseInt(chi.URLParam(r, "areaId"), 10, 64)
	if err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid area id"))
		return
	}
	rows, err := h.Ledger.UnitsMap(areaID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "units", rows)
}

func (h *Handler) CreateUnits(w http.ResponseWriter, r *http.Request) {
	areaID, err := strconv.ParseInt(chi.URLParam(r, "areaId"), 10, 64)
	if err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid area id"))
		return
	}
	var body struct {
		Quantity    int    `json:"quantity"`
		RowLetter   string `json:"row_letter"`
		StartNumber int    `json:"start_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid request body"))
		return
	}
	created, err := h.Ledger.CreateUnitsBulk(areaID, body.Quantity, body.RowLetter, body.StartNumber)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateUnits area %d: %v", areaID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "units created", created)
}

func (h *Handler) SetUnitStatus(w http.ResponseWriter, r *http.Request) {
	unitID, err := strconv.ParseInt(chi.URLParam(r, "unitId"), 10, 64)
	if err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid unit id"))
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid request body"))
		return
	}
	if err := h.Ledger.BlockUnit(unitID, body.Status); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "unit updated", map[string]any{
		"unit_id": unitID,
		"status":  body.Status,
	})
}
