package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/pricing"
	"ms-reservations/internal/utils"
)

type Handler struct {
	Engine *pricing.Engine
	Logger *logger.Logger
}

func NewHandler(engine *pricing.Engine, log *logger.Logger) *Handler {
	return &Handler{Engine: engine, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/areas/{areaId}/quote", h.Quote)
	r.Get("/areas/{areaId}/stages", h.StagesByArea)
	r.Post("/promotions/validate", h.ValidatePromo)
	r.Post("/stages", h.CreateStage)
}

// Quote prices a prospective purchase without touching any counters, so
// the storefront can poll it freely while the buyer hovers over seats.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	areaID, err := strconv.ParseInt(chi.URLParam(r, "areaId"), 10, 64)
	if err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid area id"))
		return
	}
	quantity := 1
	if q := r.URL.Query().Get("quantity"); q != "" {
		quantity, err = strconv.Atoi(q)
		if err != nil || quantity < 1 {
			utils.WriteError(w, errs.InvalidInput("invalid quantity"))
			return
		}
	}
	promoCode := r.URL.Query().Get("promo_code")

	quote, err := h.Engine.Quote(areaID, quantity, promoCode)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "quote", quote)
}

func (h *Handler) ValidatePromo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code     string `json:"code"`
		AreaID   int64  `json:"area_id"`
		Quantity int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid request body"))
		return
	}
	if body.Quantity < 1 {
		body.Quantity = 1
	}
	result, err := h.Engine.ValidatePromo(body.Code, body.AreaID, body.Quantity)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "promotion checked", result)
}

func (h *Handler) CreateStage(w http.ResponseWriter, r *http.Request) {
	var in pricing.CreateStageInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid request body"))
		return
	}
	stage, err := h.Engine.CreateStage(in)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateStage %s: %v", in.StageName, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "stage created", stage)
}

func (h *Handler) StagesByArea(w http.ResponseWriter, r *http.Request) {
	areaID, err := strconv.ParseInt(chi.URLParam(r, "areaId"), 10, 64)
	if err != nil {
		utils.WriteError(w, errs.InvalidInput("invalid area id"))
		return
	}
	rows, err := h.Engine.StagesByArea(areaID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "stages", rows)
}
