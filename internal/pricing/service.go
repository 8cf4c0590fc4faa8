package pricing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/pricing/db"
)

// DBLayer is everything the pricing engine needs from storage.
type DBLayer interface {
	GetArea(areaID int64) (*models.Area, error)
	ActiveStageForArea(areaID int64) (*models.ActiveStage, error)
	PromotionByCode(code string) (*models.Promotion, error)
	ComboItems(promoID string) ([]models.PromotionComboItem, error)
	ConsumeStage(stageID string, quantity int) (bool, error)
	ConsumePromotion(promoID string, quantity int) (bool, error)
	OverlappingStages(areaID int64, start, end time.Time, priority int, excludeStageID string) (int, error)
	InsertStage(stage *models.SaleStage, areas []models.SaleStageArea) error
	StagesByArea(areaID int64) ([]models.SaleStage, error)
}

var _ DBLayer = (*db.DB)(nil)

// CalculatedPrice is a full quote breakdown. Quoting never consumes
// stage or promotion capacity; the counters move at confirm time.
type CalculatedPrice struct {
	AreaID        int64   `json:"area_id"`
	Quantity      int     `json:"quantity"`
	BundleSize    int     `json:"bundle_size"`
	TicketsCount  int     `json:"tickets_count"`
	BasePrice     float64 `json:"base_price"`
	UnitPrice     float64 `json:"unit_price"`
	Subtotal      float64 `json:"subtotal"`
	Discount      float64 `json:"discount"`
	ServiceFee    float64 `json:"service_fee"`
	Total         float64 `json:"total"`
	Currency      string  `json:"currency"`
	StageID       string  `json:"stage_id,omitempty"`
	StageName     string  `json:"stage_name,omitempty"`
	PromotionID   string  `json:"promotion_id,omitempty"`
	PromotionCode string  `json:"promotion_code,omitempty"`
}

// PromoValidation reports whether a code applies and why not when it
// doesn't. An inapplicable code is an answer, not an error.
type PromoValidation struct {
	Valid             bool    `json:"valid"`
	Reason            string  `json:"reason,omitempty"`
	PromotionID       string  `json:"promotion_id,omitempty"`
	PromotionName     string  `json:"promotion_name,omitempty"`
	DiscountType      string  `json:"discount_type,omitempty"`
	DiscountValue     float64 `json:"discount_value,omitempty"`
	MaxDiscountAmount float64 `json:"max_discount_amount,omitempty"`
}

type Engine struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewEngine(dbLayer DBLayer, log *logger.Logger) *Engine {
	return &Engine{DB: dbLayer, Logger: log}
}

// Quote prices quantity bundles in an area with an optional promo code.
// Tier first, promotion on top, service fee last.
func (e *Engine) Quote(areaID int64, quantity int, promoCode string) (*CalculatedPrice, error) {
	if quantity < 1 {
		return nil, errs.InvalidInput("quantity must be at least 1")
	}

	area, err := e.DB.GetArea(areaID)
	if err != nil {
		return nil, errs.NotFound(fmt.Sprintf("area %d not found", areaID))
	}

	stage, err := e.DB.ActiveStageForArea(areaID)
	if err != nil {
		return nil, err
	}

	quote := &CalculatedPrice{
		AreaID:     areaID,
		Quantity:   quantity,
		BundleSize: 1,
		BasePrice:  area.Price,
		UnitPrice:  area.Price,
		Currency:   area.Currency,
	}
	if stage != nil {
		quote.BundleSize = stage.BundleSize
		quote.StageID = stage.ID
		quote.StageName = stage.StageName
		quote.UnitPrice = applyAdjustment(area.Price, stage.AdjustmentType, stage.AdjustmentValue, stage.BundleSize)
	}

	if promoCode != "" {
		check, promo := e.validatePromo(promoCode, area, quantity)
		if !check.Valid {
			return nil, errs.InvalidInput(check.Reason)
		}
		quote.PromotionID = promo.ID
		quote.PromotionCode = promo.PromotionCode
		quote.UnitPrice = applyPromotion(quote.UnitPrice, promo)
	}

	quote.TicketsCount = quantity * quote.BundleSize
	quote.Subtotal = quote.BasePrice * float64(quote.TicketsCount)
	discounted := quote.UnitPrice * float64(quote.TicketsCount)
	quote.Discount = quote.Subtotal - discounted
	quote.ServiceFee = discounted * area.ServicePct / 100
	quote.Total = discounted + quote.ServiceFee

	e.Logger.LogDatabase("QUOTE", "areas",
		fmt.Sprintf("area=%d qty=%d stage=%s promo=%s total=%.2f",
			areaID, quantity, quote.StageID, quote.PromotionCode, quote.Total))
	return quote, nil
}

// QuoteUnits prices an explicit set of unitCount seats in one area.
// Unlike Quote, quantity here is already a ticket count, so bundle
// size only shapes the per-unit price and never multiplies the total.
func (e *Engine) QuoteUnits(areaID int64, unitCount int, promoCode string) (*CalculatedPrice, error) {
	if unitCount < 1 {
		return nil, errs.InvalidInput("at least one unit is required")
	}

	area, err := e.DB.GetArea(areaID)
	if err != nil {
		return nil, errs.NotFound(fmt.Sprintf("area %d not found", areaID))
	}
	stage, err := e.DB.ActiveStageForArea(areaID)
	if err != nil {
		return nil, err
	}

	quote := &CalculatedPrice{
		AreaID:       areaID,
		Quantity:     unitCount,
		BundleSize:   1,
		TicketsCount: unitCount,
		BasePrice:    area.Price,
		UnitPrice:    area.Price,
		Currency:     area.Currency,
	}
	if stage != nil {
		quote.BundleSize = stage.BundleSize
		quote.StageID = stage.ID
		quote.StageName = stage.StageName
		quote.UnitPrice = applyAdjustment(area.Price, stage.AdjustmentType, stage.AdjustmentValue, stage.BundleSize)
	}
	if promoCode != "" {
		check, promo := e.validatePromo(promoCode, area, unitCount)
		if !check.Valid {
			return nil, errs.InvalidInput(check.Reason)
		}
		quote.PromotionID = promo.ID
		quote.PromotionCode = promo.PromotionCode
		quote.UnitPrice = applyPromotion(quote.UnitPrice, promo)
	}

	quote.Subtotal = quote.BasePrice * float64(unitCount)
	discounted := quote.UnitPrice * float64(unitCount)
	quote.Discount = quote.Subtotal - discounted
	quote.ServiceFee = discounted * area.ServicePct / 100
	quote.Total = discounted + quote.ServiceFee
	return quote, nil
}

// ValidatePromo answers whether a code applies to an area without
// pricing anything.
func (e *Engine) ValidatePromo(code string, areaID int64, quantity int) (*PromoValidation, error) {
	area, err := e.DB.GetArea(areaID)
	if err != nil {
		return nil, errs.NotFound(fmt.Sprintf("area %d not found", areaID))
	}
	check, _ := e.validatePromo(code, area, quantity)
	return check, nil
}

// validatePromo runs the applicability checks in a fixed order so the
// caller always sees the most specific failure.
func (e *Engine) validatePromo(code string, area *models.Area, quantity int) (*PromoValidation, *models.Promotion) {
	promo, err := e.DB.PromotionByCode(strings.TrimSpace(code))
	if err != nil || promo == nil {
		return &PromoValidation{Reason: "promotion code not found"}, nil
	}
	now := time.Now()
	switch {
	case !promo.IsActive:
		return &PromoValidation{Reason: "promotion is not active"}, nil
	case promo.StartTime.After(now):
		return &PromoValidation{Reason: "promotion has not started yet"}, nil
	case !promo.EndTime.IsZero() && !promo.EndTime.After(now):
		return &PromoValidation{Reason: "promotion has expired"}, nil
	case quantity < promo.MinQuantity:
		return &PromoValidation{Reason: fmt.Sprintf("promotion requires at least %d units", promo.MinQuantity)}, nil
	case promo.QuantityAvailable > 0 && promo.QuantityAvailable-promo.UsesCount < quantity:
		return &PromoValidation{Reason: "promotion usage limit reached"}, nil
	}

	if !e.promoCoversArea(promo, area) {
		return &PromoValidation{Reason: "promotion does not apply to this area"}, nil
	}

	return &PromoValidation{
		Valid:             true,
		PromotionID:       promo.ID,
		PromotionName:     promo.PromotionName,
		DiscountType:      promo.DiscountType,
		DiscountValue:     promo.DiscountValue,
		MaxDiscountAmount: promo.MaxDiscountAmount,
	}, promo
}

func (e *Engine) promoCoversArea(promo *models.Promotion, area *models.Area) bool {
	if promo.TargetAreaID != 0 {
		return promo.TargetAreaID == area.ID
	}
	if promo.TargetClusterID != 0 {
		return promo.TargetClusterID == area.ClusterID
	}
	items, err := e.DB.ComboItems(promo.ID)
	if err != nil {
		return false
	}
	if len(items) == 0 {
		// No scope at all: applies everywhere.
		return true
	}
	for _, it := range items {
		if it.AreaID == area.ID {
			return true
		}
	}
	return false
}

// ---------------- CONFIRM-TIME CONSUMPTION ----------------

// ConsumeStage decrements stage capacity; loses the race when the stage
// sold out between quote and confirm.
func (e *Engine) ConsumeStage(stageID string, quantity int) error {
	if stageID == "" {
		return nil
	}
	ok, err := e.DB.ConsumeStage(stageID, quantity)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Conflict("sale stage sold out", map[string]any{"stage_id": stageID})
	}
	return nil
}

func (e *Engine) ConsumePromotion(promoID string, quantity int) error {
	if promoID == "" {
		return nil
	}
	ok, err := e.DB.ConsumePromotion(promoID, quantity)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Conflict("promotion usage limit reached", map[string]any{"promotion_id": promoID})
	}
	return nil
}

// ---------------- STAGE ADMINISTRATION ----------------

type CreateStageInput struct {
	StageName         string    `json:"stage_name"`
	Description       string    `json:"description"`
	AdjustmentType    string    `json:"adjustment_type"`
	AdjustmentValue   float64   `json:"adjustment_value"`
	QuantityAvailable int       `json:"quantity_available"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	PriorityOrder     int       `json:"priority_order"`
	AreaIDs           []int64   `json:"area_ids"`
	BundleSize        int       `json:"bundle_size"`
}

// CreateStage rejects a stage whose window overlaps another active stage
// on the same area at the same priority: two such stages would make the
// active-stage pick order-dependent, so the ambiguity is refused up
// front instead of resolved at quote time.
func (e *Engine) CreateStage(in CreateStageInput) (*models.SaleStage, error) {
	switch in.AdjustmentType {
	case models.AdjustPercentage, models.AdjustFixed, models.AdjustFixedPrice:
	default:
		return nil, errs.InvalidInput(fmt.Sprintf("unknown adjustment type %q", in.AdjustmentType))
	}
	if in.StageName == "" {
		return nil, errs.InvalidInput("stage name is required")
	}
	if len(in.AreaIDs) == 0 {
		return nil, errs.InvalidInput("stage must cover at least one area")
	}
	if !in.EndTime.IsZero() && !in.EndTime.After(in.StartTime) {
		return nil, errs.InvalidInput("end time must be after start time")
	}
	if in.BundleSize < 1 {
		in.BundleSize = 1
	}

	for _, areaID := range in.AreaIDs {
		n, err := e.DB.OverlappingStages(areaID, in.StartTime, in.EndTime, in.PriorityOrder, "")
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, errs.InvalidInput(
				fmt.Sprintf("another stage with priority %d overlaps this window for area %d", in.PriorityOrder, areaID))
		}
	}

	stage := &models.SaleStage{
		ID:                uuid.NewString(),
		StageName:         in.StageName,
		Description:       in.Description,
		AdjustmentType:    in.AdjustmentType,
		AdjustmentValue:   in.AdjustmentValue,
		QuantityAvailable: in.QuantityAvailable,
		StartTime:         in.StartTime,
		EndTime:           in.EndTime,
		IsActive:          true,
		PriorityOrder:     in.PriorityOrder,
		CreatedAt:         time.Now(),
	}
	areas := make([]models.SaleStageArea, 0, len(in.AreaIDs))
	for _, areaID := range in.AreaIDs {
		areas = append(areas, models.SaleStageArea{
			SaleStageID: stage.ID,
			AreaID:      areaID,
			Quantity:    in.BundleSize,
		})
	}
	if err := e.DB.InsertStage(stage, areas); err != nil {
		return nil, err
	}
	e.Logger.LogDatabase("INSERT", "sale_stages",
		fmt.Sprintf("stage=%s priority=%d areas=%d", stage.ID, stage.PriorityOrder, len(areas)))
	return stage, nil
}

func (e *Engine) StagesByArea(areaID int64) ([]models.SaleStage, error) {
	return e.DB.StagesByArea(areaID)
}

// applyAdjustment turns a base per-unit price into the stage price.
// fixed and fixed_price work on the bundle total and divide back down,
// so a "2 for 150000" stage prices each unit at 75000.
func applyAdjustment(base float64, kind string, value float64, bundleSize int) float64 {
	if bundleSize < 1 {
		bundleSize = 1
	}
	var unit float64
	switch kind {
	case models.AdjustPercentage:
		unit = base * (1 + value/100)
	case models.AdjustFixed:
		unit = (base*float64(bundleSize) + value) / float64(bundleSize)
	case models.AdjustFixedPrice:
		unit = value / float64(bundleSize)
	default:
		unit = base
	}
	if unit < 0 {
		return 0
	}
	return unit
}

// applyPromotion discounts the stage-adjusted unit price. A percentage
// promotion's per-unit discount is capped by MaxDiscountAmount when set.
func applyPromotion(unit float64, promo *models.Promotion) float64 {
	var out float64
	switch promo.DiscountType {
	case models.AdjustPercentage:
		discount := unit * promo.DiscountValue / 100
		if promo.MaxDiscountAmount > 0 && discount > promo.MaxDiscountAmount {
			discount = promo.MaxDiscountAmount
		}
		out = unit - discount
	case models.AdjustFixed:
		out = unit - promo.DiscountValue
	case models.AdjustFixedPrice:
		out = promo.DiscountValue
	default:
		out = unit
	}
	if out < 0 {
		return 0
	}
	return out
}
