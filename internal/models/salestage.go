package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Price adjustment kinds shared by sale stages and promotions.
const (
	AdjustPercentage = "percentage"  // +/- percent of base price
	AdjustFixed      = "fixed"       // flat delta on the bundle total
	AdjustFixedPrice = "fixed_price" // replaces the bundle total
)

// SaleStage is a time-boxed price adjustment over one or more areas
// ("Early Bird" etc). Remaining capacity is quantity_available minus
// quantity_sold; quantity_sold is only incremented at confirm time.
type SaleStage struct {
	bun.BaseModel `bun:"table:sale_stages"`

	ID                string    `bun:"id,pk" json:"id"`
	StageName         string    `bun:"stage_name,notnull" json:"stage_name"`
	Description       string    `bun:"description,nullzero" json:"description,omitempty"`
	AdjustmentType    string    `bun:"adjustment_type,notnull" json:"adjustment_type"`
	AdjustmentValue   float64   `bun:"adjustment_value,notnull" json:"adjustment_value"`
	QuantityAvailable int       `bun:"quantity_available,notnull" json:"quantity_available"`
	QuantitySold      int       `bun:"quantity_sold,notnull,default:0" json:"quantity_sold"`
	StartTime         time.Time `bun:"start_time,notnull" json:"start_time"`
	EndTime           time.Time `bun:"end_time,nullzero" json:"end_time,omitempty"`
	IsActive          bool      `bun:"is_active,notnull,default:true" json:"is_active"`
	PriorityOrder     int       `bun:"priority_order,notnull,default:0" json:"priority_order"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// SaleStageArea links a stage to an area with the bundle quantity the
// stage price applies to (1 for plain discounts, N for "2x1" bundles).
type SaleStageArea struct {
	bun.BaseModel `bun:"table:sale_stage_areas"`

	ID          int64  `bun:"id,pk,autoincrement" json:"id"`
	SaleStageID string `bun:"sale_stage_id,notnull" json:"sale_stage_id"`
	AreaID      int64  `bun:"area_id,notnull" json:"area_id"`
	Quantity    int    `bun:"quantity,notnull,default:1" json:"quantity"`
}

// ActiveStage is the row the pricing engine works with: the stage joined
// to its area link, decoded once at the query boundary.
type ActiveStage struct {
	ID                string
	StageName         string
	AdjustmentType    string
	AdjustmentValue   float64
	BundleSize        int
	QuantityRemaining int
	PriorityOrder     int
}
