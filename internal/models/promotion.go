package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Promotion is a named, optionally usage-capped code applied on top of
// the stage-adjusted price. QuantityAvailable == 0 means uncapped.
type Promotion struct {
	bun.BaseModel `bun:"table:promotions"`

	ID                string    `bun:"id,pk" json:"id"`
	PromotionName     string    `bun:"promotion_name,notnull" json:"promotion_name"`
	PromotionCode     string    `bun:"promotion_code,notnull,unique" json:"promotion_code"`
	DiscountType      string    `bun:"discount_type,notnull" json:"discount_type"`
	DiscountValue     float64   `bun:"discount_value,notnull" json:"discount_value"`
	MaxDiscountAmount float64   `bun:"max_discount_amount,nullzero" json:"max_discount_amount,omitempty"`
	MinQuantity       int       `bun:"min_quantity,notnull,default:1" json:"min_quantity"`
	QuantityAvailable int       `bun:"quantity_available,nullzero" json:"quantity_available,omitempty"`
	UsesCount         int       `bun:"uses_count,notnull,default:0" json:"uses_count"`
	TargetClusterID   int64     `bun:"target_cluster_id,nullzero" json:"target_cluster_id,omitempty"`
	TargetAreaID      int64     `bun:"target_area_id,nullzero" json:"target_area_id,omitempty"`
	StartTime         time.Time `bun:"start_time,notnull" json:"start_time"`
	EndTime           time.Time `bun:"end_time,nullzero" json:"end_time,omitempty"`
	IsActive          bool      `bun:"is_active,notnull,default:true" json:"is_active"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// PromotionComboItem is one (area, quantity) leg of a combo promotion.
// A promotion with combo items prices the whole bundle; one without
// them is a plain per-area code.
type PromotionComboItem struct {
	bun.BaseModel `bun:"table:promotion_combo_items"`

	ID          int64  `bun:"id,pk,autoincrement" json:"id"`
	PromotionID string `bun:"promotion_id,notnull" json:"promotion_id"`
	AreaID      int64  `bun:"area_id,notnull" json:"area_id"`
	Quantity    int    `bun:"quantity,notnull,default:1" json:"quantity"`
}
