package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-reservations/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetArea(areaID int64) (*models.Area, error) {
	var area models.Area
	err := d.Bun.NewSelect().
		Model(&area).
		Where("id = ?", areaID).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return &area, nil
}

// ActiveStageForArea finds the single stage currently in effect for an
// area: active, inside its window, with remaining capacity, first by
// ascending priority_order. Returns nil when no stage applies.
func (d *DB) ActiveStageForArea(areaID int64) (*models.ActiveStage, error) {
	var stage models.ActiveStage
	now := time.Now()
	err := d.Bun.NewSelect().
		ColumnExpr("ss.id AS id").
		ColumnExpr("ss.stage_name AS stage_name").
		ColumnExpr("ss.adjustment_type AS adjustment_type").
		ColumnExpr("ss.adjustment_value AS adjustment_value").
		ColumnExpr("ssa.quantity AS bundle_size").
		ColumnExpr("(ss.quantity_available - ss.quantity_sold) AS quantity_remaining").
		ColumnExpr("ss.priority_order AS priority_order").
		TableExpr("sale_stages AS ss").
		Join("JOIN sale_stage_areas AS ssa ON ssa.sale_stage_id = ss.id").
		Where("ssa.area_id = ?", areaID).
		Where("ss.is_active = ?", true).
		Where("ss.start_time <= ?", now).
		Where("(ss.end_time IS NULL OR ss.end_time > ?)", now).
		Where("(ss.quantity_available - ss.quantity_sold) > 0").
		OrderExpr("ss.priority_order ASC").
		Limit(1).
		Scan(context.Background(), &stage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

func (d *DB) PromotionByCode(code string) (*models.Promotion, error) {
	var promo models.Promotion
	err := d.Bun.NewSelect().
		Model(&promo).
		Where("promotion_code = ?", code).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

func (d *DB) ComboItems(promoID string) ([]models.PromotionComboItem, error) {
	var items []models.PromotionComboItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("promotion_id = ?", promoID).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ---------------- CAPACITY COUNTERS ----------------
//
// Both decrements are conditional writes guarded by remaining capacity,
// invoked only when a sale is confirmed. A price quote never consumes
// inventory.

func (d *DB) ConsumeStage(stageID string, quantity int) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.SaleStage)(nil)).
		Set("quantity_sold = quantity_sold + ?", quantity).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", stageID).
		Where("(quantity_available - quantity_sold) >= ?", quantity).
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (d *DB) ConsumePromotion(promoID string, quantity int) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Promotion)(nil)).
		Set("uses_count = uses_count + ?", quantity).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", promoID).
		Where("(quantity_available = 0 OR (quantity_available - uses_count) >= ?)", quantity).
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ---------------- STAGE ADMINISTRATION ----------------

// OverlappingStages counts active stages for the same area whose window
// overlaps [start, end) at the given priority. Used by creation-time
// validation; end.IsZero() means open-ended.
func (d *DB) OverlappingStages(areaID int64, start, end time.Time, priority int, excludeStageID string) (int, error) {
	q := d.Bun.NewSelect().
		TableExpr("sale_stages AS ss").
		Join("JOIN sale_stage_areas AS ssa ON ssa.sale_stage_id = ss.id").
		Where("ssa.area_id = ?", areaID).
		Where("ss.is_active = ?", true).
		Where("ss.priority_order = ?", priority)
	if excludeStageID != "" {
		q = q.Where("ss.id != ?", excludeStageID)
	}
	if end.IsZero() {
		q = q.Where("(ss.end_time IS NULL OR ss.end_time > ?)", start)
	} else {
		q = q.Where("ss.start_time < ?", end).
			Where("(ss.end_time IS NULL OR ss.end_time > ?)", start)
	}
	return q.Count(context.Background())
}

func (d *DB) InsertStage(stage *models.SaleStage, areas []models.SaleStageArea) error {
	ctx := context.Background()
	if _, err := d.Bun.NewInsert().Model(stage).Exec(ctx); err != nil {
		return err
	}
	if len(areas) > 0 {
		if _, err := d.Bun.NewInsert().Model(&areas).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) StagesByArea(areaID int64) ([]models.SaleStage, error) {
	var stages []models.SaleStage
	err := d.Bun.NewSelect().
		Model(&stages).
		Join("JOIN sale_stage_areas AS ssa ON ssa.sale_stage_id = sale_stage.id").
		Where("ssa.area_id = ?", areaID).
		OrderExpr("sale_stage.priority_order ASC, sale_stage.start_time ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return stages, nil
}
