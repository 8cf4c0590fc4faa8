package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-reservations/internal/models"
)

// Service answers read-only sales questions for organizer dashboards.
// Every query aggregates in the database; nothing here mutates state.
type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// AreaSales summarizes one area's selling performance.
type AreaSales struct {
	AreaID    int64   `json:"area_id"`
	AreaName  string  `json:"area_name"`
	Capacity  int     `json:"capacity"`
	UnitsSold int     `json:"units_sold"`
	Revenue   float64 `json:"revenue"`
	Currency  string  `json:"currency"`
}

// StageUptake reports how much of a sale stage's allocation moved.
type StageUptake struct {
	StageID           string  `json:"stage_id"`
	StageName         string  `json:"stage_name"`
	QuantitySold      int     `json:"quantity_sold"`
	QuantityAvailable int     `json:"quantity_available"`
	Revenue           float64 `json:"revenue"`
}

// PromoUsage reports redemptions and money given away per promotion.
type PromoUsage struct {
	PromotionID   string  `json:"promotion_id"`
	PromotionName string  `json:"promotion_name"`
	PromotionCode string  `json:"promotion_code"`
	UsesCount     int     `json:"uses_count"`
	UnitsSold     int     `json:"units_sold"`
	Revenue       float64 `json:"revenue"`
}

// DailySales is one day's confirmed volume for a cluster.
type DailySales struct {
	Day       time.Time `json:"day"`
	UnitsSold int       `json:"units_sold"`
	Revenue   float64   `json:"revenue"`
}

func (s *Service) SalesByArea(clusterSlug string) ([]AreaSales, error) {
	var rows []AreaSales
	err := s.db.NewSelect().
		TableExpr("areas AS a").
		Join("JOIN clusters AS c ON c.id = a.cluster_id").
		Join("LEFT JOIN units AS u ON u.area_id = a.id").
		Join("LEFT JOIN reservation_units AS ru ON ru.unit_id = u.id AND ru.status IN (?)",
			bun.In([]string{models.RUnitConfirmed, models.RUnitUsed, models.RUnitTransferred})).
		ColumnExpr("a.id AS area_id").
		ColumnExpr("a.area_name").
		ColumnExpr("a.capacity").
		ColumnExpr("COUNT(ru.id) AS units_sold").
		ColumnExpr("COALESCE(SUM(ru.price_paid), 0) AS revenue").
		ColumnExpr("a.currency").
		Where("c.slug = ?", clusterSlug).
		GroupExpr("a.id, a.area_name, a.capacity, a.currency").
		OrderExpr("a.id").
		Scan(context.Background(), &rows)
	if err != nil {
		return nil, fmt.Errorf("sales by area: %w", err)
	}
	return rows, nil
}

func (s *Service) StageUptakeForCluster(clusterSlug string) ([]StageUptake, error) {
	var rows []StageUptake
	err := s.db.NewSelect().
		TableExpr("sale_stages AS ss").
		Join("JOIN sale_stage_areas AS ssa ON ssa.sale_stage_id = ss.id").
		Join("JOIN areas AS a ON a.id = ssa.area_id").
		Join("JOIN clusters AS c ON c.id = a.cluster_id").
		Join("LEFT JOIN reservation_units AS ru ON ru.applied_stage_id = ss.id AND ru.status IN (?)",
			bun.In([]string{models.RUnitConfirmed, models.RUnitUsed, models.RUnitTransferred})).
		ColumnExpr("ss.id AS stage_id").
		ColumnExpr("ss.stage_name").
		ColumnExpr("COUNT(ru.id) AS quantity_sold").
		ColumnExpr("ss.quantity_available").
		ColumnExpr("COALESCE(SUM(ru.price_paid), 0) AS revenue").
		Where("c.slug = ?", clusterSlug).
		GroupExpr("ss.id, ss.stage_name, ss.quantity_available").
		OrderExpr("ss.priority_order, ss.id").
		Scan(context.Background(), &rows)
	if err != nil {
		return nil, fmt.Errorf("stage uptake: %w", err)
	}
	return rows, nil
}

func (s *Service) PromoUsageForCluster(clusterSlug string) ([]PromoUsage, error) {
	var rows []PromoUsage
	err := s.db.NewSelect().
		TableExpr("promotions AS p").
		Join("LEFT JOIN reservation_units AS ru ON ru.applied_promo_id = p.id AND ru.status IN (?)",
			bun.In([]string{models.RUnitConfirmed, models.RUnitUsed, models.RUnitTransferred})).
		Join("LEFT JOIN units AS u ON u.id = ru.unit_id").
		Join("LEFT JOIN areas AS a ON a.id = u.area_id").
		Join("LEFT JOIN clusters AS c ON c.id = a.cluster_id").
		ColumnExpr("p.id AS promotion_id").
		ColumnExpr("p.promotion_name").
		ColumnExpr("p.promotion_code").
		ColumnExpr("p.uses_count").
		ColumnExpr("COUNT(ru.id) AS units_sold").
		ColumnExpr("COALESCE(SUM(ru.price_paid), 0) AS revenue").
		Where("c.slug = ? OR ru.id IS NULL", clusterSlug).
		GroupExpr("p.id, p.promotion_name, p.promotion_code, p.uses_count").
		OrderExpr("p.uses_count DESC").
		Scan(context.Background(), &rows)
	if err != nil {
		return nil, fmt.Errorf("promo usage: %w", err)
	}
	return rows, nil
}

func (s *Service) DailySalesForCluster(clusterSlug string, since time.Time) ([]DailySales, error) {
	var rows []DailySales
	err := s.db.NewSelect().
		TableExpr("reservation_units AS ru").
		Join("JOIN units AS u ON u.id = ru.unit_id").
		Join("JOIN areas AS a ON a.id = u.area_id").
		Join("JOIN clusters AS c ON c.id = a.cluster_id").
		ColumnExpr("date_trunc('day', ru.updated_at) AS day").
		ColumnExpr("COUNT(ru.id) AS units_sold").
		ColumnExpr("COALESCE(SUM(ru.price_paid), 0) AS revenue").
		Where("c.slug = ?", clusterSlug).
		Where("ru.status IN (?)", bun.In([]string{models.RUnitConfirmed, models.RUnitUsed, models.RUnitTransferred})).
		Where("ru.updated_at >= ?", since).
		GroupExpr("date_trunc('day', ru.updated_at)").
		OrderExpr("day").
		Scan(context.Background(), &rows)
	if err != nil {
		return nil, fmt.Errorf("daily sales: %w", err)
	}
	return rows, nil
}
