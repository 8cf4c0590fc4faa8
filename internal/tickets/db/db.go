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

// TicketInfo is everything a gate scan needs in one row: the unit's
// state plus the display fields shown to the steward.
type TicketInfo struct {
	ReservationUnitID int64   `bun:"reservation_unit_id"`
	ReservationID     string  `bun:"reservation_id"`
	UnitID            int64   `bun:"unit_id"`
	Status            string  `bun:"status"`
	HolderID          string  `bun:"holder_id"`
	HolderName        string  `bun:"holder_name"`
	HolderEmail       string  `bun:"holder_email"`
	EventSlug         string  `bun:"event_slug"`
	EventName         string  `bun:"event_name"`
	AreaName          string  `bun:"area_name"`
	RowLetter         string  `bun:"row_letter"`
	SeatNumber        int     `bun:"seat_number"`
	PricePaid         float64 `bun:"price_paid"`
}

func (d *DB) TicketInfoByRUID(ruID int64) (*TicketInfo, error) {
	var info TicketInfo
	err := d.Bun.NewSelect().
		ColumnExpr("ru.id AS reservation_unit_id").
		ColumnExpr("ru.reservation_id AS reservation_id").
		ColumnExpr("ru.unit_id AS unit_id").
		ColumnExpr("ru.status AS status").
		ColumnExpr("ru.holder_id AS holder_id").
		ColumnExpr("ru.price_paid AS price_paid").
		ColumnExpr("p.name AS holder_name").
		ColumnExpr("p.email AS holder_email").
		ColumnExpr("c.slug AS event_slug").
		ColumnExpr("c.cluster_name AS event_name").
		ColumnExpr("a.area_name AS area_name").
		ColumnExpr("u.row_letter AS row_letter").
		ColumnExpr("u.seat_number AS seat_number").
		TableExpr("reservation_units AS ru").
		Join("JOIN units AS u ON u.id = ru.unit_id").
		Join("JOIN areas AS a ON a.id = u.area_id").
		Join("JOIN clusters AS c ON c.id = a.cluster_id").
		Join("LEFT JOIN profiles AS p ON p.id = ru.holder_id").
		Where("ru.id = ?", ruID).
		Limit(1).
		Scan(context.Background(), &info)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// MarkUsed flips a ticket confirmed -> used. On a double scan only one
// caller gets true; the other sees zero rows affected.
func (d *DB) MarkUsed(ruID int64) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.ReservationUnit)(nil)).
		Set("status = ?", models.RUnitUsed).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", ruID).
		Where("status = ?", models.RUnitConfirmed).
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ResetUsed flips used -> confirmed for operator corrections.
func (d *DB) ResetUsed(ruID int64) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.ReservationUnit)(nil)).
		Set("status = ?", models.RUnitConfirmed).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", ruID).
		Where("status = ?", models.RUnitUsed).
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (d *DB) InsertHistory(h *models.RUnitStatusHistory) error {
	_, err := d.Bun.NewInsert().Model(h).Exec(context.Background())
	return err
}

func (d *DB) HistoryByRUID(ruID int64) ([]models.RUnitStatusHistory, error) {
	var rows []models.RUnitStatusHistory
	err := d.Bun.NewSelect().
		Model(&rows).
		Where("reservation_unit_id = ?", ruID).
		OrderExpr("created_at DESC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CheckInStats aggregates gate progress for one event.
type CheckInStats struct {
	EventSlug string `bun:"event_slug" json:"event_slug"`
	Confirmed int    `bun:"confirmed" json:"confirmed"`
	Used      int    `bun:"used" json:"used"`
}

func (d *DB) StatsForEvent(eventSlug string) (*CheckInStats, error) {
	stats := CheckInStats{EventSlug: eventSlug}
	err := d.Bun.NewSelect().
		ColumnExpr("COUNT(*) FILTER (WHERE ru.status = ?) AS confirmed", models.RUnitConfirmed).
		ColumnExpr("COUNT(*) FILTER (WHERE ru.status = ?) AS used", models.RUnitUsed).
		TableExpr("reservation_units AS ru").
		Join("JOIN units AS u ON u.id = ru.unit_id").
		Join("JOIN areas AS a ON a.id = u.area_id").
		Join("JOIN clusters AS c ON c.id = a.cluster_id").
		Where("c.slug = ?", eventSlug).
		Scan(context.Background(), &stats)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
