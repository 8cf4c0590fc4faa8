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

func (d *DB) InsertPayment(p *models.Payment) error {
	_, err := d.Bun.NewInsert().Model(p).Exec(context.Background())
	return err
}

func (d *DB) PaymentByReference(reference string) (*models.Payment, error) {
	var p models.Payment
	err := d.Bun.NewSelect().
		Model(&p).
		Where("reference = ?", reference).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *DB) PaymentsByReservation(reservationID string) ([]models.Payment, error) {
	var rows []models.Payment
	err := d.Bun.NewSelect().
		Model(&rows).
		Where("reservation_id = ?", reservationID).
		OrderExpr("created_at DESC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SettlePayment moves a pending payment to its terminal status; webhook
// redeliveries move zero rows and are harmless.
func (d *DB) SettlePayment(reference, status string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("reference = ?", reference).
		Where("status = ?", models.PaymentPending).
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ReservationTotal recomputes what the buyer owes from the per-unit
// price snapshots plus each area's service fee.
func (d *DB) ReservationTotal(reservationID string) (float64, string, error) {
	var row struct {
		Total    float64 `bun:"total"`
		Currency string  `bun:"currency"`
	}
	err := d.Bun.NewSelect().
		ColumnExpr("COALESCE(SUM(ru.price_paid * (1 + COALESCE(a.service_pct, 0) / 100)), 0) AS total").
		ColumnExpr("MIN(a.currency) AS currency").
		TableExpr("reservation_units AS ru").
		Join("JOIN units AS u ON u.id = ru.unit_id").
		Join("JOIN areas AS a ON a.id = u.area_id").
		Where("ru.reservation_id = ?", reservationID).
		Where("ru.status != ?", models.RUnitCancelled).
		Scan(context.Background(), &row)
	if err != nil {
		return 0, "", err
	}
	return row.Total, row.Currency, nil
}
