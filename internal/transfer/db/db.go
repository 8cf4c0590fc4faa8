package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"ms-reservations/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// TransferUnit is the slice of a reservation unit the workflow needs:
// ownership, state and where the seat lives.
type TransferUnit struct {
	ReservationUnitID int64  `bun:"reservation_unit_id"`
	ReservationID     string `bun:"reservation_id"`
	UnitID            int64  `bun:"unit_id"`
	HolderID          string `bun:"holder_id"`
	Status            string `bun:"status"`
	EventSlug         string `bun:"event_slug"`
}

func (d *DB) UnitForTransfer(ruID int64) (*TransferUnit, error) {
	var u TransferUnit
	err := d.Bun.NewSelect().
		ColumnExpr("ru.id AS reservation_unit_id").
		ColumnExpr("ru.reservation_id AS reservation_id").
		ColumnExpr("ru.unit_id AS unit_id").
		ColumnExpr("ru.holder_id AS holder_id").
		ColumnExpr("ru.status AS status").
		ColumnExpr("c.slug AS event_slug").
		TableExpr("reservation_units AS ru").
		Join("JOIN units AS u ON u.id = ru.unit_id").
		Join("JOIN areas AS a ON a.id = u.area_id").
		Join("JOIN clusters AS c ON c.id = a.cluster_id").
		Where("ru.id = ?", ruID).
		Limit(1).
		Scan(context.Background(), &u)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *DB) InsertTransfer(t *models.TransferLog) error {
	_, err := d.Bun.NewInsert().Model(t).Exec(context.Background())
	return err
}

func (d *DB) TransferByID(id int64) (*models.TransferLog, error) {
	var t models.TransferLog
	err := d.Bun.NewSelect().
		Model(&t).
		Where("id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (d *DB) TransferByToken(token string) (*models.TransferLog, error) {
	var t models.TransferLog
	err := d.Bun.NewSelect().
		Model(&t).
		Where("token = ?", token).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// PendingForUnit finds an open transfer on a unit; at most one may
// exist at a time.
func (d *DB) PendingForUnit(ruID int64) (*models.TransferLog, error) {
	var t models.TransferLog
	err := d.Bun.NewSelect().
		Model(&t).
		Where("reservation_unit_id = ?", ruID).
		Where("status = ?", models.TransferPending).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TransitionTransfer moves a transfer between statuses; accept, cancel
// and the sweep race through here with one winner.
func (d *DB) TransitionTransfer(id int64, toStatus string, fromStatuses ...string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.TransferLog)(nil)).
		Set("status = ?", toStatus).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(fromStatuses)).
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// AcceptTransfer flips pending -> accepted and records the recipient in
// the same statement.
func (d *DB) AcceptTransfer(id int64, toUserID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.TransferLog)(nil)).
		Set("status = ?", models.TransferAccepted).
		Set("to_user_id = ?", toUserID).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("status = ?", models.TransferPending).
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// AssignHolder hands a transferred unit to its new owner and puts it
// back in circulation.
func (d *DB) AssignHolder(ruID int64, holderID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.ReservationUnit)(nil)).
		Set("holder_id = ?", holderID).
		Set("status = ?", models.RUnitConfirmed).
		Set("transfer_date = ?", time.Now()).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", ruID).
		Where("status = ?", models.RUnitTransferred).
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// RestoreHolder returns a parked unit to its current owner when a
// transfer dies without being accepted.
func (d *DB) RestoreHolder(ruID int64) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.ReservationUnit)(nil)).
		Set("status = ?", models.RUnitConfirmed).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", ruID).
		Where("status = ?", models.RUnitTransferred).
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ParkUnit takes a confirmed unit out of circulation while an offer is
// open. Only one initiate per unit can win this write.
func (d *DB) ParkUnit(ruID int64) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.ReservationUnit)(nil)).
		Set("status = ?", models.RUnitTransferred).
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

func (d *DB) OutgoingByUser(fromUserID string) ([]models.TransferSummary, error) {
	var rows []models.TransferSummary
	err := d.Bun.NewSelect().
		ColumnExpr("t.id AS id").
		ColumnExpr("t.reservation_unit_id AS reservation_unit_id").
		ColumnExpr("t.to_email AS to_email").
		ColumnExpr("t.status AS status").
		ColumnExpr("c.cluster_name AS event_name").
		ColumnExpr("(u.row_letter || '-' || u.seat_number) AS unit_display_name").
		ColumnExpr("t.created_at AS initiated_at").
		ColumnExpr("t.expires_at AS expires_at").
		TableExpr("transfer_log AS t").
		Join("JOIN reservation_units AS ru ON ru.id = t.reservation_unit_id").
		Join("JOIN units AS u ON u.id = ru.unit_id").
		Join("JOIN areas AS a ON a.id = u.area_id").
		Join("JOIN clusters AS c ON c.id = a.cluster_id").
		Where("t.from_user_id = ?", fromUserID).
		OrderExpr("t.created_at DESC").
		Scan(context.Background(), &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (d *DB) IncomingByEmail(email string) ([]models.PendingTransfer, error) {
	var rows []models.PendingTransfer
	err := d.Bun.NewSelect().
		ColumnExpr("t.id AS id").
		ColumnExpr("t.token AS token").
		ColumnExpr("p.name AS from_user_name").
		ColumnExpr("p.email AS from_user_email").
		ColumnExpr("c.cluster_name AS event_name").
		ColumnExpr("c.start_date AS event_date").
		ColumnExpr("a.area_name AS area_name").
		ColumnExpr("(u.row_letter || '-' || u.seat_number) AS unit_display_name").
		ColumnExpr("t.message AS message").
		ColumnExpr("t.created_at AS initiated_at").
		ColumnExpr("t.expires_at AS expires_at").
		TableExpr("transfer_log AS t").
		Join("JOIN reservation_units AS ru ON ru.id = t.reservation_unit_id").
		Join("JOIN units AS u ON u.id = ru.unit_id").
		Join("JOIN areas AS a ON a.id = u.area_id").
		Join("JOIN clusters AS c ON c.id = a.cluster_id").
		Join("LEFT JOIN profiles AS p ON p.id = t.from_user_id").
		Where("LOWER(t.to_email) = ?", strings.ToLower(email)).
		Where("t.status = ?", models.TransferPending).
		Where("t.expires_at > ?", time.Now()).
		OrderExpr("t.created_at DESC").
		Scan(context.Background(), &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// HistoryByUser lists completed handoffs the user was on either side of.
func (d *DB) HistoryByUser(userID string) ([]models.TransferLog, error) {
	var rows []models.TransferLog
	err := d.Bun.NewSelect().
		Model(&rows).
		Where("status = ?", models.TransferAccepted).
		Where("(from_user_id = ? OR to_user_id = ?)", userID, userID).
		OrderExpr("updated_at DESC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ExpiredPending lists transfers the sweeper should expire.
func (d *DB) ExpiredPending(now time.Time, limit int) ([]models.TransferLog, error) {
	var rows []models.TransferLog
	err := d.Bun.NewSelect().
		Model(&rows).
		Where("status = ?", models.TransferPending).
		Where("expires_at <= ?", now).
		OrderExpr("expires_at ASC").
		Limit(limit).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return rows, nil
}
