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

func (d *DB) InsertReservation(r *models.Reservation) error {
	_, err := d.Bun.NewInsert().Model(r).Exec(context.Background())
	return err
}

func (d *DB) InsertReservationUnits(rus []models.ReservationUnit) error {
	if len(rus) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&rus).Exec(context.Background())
	return err
}

func (d *DB) GetReservation(id string) (*models.Reservation, error) {
	var r models.Reservation
	err := d.Bun.NewSelect().
		Model(&r).
		Where("id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// TransitionReservation moves a reservation from one of fromStatuses to
// toStatus. Concurrent confirm and sweep race on this row; only one
// transition wins.
func (d *DB) TransitionReservation(id, toStatus string, fromStatuses ...string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Reservation)(nil)).
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

func (d *DB) UnitsForReservation(id string) ([]models.ReservationUnit, error) {
	var rus []models.ReservationUnit
	err := d.Bun.NewSelect().
		Model(&rus).
		Where("reservation_id = ?", id).
		OrderExpr("id ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return rus, nil
}

// TransitionReservationUnits flips all units of a reservation from one
// status to another and reports how many rows moved.
func (d *DB) TransitionReservationUnits(reservationID, from, to string) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.ReservationUnit)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("reservation_id = ?", reservationID).
		Where("status = ?", from).
		Exec(context.Background())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// EventSlugForReservation resolves the cluster slug the reservation's
// units belong to. All units share one cluster, enforced at creation.
func (d *DB) EventSlugForReservation(id string) (string, error) {
	var slug string
	err := d.Bun.NewSelect().
		ColumnExpr("c.slug").
		TableExpr("reservation_units AS ru").
		Join("JOIN units AS u ON u.id = ru.unit_id").
		Join("JOIN areas AS a ON a.id = u.area_id").
		Join("JOIN clusters AS c ON c.id = a.cluster_id").
		Where("ru.reservation_id = ?", id).
		Limit(1).
		Scan(context.Background(), &slug)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return slug, err
}

func (d *DB) ReservationsByBuyer(buyerID string) ([]models.ReservationSummary, error) {
	var rows []models.ReservationSummary
	err := d.Bun.NewSelect().
		ColumnExpr("r.id AS id").
		ColumnExpr("r.status AS status").
		ColumnExpr("MIN(c.cluster_name) AS event_name").
		ColumnExpr("COUNT(ru.id) AS total_units").
		ColumnExpr("SUM(ru.price_paid) AS total").
		ColumnExpr("MIN(a.currency) AS currency").
		ColumnExpr("r.expires_at AS expires_at").
		ColumnExpr("r.created_at AS created_at").
		TableExpr("reservations AS r").
		Join("JOIN reservation_units AS ru ON ru.reservation_id = r.id").
		Join("JOIN units AS u ON u.id = ru.unit_id").
		Join("JOIN areas AS a ON a.id = u.area_id").
		Join("JOIN clusters AS c ON c.id = a.cluster_id").
		Where("r.buyer_id = ?", buyerID).
		GroupExpr("r.id, r.status, r.expires_at, r.created_at").
		OrderExpr("r.created_at DESC").
		Scan(context.Background(), &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (d *DB) TicketsByHolder(holderID string) ([]models.MyTicket, error) {
	var rows []models.MyTicket
	err := d.Bun.NewSelect().
		ColumnExpr("ru.id AS reservation_unit_id").
		ColumnExpr("ru.reservation_id AS reservation_id").
		ColumnExpr("ru.unit_id AS unit_id").
		ColumnExpr("ru.status AS status").
		ColumnExpr("(u.row_letter || '-' || u.seat_number) AS unit_display_name").
		ColumnExpr("a.area_name AS area_name").
		ColumnExpr("c.cluster_name AS event_name").
		ColumnExpr("c.slug AS event_slug").
		ColumnExpr("c.start_date AS event_date").
		ColumnExpr("(ru.status = ?) AS can_transfer", models.RUnitConfirmed).
		TableExpr("reservation_units AS ru").
		Join("JOIN units AS u ON u.id = ru.unit_id").
		Join("JOIN areas AS a ON a.id = u.area_id").
		Join("JOIN clusters AS c ON c.id = a.cluster_id").
		Where("ru.holder_id = ?", holderID).
		Where("ru.status IN (?)", bun.In([]string{models.RUnitConfirmed, models.RUnitUsed, models.RUnitTransferred})).
		OrderExpr("c.start_date ASC, ru.id ASC").
		Scan(context.Background(), &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ExpiredPending lists reservations the sweeper should expire.
func (d *DB) ExpiredPending(now time.Time, limit int) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := d.Bun.NewSelect().
		Model(&rows).
		Where("status = ?", models.ReservationPending).
		Where("expires_at <= ?", now).
		OrderExpr("expires_at ASC").
		Limit(limit).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ---------------- PROFILES ----------------

func (d *DB) ProfileByEmail(email string) (*models.Profile, error) {
	var p models.Profile
	err := d.Bun.NewSelect().
		Model(&p).
		Where("LOWER(email) = ?", strings.ToLower(email)).
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

func (d *DB) ProfileByID(id string) (*models.Profile, error) {
	var p models.Profile
	err := d.Bun.NewSelect().
		Model(&p).
		Where("id = ?", id).
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

func (d *DB) InsertProfile(p *models.Profile) error {
	_, err := d.Bun.NewInsert().Model(p).Exec(context.Background())
	return err
}
