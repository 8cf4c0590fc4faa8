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

// ---------------- STATE TRANSITIONS ----------------
//
// Every transition is a single conditional update matching the old
// status; the affected-row count is the truth about what happened.

// ReserveAvailable flips available->reserved for the given ids and
// returns exactly the ids that transitioned. The RETURNING set is what
// a partial claim is allowed to roll back; a row that was already
// reserved belongs to someone else.
func (d *DB) ReserveAvailable(unitIDs []int64) ([]int64, error) {
	var claimed []int64
	_, err := d.Bun.NewUpdate().
		Model((*models.Unit)(nil)).
		Set("status = ?", models.UnitReserved).
		Set("updated_at = ?", time.Now()).
		Where("id IN (?)", bun.In(unitIDs)).
		Where("status = ?", models.UnitAvailable).
		Returning("id").
		Exec(context.Background(), &claimed)
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ReleaseReserved flips reserved->available. Units already available
// are simply not matched, which makes release idempotent.
func (d *DB) ReleaseReserved(unitIDs []int64) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Unit)(nil)).
		Set("status = ?", models.UnitAvailable).
		Set("updated_at = ?", time.Now()).
		Where("id IN (?)", bun.In(unitIDs)).
		Where("status = ?", models.UnitReserved).
		Exec(context.Background())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkSold flips reserved->sold on payment confirmation.
func (d *DB) MarkSold(unitIDs []int64) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Unit)(nil)).
		Set("status = ?", models.UnitSold).
		Set("updated_at = ?", time.Now()).
		Where("id IN (?)", bun.In(unitIDs)).
		Where("status = ?", models.UnitReserved).
		Exec(context.Background())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TransitionUnit flips a single unit from one exact status to another.
func (d *DB) TransitionUnit(unitID int64, from, to string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Unit)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", unitID).
		Where("status = ?", from).
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// SetOperatorStatus moves a unit into disabled/blocked. Sold units are
// never touched by operator action.
func (d *DB) SetOperatorStatus(unitID int64, status string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Unit)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", unitID).
		Where("status != ?", models.UnitSold).
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ---------------- QUERIES ----------------

// UnitContext is a unit joined to its area and cluster, decoded once
// at the query boundary.
type UnitContext struct {
	UnitID    int64   `bun:"unit_id"`
	AreaID    int64   `bun:"area_id"`
	ClusterID int64   `bun:"cluster_id"`
	Status    string  `bun:"status"`
	BasePrice float64 `bun:"base_price"`
}

// UnitContexts fetches area/cluster context for a set of units.
func (d *DB) UnitContexts(unitIDs []int64) ([]UnitContext, error) {
	var rows []UnitContext
	err := d.Bun.NewSelect().
		ColumnExpr("u.id AS unit_id").
		ColumnExpr("u.area_id AS area_id").
		ColumnExpr("a.cluster_id AS cluster_id").
		ColumnExpr("u.status AS status").
		ColumnExpr("a.price AS base_price").
		TableExpr("units AS u").
		Join("JOIN areas AS a ON a.id = u.area_id").
		Where("u.id IN (?)", bun.In(unitIDs)).
		Scan(context.Background(), &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (d *DB) GetUnitByID(unitID int64) (*models.Unit, error) {
	var unit models.Unit
	err := d.Bun.NewSelect().
		Model(&unit).
		Where("id = ?", unitID).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

// UnitsByArea lists units for the seat map, ordered by seat number.
func (d *DB) UnitsByArea(areaID int64, status string) ([]models.Unit, error) {
	var units []models.Unit
	q := d.Bun.NewSelect().
		Model(&units).
		Where("area_id = ?", areaID).
		Order("seat_number ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Scan(context.Background()); err != nil {
		return nil, err
	}
	return units, nil
}

// AvailableUnits picks the first n available units of an area.
func (d *DB) AvailableUnits(areaID int64, n int) ([]models.Unit, error) {
	var units []models.Unit
	err := d.Bun.NewSelect().
		Model(&units).
		Where("area_id = ?", areaID).
		Where("status = ?", models.UnitAvailable).
		Order("seat_number ASC").
		Limit(n).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return units, nil
}

// ---------------- BULK CREATION ----------------

// AreaCapacity returns an area's capacity and its current unit count.
func (d *DB) AreaCapacity(areaID int64) (capacity int, existing int, err error) {
	var area models.Area
	err = d.Bun.NewSelect().
		Model(&area).
		Where("id = ?", areaID).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, err
	}
	if err != nil {
		return 0, 0, err
	}
	count, err := d.Bun.NewSelect().
		Model((*models.Unit)(nil)).
		Where("area_id = ?", areaID).
		Count(context.Background())
	if err != nil {
		return 0, 0, err
	}
	return area.Capacity, count, nil
}

func (d *DB) InsertUnits(units []models.Unit) error {
	_, err := d.Bun.NewInsert().Model(&units).Exec(context.Background())
	return err
}
