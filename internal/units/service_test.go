package units_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/units"
	"ms-reservations/internal/units/db"
)

func setupLedger(t *testing.T) (*units.Ledger, *db.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []any{
		(*models.Cluster)(nil),
		(*models.Area)(nil),
		(*models.Unit)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}

	cluster := models.Cluster{ID: 10, ClusterName: "Festival Verano", Slug: "festival-verano-2026"}
	if _, err := bunDB.NewInsert().Model(&cluster).Exec(ctx); err != nil {
		t.Fatalf("Failed to insert cluster: %v", err)
	}
	area := models.Area{ID: 1, ClusterID: 10, AreaName: "VIP", Price: 100000, Currency: "COP", Capacity: 50, ServicePct: 10}
	if _, err := bunDB.NewInsert().Model(&area).Exec(ctx); err != nil {
		t.Fatalf("Failed to insert area: %v", err)
	}

	unitDB := &db.DB{Bun: bunDB}
	return units.NewLedger(unitDB, logger.NewLogger()), unitDB, bunDB
}

func seedUnits(t *testing.T, bunDB *bun.DB, n int) []int64 {
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		unit := models.Unit{
			AreaID:     1,
			Status:     models.UnitAvailable,
			RowLetter:  "A",
			SeatNumber: i + 1,
			CreatedAt:  time.Now(),
		}
		if _, err := bunDB.NewInsert().Model(&unit).Exec(context.Background()); err != nil {
			t.Fatalf("Failed to insert unit: %v", err)
		}
		ids = append(ids, unit.ID)
	}
	return ids
}

func statusOf(t *testing.T, bunDB *bun.DB, id int64) string {
	var unit models.Unit
	err := bunDB.NewSelect().Model(&unit).Where("id = ?", id).Scan(context.Background())
	assert.NoError(t, err)
	return unit.Status
}

func TestClaimUnitsAllOrNone(t *testing.T) {
	ledger, _, bunDB := setupLedger(t)
	defer bunDB.Close()
	ids := seedUnits(t, bunDB, 3)

	err := ledger.ClaimUnits(ids)
	assert.NoError(t, err)
	for _, id := range ids {
		assert.Equal(t, models.UnitReserved, statusOf(t, bunDB, id))
	}
}

func TestClaimUnitsRollbackKeepsForeignHold(t *testing.T) {
	ledger, unitDB, bunDB := setupLedger(t)
	defer bunDB.Close()
	ids := seedUnits(t, bunDB, 2)

	// Another reservation already holds the first unit.
	held, err := unitDB.ReserveAvailable(ids[:1])
	assert.NoError(t, err)
	assert.Len(t, held, 1)

	err = ledger.ClaimUnits(ids)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))

	var bizErr *errs.Error
	assert.True(t, errors.As(err, &bizErr))
	assert.Equal(t, []int64{ids[0]}, bizErr.Detail["unavailable_unit_ids"])

	// The competitor's hold survives the rollback; only the unit this
	// claim took goes back to the pool.
	assert.Equal(t, models.UnitReserved, statusOf(t, bunDB, ids[0]))
	assert.Equal(t, models.UnitAvailable, statusOf(t, bunDB, ids[1]))
}

func TestClaimUnitsNothingAvailable(t *testing.T) {
	ledger, unitDB, bunDB := setupLedger(t)
	defer bunDB.Close()
	ids := seedUnits(t, bunDB, 2)

	_, err := unitDB.ReserveAvailable(ids)
	assert.NoError(t, err)

	err = ledger.ClaimUnits(ids)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
	for _, id := range ids {
		assert.Equal(t, models.UnitReserved, statusOf(t, bunDB, id))
	}
}
