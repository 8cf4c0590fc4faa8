package units

import (
	"fmt"
	"time"

	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/units/db"
)

// DBLayer is what the ledger needs from storage. Every transition is a
// conditional write reporting affected rows.
type DBLayer interface {
	ReserveAvailable(unitIDs []int64) ([]int64, error)
	ReleaseReserved(unitIDs []int64) (int64, error)
	MarkSold(unitIDs []int64) (int64, error)
	TransitionUnit(unitID int64, from, to string) (bool, error)
	SetOperatorStatus(unitID int64, status string) (bool, error)
	UnitContexts(unitIDs []int64) ([]db.UnitContext, error)
	GetUnitByID(unitID int64) (*models.Unit, error)
	UnitsByArea(areaID int64, status string) ([]models.Unit, error)
	AvailableUnits(areaID int64, n int) ([]models.Unit, error)
	AreaCapacity(areaID int64) (capacity int, existing int, err error)
	InsertUnits(units []models.Unit) error
}

// Ledger owns the unit state machine. The conditional bulk update in
// ClaimUnits is the single device that prevents overselling.
type Ledger struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewLedger(dbLayer DBLayer, log *logger.Logger) *Ledger {
	return &Ledger{DB: dbLayer, Logger: log}
}

// Contexts resolves area, cluster and base price for a set of units.
func (l *Ledger) Contexts(unitIDs []int64) ([]db.UnitContext, error) {
	return l.DB.UnitContexts(unitIDs)
}

// ClaimUnits transitions exactly the available subset of unitIDs to
// reserved. If any unit was not available the claim is rolled back in
// full and a Conflict error names the ids that could not be taken.
func (l *Ledger) ClaimUnits(unitIDs []int64) error {
	if len(unitIDs) == 0 {
		return errs.InvalidInput("no units requested")
	}

	claimed, err := l.DB.ReserveAvailable(unitIDs)
	if err != nil {
		return fmt.Errorf("claim units: %w", err)
	}

	if len(claimed) == len(unitIDs) {
		l.Logger.LogDatabase("CLAIM", "units", fmt.Sprintf("claimed %d units", len(claimed)))
		return nil
	}

	// Partial claim: roll back only the rows this claim flipped. A
	// requested unit that was already reserved is someone else's hold
	// and must stay reserved.
	if len(claimed) > 0 {
		if _, relErr := l.DB.ReleaseReserved(claimed); relErr != nil {
			l.Logger.Error("LEDGER", fmt.Sprintf("rollback after partial claim failed: %v", relErr))
		}
	}

	taken := make(map[int64]bool, len(claimed))
	for _, id := range claimed {
		taken[id] = true
	}
	unavailable := make([]int64, 0, len(unitIDs)-len(claimed))
	for _, id := range unitIDs {
		if !taken[id] {
			unavailable = append(unavailable, id)
		}
	}

	return errs.Conflict(
		fmt.Sprintf("%d of %d units are not available", len(unavailable), len(unitIDs)),
		map[string]any{"unavailable_unit_ids": unavailable},
	)
}

// ReleaseUnits returns reserved units to the pool. Idempotent against
// units already available.
func (l *Ledger) ReleaseUnits(unitIDs []int64) error {
	if len(unitIDs) == 0 {
		return nil
	}
	released, err := l.DB.ReleaseReserved(unitIDs)
	if err != nil {
		return fmt.Errorf("release units: %w", err)
	}
	l.Logger.LogDatabase("RELEASE", "units", fmt.Sprintf("released %d of %d units", released, len(unitIDs)))
	return nil
}

// FinalizeSale flips reserved units to sold on payment confirmation.
func (l *Ledger) FinalizeSale(unitIDs []int64) error {
	sold, err := l.DB.MarkSold(unitIDs)
	if err != nil {
		return fmt.Errorf("finalize sale: %w", err)
	}
	if sold != int64(len(unitIDs)) {
		// A redelivered confirmation finds the units already sold.
		l.Logger.Warn("LEDGER", fmt.Sprintf("finalize sale matched %d of %d units", sold, len(unitIDs)))
	}
	return nil
}

// MarkTransferred parks a sold unit while a handoff is open.
func (l *Ledger) MarkTransferred(unitID int64) (bool, error) {
	return l.DB.TransitionUnit(unitID, models.UnitSold, models.UnitTransferred)
}

// CompleteTransfer returns a unit to sold under its new owner.
func (l *Ledger) CompleteTransfer(unitID int64) (bool, error) {
	return l.DB.TransitionUnit(unitID, models.UnitTransferred, models.UnitSold)
}

// RestoreAfterTransferExpiry is the same transition as CompleteTransfer
// but driven by the sweeper when the handoff window lapses.
func (l *Ledger) RestoreAfterTransferExpiry(unitID int64) (bool, error) {
	return l.DB.TransitionUnit(unitID, models.UnitTransferred, models.UnitSold)
}

// BlockUnit moves a unit out of sale by operator action. Sold units are
// refused.
func (l *Ledger) BlockUnit(unitID int64, status string) error {
	if status != models.UnitDisabled && status != models.UnitBlocked {
		return errs.InvalidInput("status must be disabled or blocked")
	}
	ok, err := l.DB.SetOperatorStatus(unitID, status)
	if err != nil {
		return fmt.Errorf("block unit: %w", err)
	}
	if !ok {
		return errs.Conflict("unit is sold or does not exist", map[string]any{"unit_id": unitID})
	}
	return nil
}

// CreateUnitsBulk creates quantity units for an area, capped by the
// area's capacity.
func (l *Ledger) CreateUnitsBulk(areaID int64, quantity int, rowLetter string, startNumber int) ([]models.Unit, error) {
	if quantity <= 0 {
		return nil, errs.InvalidInput("quantity must be positive")
	}

	capacity, existing, err := l.DB.AreaCapacity(areaID)
	if err != nil {
		return nil, errs.NotFound("area not found")
	}
	if existing+quantity > capacity {
		return nil, errs.InvalidInput(
			fmt.Sprintf("cannot create %d units: capacity %d, existing %d", quantity, capacity, existing))
	}

	now := time.Now()
	created := make([]models.Unit, quantity)
	for i := 0; i < quantity; i++ {
		created[i] = models.Unit{
			AreaID:     areaID,
			Status:     models.UnitAvailable,
			RowLetter:  rowLetter,
			SeatNumber: startNumber + i,
			CreatedAt:  now,
		}
	}
	if err := l.DB.InsertUnits(created); err != nil {
		return nil, fmt.Errorf("insert units: %w", err)
	}

	l.Logger.LogDatabase("INSERT", "units", fmt.Sprintf("created %d units for area %d", quantity, areaID))
	return created, nil
}

// UnitsMap returns the seat-map projection for an area.
func (l *Ledger) UnitsMap(areaID int64) ([]models.UnitSummary, error) {
	unitRows, err := l.DB.UnitsByArea(areaID, "")
	if err != nil {
		return nil, fmt.Errorf("units by area: %w", err)
	}
	summaries := make([]models.UnitSummary, len(unitRows))
	for i := range unitRows {
		summaries[i] = models.UnitSummary{
			ID:          unitRows[i].ID,
			AreaID:      unitRows[i].AreaID,
			Status:      unitRows[i].Status,
			DisplayName: unitRows[i].DisplayName(),
		}
	}
	return summaries, nil
}
