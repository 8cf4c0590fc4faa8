package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Unit statuses. A unit can only enter a reservation while it is
// exactly "available"; the transition is done with a conditional
// bulk update, never a read-then-write.
const (
	UnitAvailable   = "available"
	UnitReserved    = "reserved"
	UnitSold        = "sold"
	UnitTransferred = "transferred"
	UnitDisabled    = "disabled"
	UnitBlocked     = "blocked"
)

type Unit struct {
	bun.BaseModel `bun:"table:units"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	AreaID     int64     `bun:"area_id,notnull" json:"area_id"`
	Status     string    `bun:"status,notnull" json:"status"`
	RowLetter  string    `bun:"row_letter,nullzero" json:"row_letter,omitempty"`
	SeatNumber int       `bun:"seat_number,nullzero" json:"seat_number,omitempty"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// DisplayName builds the seat label shown on tickets, e.g. "B-12".
func (u *Unit) DisplayName() string {
	if u.RowLetter != "" {
		return fmt.Sprintf("%s-%d", u.RowLetter, u.SeatNumber)
	}
	if u.SeatNumber > 0 {
		return fmt.Sprintf("%d", u.SeatNumber)
	}
	return fmt.Sprintf("%d", u.ID)
}

// UnitSummary is the map-view projection used by seat selection.
type UnitSummary struct {
	ID          int64  `json:"id"`
	AreaID      int64  `json:"area_id"`
	Status      string `json:"status"`
	DisplayName string `json:"display_name"`
}
