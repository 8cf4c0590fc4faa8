package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Reservation statuses. "active" is the paid state; "completed" is set
// out of band once the event itself is over.
const (
	ReservationPending   = "pending"
	ReservationActive    = "active"
	ReservationCompleted = "completed"
	ReservationCancelled = "cancelled"
	ReservationExpired   = "expired"
)

// Reservation-unit statuses. "confirmed" is the only state a ticket can
// be scanned from; "transferred" parks the unit while a handoff is open.
const (
	RUnitReserved    = "reserved"
	RUnitConfirmed   = "confirmed"
	RUnitCancelled   = "cancelled"
	RUnitUsed        = "used"
	RUnitTransferred = "transferred"
)

type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	ID        string    `bun:"id,pk" json:"id"`
	BuyerID   string    `bun:"buyer_id,notnull" json:"buyer_id"`
	Status    string    `bun:"status,notnull" json:"status"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// ReservationUnit snapshots the price and the stage/promotion that
// produced it at claim time. The snapshot is authoritative for the
// lifetime of the reservation even if stages change afterwards.
type ReservationUnit struct {
	bun.BaseModel `bun:"table:reservation_units"`

	ID             int64     `bun:"id,pk,autoincrement" json:"id"`
	ReservationID  string    `bun:"reservation_id,notnull" json:"reservation_id"`
	UnitID         int64     `bun:"unit_id,notnull" json:"unit_id"`
	Status         string    `bun:"status,notnull" json:"status"`
	HolderID       string    `bun:"holder_id,notnull" json:"holder_id"`
	AppliedStageID string    `bun:"applied_stage_id,nullzero" json:"applied_stage_id,omitempty"`
	AppliedPromoID string    `bun:"applied_promo_id,nullzero" json:"applied_promo_id,omitempty"`
	PricePaid      float64   `bun:"price_paid,notnull" json:"price_paid"`
	TransferDate   time.Time `bun:"transfer_date,nullzero" json:"transfer_date,omitempty"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// RUnitStatusHistory records gate check-ins and operator resets.
type RUnitStatusHistory struct {
	bun.BaseModel `bun:"table:reservation_unit_status_history"`

	ID                int64     `bun:"id,pk,autoincrement" json:"id"`
	ReservationUnitID int64     `bun:"reservation_unit_id,notnull" json:"reservation_unit_id"`
	ReservationID     string    `bun:"reservation_id,notnull" json:"reservation_id"`
	OldStatus         string    `bun:"old_status,nullzero" json:"old_status,omitempty"`
	NewStatus         string    `bun:"new_status,notnull" json:"new_status"`
	ChangedBy         string    `bun:"changed_by,nullzero" json:"changed_by,omitempty"`
	Reason            string    `bun:"reason,nullzero" json:"reason,omitempty"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// ReservationSummary is the listing projection for a buyer's reservations.
type ReservationSummary struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	EventName  string    `json:"event_name"`
	TotalUnits int       `json:"total_units"`
	Total      float64   `json:"total"`
	Currency   string    `json:"currency"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// MyTicket is one confirmed (or used) unit owned by a buyer.
type MyTicket struct {
	ReservationUnitID int64     `json:"reservation_unit_id"`
	ReservationID     string    `json:"reservation_id"`
	UnitID            int64     `json:"unit_id"`
	Status            string    `json:"status"`
	UnitDisplayName   string    `json:"unit_display_name"`
	AreaName          string    `json:"area_name"`
	EventName         string    `json:"event_name"`
	EventSlug         string    `json:"event_slug"`
	EventDate         time.Time `json:"event_date"`
	CanTransfer       bool      `json:"can_transfer"`
}
