package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Payment statuses, as reported by the gateway callback.
const (
	PaymentPending  = "pending"
	PaymentApproved = "approved"
	PaymentDeclined = "declined"
	PaymentError    = "error"
)

// Payment is the gateway collaborator's record of a monetary attempt
// against a reservation. Reference is the idempotent external id the
// webhook redelivers.
type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID            string    `bun:"id,pk" json:"id"`
	ReservationID string    `bun:"reservation_id,notnull" json:"reservation_id"`
	Reference     string    `bun:"reference,notnull,unique" json:"reference"`
	Amount        float64   `bun:"amount,notnull" json:"amount"`
	Currency      string    `bun:"currency,notnull" json:"currency"`
	Status        string    `bun:"status,notnull" json:"status"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}
