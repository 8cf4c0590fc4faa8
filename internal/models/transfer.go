package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Transfer statuses.
const (
	TransferPending   = "pending"
	TransferAccepted  = "accepted"
	TransferCancelled = "cancelled"
	TransferExpired   = "expired"
)

// TransferLog is one signed, time-boxed offer to move a sold unit's
// ownership. Status, token and expiry are proper columns so transfers
// can be queried directly.
type TransferLog struct {
	bun.BaseModel `bun:"table:transfer_log"`

	ID                int64     `bun:"id,pk,autoincrement" json:"id"`
	ReservationUnitID int64     `bun:"reservation_unit_id,notnull" json:"reservation_unit_id"`
	FromUserID        string    `bun:"from_user_id,notnull" json:"from_user_id"`
	ToUserID          string    `bun:"to_user_id,nullzero" json:"to_user_id,omitempty"`
	ToEmail           string    `bun:"to_email,notnull" json:"to_email"`
	Token             string    `bun:"token,notnull,unique" json:"-"`
	Status            string    `bun:"status,notnull" json:"status"`
	Message           string    `bun:"message,nullzero" json:"message,omitempty"`
	ExpiresAt         time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// TransferSummary is the sender-side listing projection.
type TransferSummary struct {
	ID                int64     `json:"id"`
	ReservationUnitID int64     `json:"reservation_unit_id"`
	ToEmail           string    `json:"to_email"`
	Status            string    `json:"status"`
	EventName         string    `json:"event_name"`
	UnitDisplayName   string    `json:"unit_display_name"`
	InitiatedAt       time.Time `json:"initiated_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// PendingTransfer is the recipient-side listing projection; the token is
// included so the accept link can be rebuilt.
type PendingTransfer struct {
	ID              int64     `json:"id"`
	Token           string    `json:"token"`
	FromUserName    string    `json:"from_user_name"`
	FromUserEmail   string    `json:"from_user_email"`
	EventName       string    `json:"event_name"`
	EventDate       time.Time `json:"event_date"`
	AreaName        string    `json:"area_name"`
	UnitDisplayName string    `json:"unit_display_name"`
	Message         string    `json:"message,omitempty"`
	InitiatedAt     time.Time `json:"initiated_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}
