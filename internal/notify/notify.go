package notify

import (
	"fmt"
	"time"

	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
)

// Publisher is the slice of the Kafka producer the notifier uses; tests
// substitute a recorder.
type Publisher interface {
	Publish(key string, payload any) error
}

// Event is the envelope every lifecycle notification travels in.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Notifier publishes reservation and transfer lifecycle events.
// Publishing is fire-and-forget: a broker outage is logged and the
// request path never waits on it.
type Notifier struct {
	Reservations Publisher
	Transfers    Publisher
	Logger       *logger.Logger
}

func New(reservations, transfers Publisher, log *logger.Logger) *Notifier {
	return &Notifier{Reservations: reservations, Transfers: transfers, Logger: log}
}

func (n *Notifier) publish(p Publisher, key, eventType string, data any) {
	if p == nil {
		return
	}
	go func() {
		if err := p.Publish(key, Event{Type: eventType, At: time.Now(), Data: data}); err != nil {
			n.Logger.LogKafka("PUBLISH", eventType, "failed: "+err.Error())
		}
	}()
}

func (n *Notifier) ReservationCreated(r *models.Reservation, total float64) {
	n.publish(n.Reservations, r.ID, "reservation.created", map[string]any{
		"reservation_id": r.ID,
		"buyer_id":       r.BuyerID,
		"total":          total,
		"expires_at":     r.ExpiresAt,
	})
}

func (n *Notifier) ReservationConfirmed(r *models.Reservation, ticketCount int) {
	n.publish(n.Reservations, r.ID, "reservation.confirmed", map[string]any{
		"reservation_id": r.ID,
		"buyer_id":       r.BuyerID,
		"tickets":        ticketCount,
	})
}

func (n *Notifier) ReservationCancelled(r *models.Reservation, reason string) {
	n.publish(n.Reservations, r.ID, "reservation.cancelled", map[string]any{
		"reservation_id": r.ID,
		"buyer_id":       r.BuyerID,
		"reason":         reason,
	})
}

func (n *Notifier) TransferInvited(t *models.TransferLog) {
	n.publish(n.Transfers, transferKey(t), "transfer.invited", map[string]any{
		"transfer_id": t.ID,
		"to_email":    t.ToEmail,
		"token":       t.Token,
		"message":     t.Message,
		"expires_at":  t.ExpiresAt,
	})
}

func (n *Notifier) TransferAccepted(t *models.TransferLog) {
	n.publish(n.Transfers, transferKey(t), "transfer.accepted", map[string]any{
		"transfer_id": t.ID,
		"from_user":   t.FromUserID,
		"to_user":     t.ToUserID,
	})
}

func (n *Notifier) TransferCancelled(t *models.TransferLog) {
	n.publish(n.Transfers, transferKey(t), "transfer.cancelled", map[string]any{
		"transfer_id": t.ID,
		"to_email":    t.ToEmail,
	})
}

func (n *Notifier) TransferExpired(t *models.TransferLog) {
	n.publish(n.Transfers, transferKey(t), "transfer.expired", map[string]any{
		"transfer_id": t.ID,
		"to_email":    t.ToEmail,
	})
}

func transferKey(t *models.TransferLog) string {
	return fmt.Sprintf("transfer-%d", t.ID)
}
