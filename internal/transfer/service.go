package transfer

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/transfer/db"
)

type DBLayer interface {
	UnitForTransfer(ruID int64) (*db.TransferUnit, error)
	InsertTransfer(t *models.TransferLog) error
	TransferByID(id int64) (*models.TransferLog, error)
	TransferByToken(token string) (*models.TransferLog, error)
	PendingForUnit(ruID int64) (*models.TransferLog, error)
	TransitionTransfer(id int64, toStatus string, fromStatuses ...string) (bool, error)
	AcceptTransfer(id int64, toUserID string) (bool, error)
	AssignHolder(ruID int64, holderID string) (bool, error)
	RestoreHolder(ruID int64) (bool, error)
	ParkUnit(ruID int64) (bool, error)
	OutgoingByUser(fromUserID string) ([]models.TransferSummary, error)
	IncomingByEmail(email string) ([]models.PendingTransfer, error)
	HistoryByUser(userID string) ([]models.TransferLog, error)
	ExpiredPending(now time.Time, limit int) ([]models.TransferLog, error)
}

var _ DBLayer = (*db.DB)(nil)

// UnitLedger mirrors the unit-side transitions of a handoff.
type UnitLedger interface {
	MarkTransferred(unitID int64) (bool, error)
	CompleteTransfer(unitID int64) (bool, error)
	RestoreAfterTransferExpiry(unitID int64) (bool, error)
}

// TokenIssuer mints a fresh gate credential for the new holder; the old
// holder's credential stops resolving to their id.
type TokenIssuer interface {
	IssueToken(ruID, unitID int64, holderID, eventSlug string) string
}

// Throttle rate-limits invitation resends. The Redis-backed
// implementation lives in transfer/redis; tests inject their own.
type Throttle interface {
	Allow(key string, cooldown time.Duration) (bool, time.Duration, error)
	Reset(key string) error
}

// Notifier delivers invitation mail/events; never blocks the workflow.
type Notifier interface {
	TransferInvited(t *models.TransferLog)
	TransferAccepted(t *models.TransferLog)
	TransferCancelled(t *models.TransferLog)
	TransferExpired(t *models.TransferLog)
}

type Service struct {
	DB             DBLayer
	Units          UnitLedger
	Tickets        TokenIssuer
	Throttle       Throttle
	Notify         Notifier
	Logger         *logger.Logger
	TTL            time.Duration
	ResendCooldown time.Duration
}

func NewService(dbLayer DBLayer, ledger UnitLedger, issuer TokenIssuer, throttle Throttle, notify Notifier, log *logger.Logger, ttl, cooldown time.Duration) *Service {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	if cooldown <= 0 {
		cooldown = 10 * time.Minute
	}
	return &Service{
		DB: dbLayer, Units: ledger, Tickets: issuer,
		Throttle: throttle, Notify: notify, Logger: log,
		TTL: ttl, ResendCooldown: cooldown,
	}
}

// AcceptResult is the recipient's side of a completed handoff.
type AcceptResult struct {
	Transfer          *models.TransferLog `json:"transfer"`
	ReservationUnitID int64               `json:"reservation_unit_id"`
	UnitID            int64               `json:"unit_id"`
	TicketToken       string              `json:"ticket_token"`
}

// Initiate opens a signed, time-boxed offer to hand a confirmed unit to
// someone identified by email. The unit is parked until the offer is
// resolved, so it can't be scanned or double-offered meanwhile.
func (s *Service) Initiate(ruID int64, senderID, toEmail, message string) (*models.TransferLog, error) {
	toEmail = strings.TrimSpace(strings.ToLower(toEmail))
	if toEmail == "" {
		return nil, errs.InvalidInput("recipient email is required")
	}

	unit, err := s.DB.UnitForTransfer(ruID)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, errs.NotFound(fmt.Sprintf("ticket %d not found", ruID))
	}
	if unit.HolderID != senderID {
		return nil, errs.Unauthorized("ticket belongs to another holder")
	}
	if unit.Status != models.RUnitConfirmed {
		return nil, errs.Conflict("only a confirmed ticket can be transferred", map[string]any{"status": unit.Status})
	}
	if pending, err := s.DB.PendingForUnit(ruID); err != nil {
		return nil, err
	} else if pending != nil {
		return nil, errs.Conflict("a transfer is already pending for this ticket", map[string]any{"transfer_id": pending.ID})
	}

	parked, err := s.DB.ParkUnit(ruID)
	if err != nil {
		return nil, err
	}
	if !parked {
		return nil, errs.Conflict("ticket state changed, try again", nil)
	}
	if _, err := s.Units.MarkTransferred(unit.UnitID); err != nil {
		s.Logger.LogReservation("TRANSFER", unit.ReservationID, "unit park failed: "+err.Error())
	}

	now := time.Now()
	t := &models.TransferLog{
		ReservationUnitID: ruID,
		FromUserID:        senderID,
		ToEmail:           toEmail,
		Token:             newTransferToken(),
		Status:            models.TransferPending,
		Message:           message,
		ExpiresAt:         now.Add(s.TTL),
		CreatedAt:         now,
	}
	if err := s.DB.InsertTransfer(t); err != nil {
		if _, rbErr := s.DB.RestoreHolder(ruID); rbErr != nil {
			s.Logger.LogReservation("TRANSFER", unit.ReservationID, "restore after insert failure failed: "+rbErr.Error())
		}
		if _, rbErr := s.Units.RestoreAfterTransferExpiry(unit.UnitID); rbErr != nil {
			s.Logger.LogReservation("TRANSFER", unit.ReservationID, "unit restore failed: "+rbErr.Error())
		}
		return nil, err
	}

	if s.Notify != nil {
		s.Notify.TransferInvited(t)
	}
	s.Logger.LogReservation("TRANSFER", unit.ReservationID,
		fmt.Sprintf("initiated ru=%d to=%s expires=%s", ruID, toEmail, t.ExpiresAt.Format(time.RFC3339)))
	return t, nil
}

// Accept completes a handoff. The claimant must present the invitation
// token and hold the invited email. Accepting an already-accepted
// transfer with a stale token re-issues the credential instead of
// failing, so a twice-clicked email link still lands on a ticket.
func (s *Service) Accept(token, claimantID, claimantEmail string) (*AcceptResult, error) {
	t, err := s.DB.TransferByToken(token)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errs.NotFound("transfer not found")
	}

	switch t.Status {
	case models.TransferAccepted:
		if t.ToUserID == claimantID {
			return s.reissue(t)
		}
		return nil, errs.Conflict("transfer was already accepted", nil)
	case models.TransferCancelled:
		return nil, errs.Conflict("transfer was cancelled by the sender", nil)
	case models.TransferExpired:
		return nil, errs.Expired("transfer offer expired")
	}

	if !t.ExpiresAt.After(time.Now()) {
		if err := s.expire(t); err != nil {
			return nil, err
		}
		return nil, errs.Expired("transfer offer expired")
	}
	if !strings.EqualFold(claimantEmail, t.ToEmail) {
		return nil, errs.Unauthorized("transfer was addressed to a different email")
	}

	won, err := s.DB.AcceptTransfer(t.ID, claimantID)
	if err != nil {
		return nil, err
	}
	if !won {
		// Raced with the sweep or a concurrent accept; re-read and
		// settle from the fresh status.
		fresh, err := s.DB.TransferByID(t.ID)
		if err != nil {
			return nil, err
		}
		if fresh != nil && fresh.Status == models.TransferAccepted && fresh.ToUserID == claimantID {
			return s.reissue(fresh)
		}
		return nil, errs.Conflict("transfer is no longer open", nil)
	}

	assigned, err := s.DB.AssignHolder(t.ReservationUnitID, claimantID)
	if err != nil {
		return nil, err
	}
	if !assigned {
		s.Logger.LogReservation("TRANSFER", "-",
			fmt.Sprintf("accepted transfer %d but unit %d was not parked", t.ID, t.ReservationUnitID))
	}

	unit, err := s.DB.UnitForTransfer(t.ReservationUnitID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Units.CompleteTransfer(unit.UnitID); err != nil {
		s.Logger.LogReservation("TRANSFER", unit.ReservationID, "unit handoff failed: "+err.Error())
	}

	t.Status = models.TransferAccepted
	t.ToUserID = claimantID
	if s.Notify != nil {
		s.Notify.TransferAccepted(t)
	}
	s.Logger.LogReservation("TRANSFER", unit.ReservationID,
		fmt.Sprintf("accepted transfer=%d ru=%d new_holder=%s", t.ID, t.ReservationUnitID, claimantID))
	return &AcceptResult{
		Transfer:          t,
		ReservationUnitID: t.ReservationUnitID,
		UnitID:            unit.UnitID,
		TicketToken:       s.Tickets.IssueToken(t.ReservationUnitID, unit.UnitID, claimantID, unit.EventSlug),
	}, nil
}

// reissue hands the recipient a fresh credential for a handoff that
// already completed.
func (s *Service) reissue(t *models.TransferLog) (*AcceptResult, error) {
	unit, err := s.DB.UnitForTransfer(t.ReservationUnitID)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, errs.NotFound("transferred ticket no longer exists")
	}
	return &AcceptResult{
		Transfer:          t,
		ReservationUnitID: t.ReservationUnitID,
		UnitID:            unit.UnitID,
		TicketToken:       s.Tickets.IssueToken(t.ReservationUnitID, unit.UnitID, t.ToUserID, unit.EventSlug),
	}, nil
}

// Cancel withdraws a pending offer; only the sender may do it.
func (s *Service) Cancel(transferID int64, senderID string) error {
	t, err := s.DB.TransferByID(transferID)
	if err != nil {
		return err
	}
	if t == nil {
		return errs.NotFound("transfer not found")
	}
	if t.FromUserID != senderID {
		return errs.Unauthorized("transfer belongs to another sender")
	}

	won, err := s.DB.TransitionTransfer(transferID, models.TransferCancelled, models.TransferPending)
	if err != nil {
		return err
	}
	if !won {
		return errs.Conflict("only a pending transfer can be cancelled", map[string]any{"status": t.Status})
	}
	if err := s.restoreUnit(t); err != nil {
		return err
	}
	if s.Throttle != nil {
		if err := s.Throttle.Reset(throttleKey(transferID)); err != nil {
			s.Logger.LogReservation("TRANSFER", "-", fmt.Sprintf("cooldown reset failed for transfer %d: %v", transferID, err))
		}
	}

	t.Status = models.TransferCancelled
	if s.Notify != nil {
		s.Notify.TransferCancelled(t)
	}
	s.Logger.LogReservation("TRANSFER", "-", fmt.Sprintf("cancelled transfer=%d by=%s", transferID, senderID))
	return nil
}

// Resend re-sends the invitation, at most once per cooldown window.
func (s *Service) Resend(transferID int64, senderID string) error {
	t, err := s.DB.TransferByID(transferID)
	if err != nil {
		return err
	}
	if t == nil {
		return errs.NotFound("transfer not found")
	}
	if t.FromUserID != senderID {
		return errs.Unauthorized("transfer belongs to another sender")
	}
	if t.Status != models.TransferPending {
		return errs.Conflict("only a pending transfer can be resent", map[string]any{"status": t.Status})
	}
	if !t.ExpiresAt.After(time.Now()) {
		return errs.Expired("transfer offer expired")
	}

	allowed, retryAfter, err := s.Throttle.Allow(throttleKey(transferID), s.ResendCooldown)
	if err != nil {
		return errs.Gateway("resend throttle unavailable", err)
	}
	if !allowed {
		return errs.Conflict("invitation was resent recently",
			map[string]any{"retry_after_seconds": int(retryAfter.Seconds())})
	}

	if s.Notify != nil {
		s.Notify.TransferInvited(t)
	}
	s.Logger.LogReservation("TRANSFER", "-", fmt.Sprintf("resent transfer=%d to=%s", transferID, t.ToEmail))
	return nil
}

func (s *Service) Outgoing(userID string) ([]models.TransferSummary, error) {
	return s.DB.OutgoingByUser(userID)
}

func (s *Service) Incoming(email string) ([]models.PendingTransfer, error) {
	return s.DB.IncomingByEmail(email)
}

func (s *Service) History(userID string) ([]models.TransferLog, error) {
	return s.DB.HistoryByUser(userID)
}

// SweepExpired expires every overdue pending offer and hands the units
// back to their senders.
func (s *Service) SweepExpired(limit int) (int, error) {
	overdue, err := s.DB.ExpiredPending(time.Now(), limit)
	if err != nil {
		return 0, err
	}
	swept := 0
	for i := range overdue {
		t := overdue[i]
		if err := s.expire(&t); err != nil {
			s.Logger.LogReservation("TRANSFER", "-", fmt.Sprintf("sweep of transfer %d failed: %v", t.ID, err))
			continue
		}
		swept++
	}
	return swept, nil
}

func (s *Service) expire(t *models.TransferLog) error {
	won, err := s.DB.TransitionTransfer(t.ID, models.TransferExpired, models.TransferPending)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	if err := s.restoreUnit(t); err != nil {
		return err
	}
	t.Status = models.TransferExpired
	if s.Notify != nil {
		s.Notify.TransferExpired(t)
	}
	s.Logger.LogReservation("TRANSFER", "-", fmt.Sprintf("expired transfer=%d ru=%d", t.ID, t.ReservationUnitID))
	return nil
}

func (s *Service) restoreUnit(t *models.TransferLog) error {
	if _, err := s.DB.RestoreHolder(t.ReservationUnitID); err != nil {
		return err
	}
	unit, err := s.DB.UnitForTransfer(t.ReservationUnitID)
	if err != nil {
		return err
	}
	if unit != nil {
		if _, err := s.Units.RestoreAfterTransferExpiry(unit.UnitID); err != nil {
			s.Logger.LogReservation("TRANSFER", unit.ReservationID, "unit restore failed: "+err.Error())
		}
	}
	return nil
}

func throttleKey(transferID int64) string {
	return fmt.Sprintf("transfer:%d", transferID)
}

// newTransferToken mints the opaque capability carried by the
// invitation link. The database row is the source of truth; the token
// only has to be unguessable.
func newTransferToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
