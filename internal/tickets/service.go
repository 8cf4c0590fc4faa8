package tickets

import (
	"fmt"
	"time"

	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/tickets/db"
	"ms-reservations/internal/tickets/qr"
)

type DBLayer interface {
	TicketInfoByRUID(ruID int64) (*db.TicketInfo, error)
	MarkUsed(ruID int64) (bool, error)
	ResetUsed(ruID int64) (bool, error)
	InsertHistory(h *models.RUnitStatusHistory) error
	HistoryByRUID(ruID int64) ([]models.RUnitStatusHistory, error)
	StatsForEvent(eventSlug string) (*db.CheckInStats, error)
}

var _ DBLayer = (*db.DB)(nil)

// Gate scan outcomes.
const (
	GateValid       = "valid"
	GateInvalid     = "invalid"
	GateAlreadyUsed = "already_used"
	GateWrongEvent  = "wrong_event"
)

// GateResult is what the steward's scanner displays. Ticket is set
// whenever the token resolved to a real unit, even on rejections, so
// the gate can show who tried to enter.
type GateResult struct {
	Status string         `json:"status"`
	Reason string         `json:"reason,omitempty"`
	Ticket *db.TicketInfo `json:"ticket,omitempty"`
}

type Service struct {
	DB     DBLayer
	Signer *Signer
	Logger *logger.Logger
}

func NewService(dbLayer DBLayer, signer *Signer, log *logger.Logger) *Service {
	return &Service{DB: dbLayer, Signer: signer, Logger: log}
}

// IssueToken mints the signed credential for a reservation unit.
func (s *Service) IssueToken(ruID, unitID int64, holderID, eventSlug string) string {
	return s.Signer.Sign(ruID, unitID, holderID, eventSlug, time.Now())
}

// IssueQR renders the credential as a PNG.
func (s *Service) IssueQR(token string) ([]byte, error) {
	png, err := qr.Encode(token)
	if err != nil {
		return nil, errs.Gateway("qr encoding failed", err)
	}
	return png, nil
}

// ValidateAtGate runs the scan checks in a fixed order and, when all
// pass, flips the unit confirmed -> used with a conditional write. Two
// stewards scanning the same ticket race on that write; exactly one of
// them sees Valid.
func (s *Service) ValidateAtGate(token, eventSlug, operator string) (*GateResult, error) {
	claims, ok := s.Signer.Verify(token)
	if !ok {
		s.Logger.LogSecurity("GATE_SCAN", "rejected token: bad signature or malformed payload")
		return &GateResult{Status: GateInvalid, Reason: "signature check failed"}, nil
	}

	info, err := s.DB.TicketInfoByRUID(claims.ReservationUnitID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return &GateResult{Status: GateInvalid, Reason: "ticket not found"}, nil
	}
	if info.EventSlug != eventSlug || claims.EventSlug != eventSlug {
		return &GateResult{Status: GateWrongEvent, Reason: "ticket belongs to a different event", Ticket: info}, nil
	}

	switch info.Status {
	case models.RUnitUsed:
		return &GateResult{Status: GateAlreadyUsed, Reason: "ticket already checked in", Ticket: info}, nil
	case models.RUnitTransferred:
		return &GateResult{Status: GateInvalid, Reason: "ticket has a pending transfer", Ticket: info}, nil
	case models.RUnitCancelled:
		return &GateResult{Status: GateInvalid, Reason: "ticket was cancelled", Ticket: info}, nil
	case models.RUnitConfirmed:
	default:
		return &GateResult{Status: GateInvalid, Reason: fmt.Sprintf("ticket is not confirmed (status %s)", info.Status), Ticket: info}, nil
	}

	flipped, err := s.DB.MarkUsed(info.ReservationUnitID)
	if err != nil {
		return nil, err
	}
	if !flipped {
		// Lost the race against another scanner.
		return &GateResult{Status: GateAlreadyUsed, Reason: "ticket already checked in", Ticket: info}, nil
	}

	if err := s.DB.InsertHistory(&models.RUnitStatusHistory{
		ReservationUnitID: info.ReservationUnitID,
		ReservationID:     info.ReservationID,
		OldStatus:         models.RUnitConfirmed,
		NewStatus:         models.RUnitUsed,
		ChangedBy:         operator,
		Reason:            "gate check-in",
		CreatedAt:         time.Now(),
	}); err != nil {
		s.Logger.LogReservation("CHECKIN", info.ReservationID, "history write failed: "+err.Error())
	}

	info.Status = models.RUnitUsed
	s.Logger.LogReservation("CHECKIN", info.ReservationID,
		fmt.Sprintf("ru=%d event=%s operator=%s", info.ReservationUnitID, eventSlug, operator))
	return &GateResult{Status: GateValid, Ticket: info}, nil
}

// ResetTicket undoes a check-in (wrong gate, hardware retry). Only a
// used ticket can be reset.
func (s *Service) ResetTicket(ruID int64, operator, reason string) error {
	info, err := s.DB.TicketInfoByRUID(ruID)
	if err != nil {
		return err
	}
	if info == nil {
		return errs.NotFound(fmt.Sprintf("ticket %d not found", ruID))
	}
	flipped, err := s.DB.ResetUsed(ruID)
	if err != nil {
		return err
	}
	if !flipped {
		return errs.Conflict("only a used ticket can be reset", map[string]any{"status": info.Status})
	}
	if err := s.DB.InsertHistory(&models.RUnitStatusHistory{
		ReservationUnitID: ruID,
		ReservationID:     info.ReservationID,
		OldStatus:         models.RUnitUsed,
		NewStatus:         models.RUnitConfirmed,
		ChangedBy:         operator,
		Reason:            reason,
		CreatedAt:         time.Now(),
	}); err != nil {
		s.Logger.LogReservation("RESET", info.ReservationID, "history write failed: "+err.Error())
	}
	s.Logger.LogReservation("RESET", info.ReservationID,
		fmt.Sprintf("ru=%d operator=%s reason=%s", ruID, operator, reason))
	return nil
}

func (s *Service) Stats(eventSlug string) (*db.CheckInStats, error) {
	return s.DB.StatsForEvent(eventSlug)
}

func (s *Service) History(ruID int64) ([]models.RUnitStatusHistory, error) {
	return s.DB.HistoryByRUID(ruID)
}
