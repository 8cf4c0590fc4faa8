package reservation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/pricing"
	"ms-reservations/internal/reservation/db"
	unitsdb "ms-reservations/internal/units/db"
)

type DBLayer interface {
	InsertReservation(r *models.Reservation) error
	InsertReservationUnits(rus []models.ReservationUnit) error
	GetReservation(id string) (*models.Reservation, error)
	TransitionReservation(id, toStatus string, fromStatuses ...string) (bool, error)
	UnitsForReservation(id string) ([]models.ReservationUnit, error)
	TransitionReservationUnits(reservationID, from, to string) (int64, error)
	EventSlugForReservation(id string) (string, error)
	ReservationsByBuyer(buyerID string) ([]models.ReservationSummary, error)
	TicketsByHolder(holderID string) ([]models.MyTicket, error)
	ExpiredPending(now time.Time, limit int) ([]models.Reservation, error)
	ProfileByEmail(email string) (*models.Profile, error)
	ProfileByID(id string) (*models.Profile, error)
	InsertProfile(p *models.Profile) error
}

var _ DBLayer = (*db.DB)(nil)

// UnitLedger is the slice of the unit state machine the manager drives.
type UnitLedger interface {
	Contexts(unitIDs []int64) ([]unitsdb.UnitContext, error)
	ClaimUnits(unitIDs []int64) error
	ReleaseUnits(unitIDs []int64) error
	FinalizeSale(unitIDs []int64) error
}

// Pricer quotes at claim time and consumes capacity at confirm time.
type Pricer interface {
	QuoteUnits(areaID int64, unitCount int, promoCode string) (*pricing.CalculatedPrice, error)
	ConsumeStage(stageID string, quantity int) error
	ConsumePromotion(promoID string, quantity int) error
}

// TokenIssuer mints gate credentials for confirmed units.
type TokenIssuer interface {
	IssueToken(ruID, unitID int64, holderID, eventSlug string) string
}

// Notifier publishes lifecycle events; implementations are
// fire-and-forget and must never block the request path.
type Notifier interface {
	ReservationCreated(r *models.Reservation, total float64)
	ReservationConfirmed(r *models.Reservation, ticketCount int)
	ReservationCancelled(r *models.Reservation, reason string)
}

type Service struct {
	DB      DBLayer
	Units   UnitLedger
	Pricing Pricer
	Tickets TokenIssuer
	Notify  Notifier
	Logger  *logger.Logger
	TTL     time.Duration
}

func NewService(dbLayer DBLayer, ledger UnitLedger, pricer Pricer, issuer TokenIssuer, notify Notifier, log *logger.Logger, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{DB: dbLayer, Units: ledger, Pricing: pricer, Tickets: issuer, Notify: notify, Logger: log, TTL: ttl}
}

type CreateInput struct {
	BuyerID    string  `json:"buyer_id"`
	BuyerEmail string  `json:"buyer_email"`
	BuyerName  string  `json:"buyer_name"`
	UnitIDs    []int64 `json:"unit_ids"`
	PromoCode  string  `json:"promo_code"`
}

// CreateResult reports the hold: the units now reserved, the price
// snapshot per area and when the hold lapses.
type CreateResult struct {
	Reservation *models.Reservation        `json:"reservation"`
	Units       []models.ReservationUnit   `json:"units"`
	Quotes      []*pricing.CalculatedPrice `json:"quotes"`
	Total       float64                    `json:"total"`
	Currency    string                     `json:"currency"`
	ExpiresAt   time.Time                  `json:"expires_at"`
}

// IssuedTicket pairs a confirmed unit with its signed credential.
type IssuedTicket struct {
	ReservationUnitID int64  `json:"reservation_unit_id"`
	UnitID            int64  `json:"unit_id"`
	HolderID          string `json:"holder_id"`
	Token             string `json:"token"`
}

type ConfirmResult struct {
	ReservationID string         `json:"reservation_id"`
	Status        string         `json:"status"`
	Tickets       []IssuedTicket `json:"tickets"`
	PaymentRef    string         `json:"payment_ref,omitempty"`
}

// TimeoutInfo tells a polling client how long its hold has left.
type TimeoutInfo struct {
	ReservationID    string    `json:"reservation_id"`
	Status           string    `json:"status"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// CreateReservation claims the requested units all-or-none, snapshots
// the current price per unit and opens a pending hold with a TTL.
func (s *Service) CreateReservation(in CreateInput) (*CreateResult, error) {
	unitIDs := dedupe(in.UnitIDs)
	if len(unitIDs) == 0 {
		return nil, errs.InvalidInput("at least one unit is required")
	}

	buyer, err := s.resolveBuyer(in)
	if err != nil {
		return nil, err
	}

	contexts, err := s.Units.Contexts(unitIDs)
	if err != nil {
		return nil, err
	}
	if len(contexts) != len(unitIDs) {
		return nil, errs.NotFound("one or more units do not exist")
	}
	clusterID := contexts[0].ClusterID
	for _, c := range contexts {
		if c.ClusterID != clusterID {
			return nil, errs.InvalidInput("all units must belong to the same event")
		}
	}

	if err := s.Units.ClaimUnits(unitIDs); err != nil {
		return nil, err
	}

	// From here on any failure must hand the units back.
	release := func() {
		if relErr := s.Units.ReleaseUnits(unitIDs); relErr != nil {
			s.Logger.LogReservation("CREATE", "-", "release after failure also failed: "+relErr.Error())
		}
	}

	byArea := make(map[int64][]int64)
	for _, c := range contexts {
		byArea[c.AreaID] = append(byArea[c.AreaID], c.UnitID)
	}

	quotes := make([]*pricing.CalculatedPrice, 0, len(byArea))
	unitPrice := make(map[int64]float64, len(unitIDs))
	unitStage := make(map[int64]string, len(unitIDs))
	unitPromo := make(map[int64]string, len(unitIDs))
	var total float64
	var currency string
	for areaID, ids := range byArea {
		quote, qErr := s.Pricing.QuoteUnits(areaID, len(ids), in.PromoCode)
		if qErr != nil {
			release()
			return nil, qErr
		}
		quotes = append(quotes, quote)
		total += quote.Total
		currency = quote.Currency
		for _, id := range ids {
			unitPrice[id] = quote.UnitPrice
			unitStage[id] = quote.StageID
			unitPromo[id] = quote.PromotionID
		}
	}

	now := time.Now()
	r := &models.Reservation{
		ID:        uuid.NewString(),
		BuyerID:   buyer.ID,
		Status:    models.ReservationPending,
		ExpiresAt: now.Add(s.TTL),
		CreatedAt: now,
	}
	rus := make([]models.ReservationUnit, 0, len(unitIDs))
	for _, id := range unitIDs {
		rus = append(rus, models.ReservationUnit{
			ReservationID:  r.ID,
			UnitID:         id,
			Status:         models.RUnitReserved,
			HolderID:       buyer.ID,
			AppliedStageID: unitStage[id],
			AppliedPromoID: unitPromo[id],
			PricePaid:      unitPrice[id],
			CreatedAt:      now,
		})
	}

	if err := s.DB.InsertReservation(r); err != nil {
		release()
		return nil, err
	}
	if err := s.DB.InsertReservationUnits(rus); err != nil {
		release()
		return nil, err
	}

	if s.Notify != nil {
		s.Notify.ReservationCreated(r, total)
	}
	s.Logger.LogReservation("CREATE", r.ID,
		fmt.Sprintf("buyer=%s units=%d total=%.2f expires=%s", buyer.ID, len(rus), total, r.ExpiresAt.Format(time.RFC3339)))

	stored, err := s.DB.UnitsForReservation(r.ID)
	if err != nil {
		stored = rus
	}
	return &CreateResult{
		Reservation: r,
		Units:       stored,
		Quotes:      quotes,
		Total:       total,
		Currency:    currency,
		ExpiresAt:   r.ExpiresAt,
	}, nil
}

// ConfirmReservation finalizes a paid hold: exactly one caller wins the
// pending -> active flip; re-delivered confirmations get their
// credentials re-issued instead of an error.
//
// A hold whose expires_at has passed is never confirmable, even when
// the sweeper has not reached it yet.
func (s *Service) ConfirmReservation(reservationID, paymentRef string) (*ConfirmResult, error) {
	r, err := s.DB.GetReservation(reservationID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errs.NotFound(fmt.Sprintf("reservation %s not found", reservationID))
	}
	if r.Status == models.ReservationPending && !r.ExpiresAt.After(time.Now()) {
		return nil, errs.Expired("reservation hold has lapsed")
	}

	won, err := s.DB.TransitionReservation(reservationID, models.ReservationActive,
		models.ReservationPending)
	if err != nil {
		return nil, err
	}
	if !won {
		fresh, err := s.DB.GetReservation(reservationID)
		if err != nil {
			return nil, err
		}
		switch fresh.Status {
		case models.ReservationActive:
			// Idempotent redelivery: hand the tickets back.
			return s.issuedResult(fresh, paymentRef)
		case models.ReservationCancelled:
			return nil, errs.Conflict("reservation was cancelled", nil)
		default:
			return nil, errs.Expired("reservation can no longer be confirmed")
		}
	}

	moved, err := s.DB.TransitionReservationUnits(reservationID, models.RUnitReserved, models.RUnitConfirmed)
	if err != nil {
		return nil, err
	}
	if moved == 0 {
		// The sweep released the seats before payment landed; undo the
		// status flip so the record reflects what actually happened.
		if _, revertErr := s.DB.TransitionReservation(reservationID, models.ReservationExpired, models.ReservationActive); revertErr != nil {
			s.Logger.LogReservation("CONFIRM", reservationID, "revert after lost seats failed: "+revertErr.Error())
		}
		return nil, errs.Expired("reservation expired and its units were released")
	}

	rus, err := s.DB.UnitsForReservation(reservationID)
	if err != nil {
		return nil, err
	}
	unitIDs := make([]int64, 0, len(rus))
	stageCounts := make(map[string]int)
	promoCounts := make(map[string]int)
	for _, ru := range rus {
		if ru.Status != models.RUnitConfirmed {
			continue
		}
		unitIDs = append(unitIDs, ru.UnitID)
		if ru.AppliedStageID != "" {
			stageCounts[ru.AppliedStageID]++
		}
		if ru.AppliedPromoID != "" {
			promoCounts[ru.AppliedPromoID]++
		}
	}
	if err := s.Units.FinalizeSale(unitIDs); err != nil {
		return nil, err
	}

	// Capacity counters move exactly once, on the winning confirm. A
	// counter that sold out in the meantime is logged, not refunded:
	// the payment already settled.
	for stageID, n := range stageCounts {
		if err := s.Pricing.ConsumeStage(stageID, n); err != nil {
			s.Logger.LogReservation("CONFIRM", reservationID, "stage counter: "+err.Error())
		}
	}
	for promoID, n := range promoCounts {
		if err := s.Pricing.ConsumePromotion(promoID, n); err != nil {
			s.Logger.LogReservation("CONFIRM", reservationID, "promo counter: "+err.Error())
		}
	}

	r.Status = models.ReservationActive
	if s.Notify != nil {
		s.Notify.ReservationConfirmed(r, len(unitIDs))
	}
	s.Logger.LogReservation("CONFIRM", reservationID,
		fmt.Sprintf("units=%d payment_ref=%s", len(unitIDs), paymentRef))
	return s.issuedResult(r, paymentRef)
}

// ConfirmFromGateway is the webhook-facing confirm: the gateway only
// cares whether the confirmation stuck.
func (s *Service) ConfirmFromGateway(reservationID, paymentRef string) error {
	_, err := s.ConfirmReservation(reservationID, paymentRef)
	return err
}

// issuedResult builds the ticket bundle for a paid reservation.
func (s *Service) issuedResult(r *models.Reservation, paymentRef string) (*ConfirmResult, error) {
	slug, err := s.DB.EventSlugForReservation(r.ID)
	if err != nil {
		return nil, err
	}
	rus, err := s.DB.UnitsForReservation(r.ID)
	if err != nil {
		return nil, err
	}
	tickets := make([]IssuedTicket, 0, len(rus))
	for _, ru := range rus {
		if ru.Status != models.RUnitConfirmed && ru.Status != models.RUnitUsed {
			continue
		}
		tickets = append(tickets, IssuedTicket{
			ReservationUnitID: ru.ID,
			UnitID:            ru.UnitID,
			HolderID:          ru.HolderID,
			Token:             s.Tickets.IssueToken(ru.ID, ru.UnitID, ru.HolderID, slug),
		})
	}
	return &ConfirmResult{
		ReservationID: r.ID,
		Status:        r.Status,
		Tickets:       tickets,
		PaymentRef:    paymentRef,
	}, nil
}

// CancelReservation voids a pending hold and hands the units back.
// Paid (active) reservations are refund territory and are not
// cancellable here.
func (s *Service) CancelReservation(reservationID, callerID string) error {
	r, err := s.DB.GetReservation(reservationID)
	if err != nil {
		return err
	}
	if r == nil {
		return errs.NotFound(fmt.Sprintf("reservation %s not found", reservationID))
	}
	if r.BuyerID != callerID {
		return errs.Unauthorized("reservation belongs to another buyer")
	}

	won, err := s.DB.TransitionReservation(reservationID, models.ReservationCancelled, models.ReservationPending)
	if err != nil {
		return err
	}
	if !won {
		return errs.Conflict("only a pending reservation can be cancelled", map[string]any{"status": r.Status})
	}
	if err := s.releaseHeldUnits(reservationID); err != nil {
		return err
	}

	r.Status = models.ReservationCancelled
	if s.Notify != nil {
		s.Notify.ReservationCancelled(r, "cancelled by buyer")
	}
	s.Logger.LogReservation("CANCEL", reservationID, "cancelled by "+callerID)
	return nil
}

// ExpireReservation is the sweep for one lapsed hold. Returns whether
// this call did the expiring.
func (s *Service) ExpireReservation(reservationID string) (bool, error) {
	won, err := s.DB.TransitionReservation(reservationID, models.ReservationExpired, models.ReservationPending)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}
	if err := s.releaseHeldUnits(reservationID); err != nil {
		return true, err
	}
	s.Logger.LogReservation("EXPIRE", reservationID, "hold lapsed, units released")
	return true, nil
}

func (s *Service) releaseHeldUnits(reservationID string) error {
	rus, err := s.DB.UnitsForReservation(reservationID)
	if err != nil {
		return err
	}
	var unitIDs []int64
	for _, ru := range rus {
		if ru.Status == models.RUnitReserved {
			unitIDs = append(unitIDs, ru.UnitID)
		}
	}
	if _, err := s.DB.TransitionReservationUnits(reservationID, models.RUnitReserved, models.RUnitCancelled); err != nil {
		return err
	}
	if len(unitIDs) > 0 {
		return s.Units.ReleaseUnits(unitIDs)
	}
	return nil
}

// SweepExpired expires every lapsed pending hold; called by the
// background sweeper on its own cadence.
func (s *Service) SweepExpired(limit int) (int, error) {
	lapsed, err := s.DB.ExpiredPending(time.Now(), limit)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, r := range lapsed {
		won, err := s.ExpireReservation(r.ID)
		if err != nil {
			s.Logger.LogReservation("EXPIRE", r.ID, "sweep error: "+err.Error())
			continue
		}
		if won {
			swept++
		}
	}
	return swept, nil
}

// GetReservation reads a reservation. A lapsed pending hold is reported
// as expired without being mutated; releasing its seats stays with the
// sweeper.
func (s *Service) GetReservation(reservationID string) (*models.Reservation, []models.ReservationUnit, error) {
	r, err := s.DB.GetReservation(reservationID)
	if err != nil {
		return nil, nil, err
	}
	if r == nil {
		return nil, nil, errs.NotFound(fmt.Sprintf("reservation %s not found", reservationID))
	}
	if r.Status == models.ReservationPending && !r.ExpiresAt.After(time.Now()) {
		r.Status = models.ReservationExpired
	}
	rus, err := s.DB.UnitsForReservation(reservationID)
	if err != nil {
		return nil, nil, err
	}
	return r, rus, nil
}

func (s *Service) Timeout(reservationID string) (*TimeoutInfo, error) {
	r, _, err := s.GetReservation(reservationID)
	if err != nil {
		return nil, err
	}
	remaining := 0
	if r.Status == models.ReservationPending {
		remaining = int(time.Until(r.ExpiresAt).Seconds())
		if remaining < 0 {
			remaining = 0
		}
	}
	return &TimeoutInfo{
		ReservationID:    r.ID,
		Status:           r.Status,
		ExpiresAt:        r.ExpiresAt,
		RemainingSeconds: remaining,
	}, nil
}

func (s *Service) ListByBuyer(buyerID string) ([]models.ReservationSummary, error) {
	return s.DB.ReservationsByBuyer(buyerID)
}

func (s *Service) MyTickets(holderID string) ([]models.MyTicket, error) {
	return s.DB.TicketsByHolder(holderID)
}

// resolveBuyer accepts either an existing profile id or an email to
// get-or-create one, matching the public checkout flow.
func (s *Service) resolveBuyer(in CreateInput) (*models.Profile, error) {
	if in.BuyerID != "" {
		p, err := s.DB.ProfileByID(in.BuyerID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, errs.NotFound("buyer profile not found")
		}
		return p, nil
	}
	email := strings.TrimSpace(strings.ToLower(in.BuyerEmail))
	if email == "" {
		return nil, errs.InvalidInput("buyer_id or buyer_email is required")
	}
	p, err := s.DB.ProfileByEmail(email)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}
	p = &models.Profile{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      in.BuyerName,
		CreatedAt: time.Now(),
	}
	if err := s.DB.InsertProfile(p); err != nil {
		return nil, err
	}
	return p, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
