package reservation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/pricing"
	"ms-reservations/internal/reservation"
	unitsdb "ms-reservations/internal/units/db"
)

type MockReservationDB struct {
	mock.Mock
}

func (m *MockReservationDB) InsertReservation(r *models.Reservation) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockReservationDB) InsertReservationUnits(rus []models.ReservationUnit) error {
	args := m.Called(rus)
	return args.Error(0)
}

func (m *MockReservationDB) GetReservation(id string) (*models.Reservation, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

func (m *MockReservationDB) TransitionReservation(id, toStatus string, fromStatuses ...string) (bool, error) {
	args := m.Called(id, toStatus, fromStatuses)
	return args.Bool(0), args.Error(1)
}

func (m *MockReservationDB) UnitsForReservation(id string) ([]models.ReservationUnit, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ReservationUnit), args.Error(1)
}

func (m *MockReservationDB) TransitionReservationUnits(reservationID, from, to string) (int64, error) {
	args := m.Called(reservationID, from, to)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReservationDB) EventSlugForReservation(id string) (string, error) {
	args := m.Called(id)
	return args.String(0), args.Error(1)
}

func (m *MockReservationDB) ReservationsByBuyer(buyerID string) ([]models.ReservationSummary, error) {
	args := m.Called(buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ReservationSummary), args.Error(1)
}

func (m *MockReservationDB) TicketsByHolder(holderID string) ([]models.MyTicket, error) {
	args := m.Called(holderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MyTicket), args.Error(1)
}

func (m *MockReservationDB) ExpiredPending(now time.Time, limit int) ([]models.Reservation, error) {
	args := m.Called(now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reservation), args.Error(1)
}

func (m *MockReservationDB) ProfileByEmail(email string) (*models.Profile, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *MockReservationDB) ProfileByID(id string) (*models.Profile, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *MockReservationDB) InsertProfile(p *models.Profile) error {
	args := m.Called(p)
	return args.Error(0)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Contexts(unitIDs []int64) ([]unitsdb.UnitContext, error) {
	args := m.Called(unitIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]unitsdb.UnitContext), args.Error(1)
}

func (m *MockLedger) ClaimUnits(unitIDs []int64) error {
	args := m.Called(unitIDs)
	return args.Error(0)
}

func (m *MockLedger) ReleaseUnits(unitIDs []int64) error {
	args := m.Called(unitIDs)
	return args.Error(0)
}

func (m *MockLedger) FinalizeSale(unitIDs []int64) error {
	args := m.Called(unitIDs)
	return args.Error(0)
}

type MockPricer struct {
	mock.Mock
}

func (m *MockPricer) QuoteUnits(areaID int64, unitCount int, promoCode string) (*pricing.CalculatedPrice, error) {
	args := m.Called(areaID, unitCount, promoCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pricing.CalculatedPrice), args.Error(1)
}

func (m *MockPricer) ConsumeStage(stageID string, quantity int) error {
	args := m.Called(stageID, quantity)
	return args.Error(0)
}

func (m *MockPricer) ConsumePromotion(promoID string, quantity int) error {
	args := m.Called(promoID, quantity)
	return args.Error(0)
}

type MockIssuer struct {
	mock.Mock
}

func (m *MockIssuer) IssueToken(ruID, unitID int64, holderID, eventSlug string) string {
	args := m.Called(ruID, unitID, holderID, eventSlug)
	return args.String(0)
}

type testDeps struct {
	db     *MockReservationDB
	ledger *MockLedger
	pricer *MockPricer
	issuer *MockIssuer
}

func newReservationService() (*reservation.Service, *testDeps) {
	deps := &testDeps{
		db:     new(MockReservationDB),
		ledger: new(MockLedger),
		pricer: new(MockPricer),
		issuer: new(MockIssuer),
	}
	svc := reservation.NewService(deps.db, deps.ledger, deps.pricer, deps.issuer, nil, logger.NewLogger(), 15*time.Minute)
	return svc, deps
}

func vipContexts(ids ...int64) []unitsdb.UnitContext {
	out := make([]unitsdb.UnitContext, 0, len(ids))
	for _, id := range ids {
		out = append(out, unitsdb.UnitContext{
			UnitID:    id,
			AreaID:    1,
			ClusterID: 10,
			Status:    models.UnitAvailable,
			BasePrice: 100000,
		})
	}
	return out
}

func TestCreateReservationHappyPath(t *testing.T) {
	svc, deps := newReservationService()

	buyer := &models.Profile{ID: "buyer-1", Email: "ana@example.com"}
	deps.db.On("ProfileByID", "buyer-1").Return(buyer, nil)
	deps.ledger.On("Contexts", []int64{5, 6}).Return(vipContexts(5, 6), nil)
	deps.ledger.On("ClaimUnits", []int64{5, 6}).Return(nil)
	deps.pricer.On("QuoteUnits", int64(1), 2, "").Return(&pricing.CalculatedPrice{
		AreaID: 1, UnitPrice: 80000, Total: 176000, Currency: "COP", StageID: "stage-eb",
	}, nil)
	deps.db.On("InsertReservation", mock.AnythingOfType("*models.Reservation")).Return(nil)
	deps.db.On("InsertReservationUnits", mock.AnythingOfType("[]models.ReservationUnit")).Return(nil)
	deps.db.On("UnitsForReservation", mock.AnythingOfType("string")).Return(nil, nil)

	result, err := svc.CreateReservation(reservation.CreateInput{
		BuyerID: "buyer-1",
		UnitIDs: []int64{5, 6, 5},
	})
	assert.NoError(t, err)
	assert.Equal(t, models.ReservationPending, result.Reservation.Status)
	assert.Equal(t, float64(176000), result.Total)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), result.ExpiresAt, 2*time.Second)
	deps.ledger.AssertExpectations(t)
	deps.db.AssertExpectations(t)
}

func TestCreateReservationClaimConflict(t *testing.T) {
	svc, deps := newReservationService()

	buyer := &models.Profile{ID: "buyer-1"}
	deps.db.On("ProfileByID", "buyer-1").Return(buyer, nil)
	deps.ledger.On("Contexts", []int64{5}).Return(vipContexts(5), nil)
	deps.ledger.On("ClaimUnits", []int64{5}).
		Return(errs.Conflict("units are not available", map[string]any{"unavailable_unit_ids": []int64{5}}))

	_, err := svc.CreateReservation(reservation.CreateInput{BuyerID: "buyer-1", UnitIDs: []int64{5}})
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
	deps.db.AssertNotCalled(t, "InsertReservation", mock.Anything)
}

func TestCreateReservationQuoteFailureReleasesUnits(t *testing.T) {
	svc, deps := newReservationService()

	buyer := &models.Profile{ID: "buyer-1"}
	deps.db.On("ProfileByID", "buyer-1").Return(buyer, nil)
	deps.ledger.On("Contexts", []int64{5}).Return(vipContexts(5), nil)
	deps.ledger.On("ClaimUnits", []int64{5}).Return(nil)
	deps.pricer.On("QuoteUnits", int64(1), 1, "BOGUS").Return(nil, errs.InvalidInput("promotion code not found"))
	deps.ledger.On("ReleaseUnits", []int64{5}).Return(nil)

	_, err := svc.CreateReservation(reservation.CreateInput{
		BuyerID:   "buyer-1",
		UnitIDs:   []int64{5},
		PromoCode: "BOGUS",
	})
	assert.Equal(t, errs.KindInvalidInput, errs.KindOf(err))
	deps.ledger.AssertCalled(t, "ReleaseUnits", []int64{5})
}

func TestCreateReservationMixedClusters(t *testing.T) {
	svc, deps := newReservationService()

	buyer := &models.Profile{ID: "buyer-1"}
	deps.db.On("ProfileByID", "buyer-1").Return(buyer, nil)
	mixed := vipContexts(5)
	other := vipContexts(6)
	other[0].ClusterID = 11
	deps.ledger.On("Contexts", []int64{5, 6}).Return(append(mixed, other...), nil)

	_, err := svc.CreateReservation(reservation.CreateInput{BuyerID: "buyer-1", UnitIDs: []int64{5, 6}})
	assert.Equal(t, errs.KindInvalidInput, errs.KindOf(err))
	deps.ledger.AssertNotCalled(t, "ClaimUnits", mock.Anything)
}

func pendingReservation(id string) *models.Reservation {
	return &models.Reservation{
		ID:        id,
		BuyerID:   "buyer-1",
		Status:    models.ReservationPending,
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}
}

func confirmedUnits(reservationID string) []models.ReservationUnit {
	return []models.ReservationUnit{
		{ID: 100, ReservationID: reservationID, UnitID: 5, Status: models.RUnitConfirmed, HolderID: "buyer-1", AppliedStageID: "stage-eb", PricePaid: 80000},
		{ID: 101, ReservationID: reservationID, UnitID: 6, Status: models.RUnitConfirmed, HolderID: "buyer-1", AppliedStageID: "stage-eb", PricePaid: 80000},
	}
}

func TestConfirmReservationHappyPath(t *testing.T) {
	svc, deps := newReservationService()

	deps.db.On("GetReservation", "res-1").Return(pendingReservation("res-1"), nil)
	deps.db.On("TransitionReservation", "res-1", models.ReservationActive,
		[]string{models.ReservationPending}).Return(true, nil)
	deps.db.On("TransitionReservationUnits", "res-1", models.RUnitReserved, models.RUnitConfirmed).
		Return(int64(2), nil)
	deps.db.On("UnitsForReservation", "res-1").Return(confirmedUnits("res-1"), nil)
	deps.ledger.On("FinalizeSale", []int64{5, 6}).Return(nil)
	deps.pricer.On("ConsumeStage", "stage-eb", 2).Return(nil)
	deps.db.On("EventSlugForReservation", "res-1").Return("festival-verano-2026", nil)
	deps.issuer.On("IssueToken", mock.AnythingOfType("int64"), mock.AnythingOfType("int64"), "buyer-1", "festival-verano-2026").
		Return("WT:signed")

	result, err := svc.ConfirmReservation("res-1", "pi_123")
	assert.NoError(t, err)
	assert.Equal(t, models.ReservationActive, result.Status)
	assert.Len(t, result.Tickets, 2)
	assert.Equal(t, "pi_123", result.PaymentRef)
	deps.pricer.AssertExpectations(t)
	deps.ledger.AssertExpectations(t)
}

func TestConfirmReservationIdempotentRedelivery(t *testing.T) {
	svc, deps := newReservationService()

	paid := pendingReservation("res-1")
	paid.Status = models.ReservationActive

	deps.db.On("GetReservation", "res-1").Return(paid, nil)
	deps.db.On("TransitionReservation", "res-1", models.ReservationActive,
		[]string{models.ReservationPending}).Return(false, nil)
	deps.db.On("EventSlugForReservation", "res-1").Return("festival-verano-2026", nil)
	deps.db.On("UnitsForReservation", "res-1").Return(confirmedUnits("res-1"), nil)
	deps.issuer.On("IssueToken", mock.AnythingOfType("int64"), mock.AnythingOfType("int64"), "buyer-1", "festival-verano-2026").
		Return("WT:signed")

	result, err := svc.ConfirmReservation("res-1", "pi_123")
	assert.NoError(t, err)
	assert.Len(t, result.Tickets, 2)
	// The counters already moved on the winning confirm.
	deps.pricer.AssertNotCalled(t, "ConsumeStage", mock.Anything, mock.Anything)
	deps.ledger.AssertNotCalled(t, "FinalizeSale", mock.Anything)
}

func TestConfirmReservationAfterSeatsReleased(t *testing.T) {
	svc, deps := newReservationService()

	deps.db.On("GetReservation", "res-1").Return(pendingReservation("res-1"), nil)
	deps.db.On("TransitionReservation", "res-1", models.ReservationActive,
		[]string{models.ReservationPending}).Return(true, nil)
	deps.db.On("TransitionReservationUnits", "res-1", models.RUnitReserved, models.RUnitConfirmed).
		Return(int64(0), nil)
	deps.db.On("TransitionReservation", "res-1", models.ReservationExpired,
		[]string{models.ReservationActive}).Return(true, nil)

	_, err := svc.ConfirmReservation("res-1", "pi_123")
	assert.Equal(t, errs.KindExpired, errs.KindOf(err))
}

func TestConfirmReservationLapsedHold(t *testing.T) {
	svc, deps := newReservationService()

	lapsed := pendingReservation("res-1")
	lapsed.ExpiresAt = time.Now().Add(-5 * time.Minute)
	deps.db.On("GetReservation", "res-1").Return(lapsed, nil)

	_, err := svc.ConfirmReservation("res-1", "pi_123")
	assert.Equal(t, errs.KindExpired, errs.KindOf(err))
	// A lapsed hold never reaches the status flip, sweeper or not.
	deps.db.AssertNotCalled(t, "TransitionReservation", mock.Anything, mock.Anything, mock.Anything)
	deps.ledger.AssertNotCalled(t, "FinalizeSale", mock.Anything)
}

func TestConfirmReservationAlreadySwept(t *testing.T) {
	svc, deps := newReservationService()

	swept := pendingReservation("res-1")
	swept.Status = models.ReservationExpired

	deps.db.On("GetReservation", "res-1").Return(swept, nil)
	deps.db.On("TransitionReservation", "res-1", models.ReservationActive,
		[]string{models.ReservationPending}).Return(false, nil)

	_, err := svc.ConfirmReservation("res-1", "pi_123")
	assert.Equal(t, errs.KindExpired, errs.KindOf(err))
}

func TestGetReservationReportsLapsedWithoutExpiring(t *testing.T) {
	svc, deps := newReservationService()

	lapsed := pendingReservation("res-1")
	lapsed.ExpiresAt = time.Now().Add(-time.Minute)
	deps.db.On("GetReservation", "res-1").Return(lapsed, nil)
	deps.db.On("UnitsForReservation", "res-1").Return([]models.ReservationUnit{}, nil)

	r, _, err := svc.GetReservation("res-1")
	assert.NoError(t, err)
	assert.Equal(t, models.ReservationExpired, r.Status)
	// The read only reports; releasing the seats stays with the sweeper.
	deps.db.AssertNotCalled(t, "TransitionReservation", mock.Anything, mock.Anything, mock.Anything)
	deps.ledger.AssertNotCalled(t, "ReleaseUnits", mock.Anything)
}

func TestCancelReservationWrongBuyer(t *testing.T) {
	svc, deps := newReservationService()

	deps.db.On("GetReservation", "res-1").Return(pendingReservation("res-1"), nil)

	err := svc.CancelReservation("res-1", "someone-else")
	assert.Equal(t, errs.KindUnauthorized, errs.KindOf(err))
	deps.db.AssertNotCalled(t, "TransitionReservation", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepExpired(t *testing.T) {
	svc, deps := newReservationService()

	lapsed := []models.Reservation{{ID: "res-1"}, {ID: "res-2"}}
	deps.db.On("ExpiredPending", mock.AnythingOfType("time.Time"), 50).Return(lapsed, nil)
	deps.db.On("TransitionReservation", "res-1", models.ReservationExpired,
		[]string{models.ReservationPending}).Return(true, nil)
	// res-2 got confirmed between the query and the flip.
	deps.db.On("TransitionReservation", "res-2", models.ReservationExpired,
		[]string{models.ReservationPending}).Return(false, nil)
	deps.db.On("UnitsForReservation", "res-1").Return([]models.ReservationUnit{
		{ID: 100, ReservationID: "res-1", UnitID: 5, Status: models.RUnitReserved},
	}, nil)
	deps.db.On("TransitionReservationUnits", "res-1", models.RUnitReserved, models.RUnitCancelled).
		Return(int64(1), nil)
	deps.ledger.On("ReleaseUnits", []int64{5}).Return(nil)

	swept, err := svc.SweepExpired(50)
	assert.NoError(t, err)
	assert.Equal(t, 1, swept)
	deps.ledger.AssertExpectations(t)
}
