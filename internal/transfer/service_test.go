package transfer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/transfer"
	"ms-reservations/internal/transfer/db"
)

type MockTransferDB struct {
	mock.Mock
}

func (m *MockTransferDB) UnitForTransfer(ruID int64) (*db.TransferUnit, error) {
	args := m.Called(ruID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.TransferUnit), args.Error(1)
}

func (m *MockTransferDB) InsertTransfer(t *models.TransferLog) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *MockTransferDB) TransferByID(id int64) (*models.TransferLog, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TransferLog), args.Error(1)
}

func (m *MockTransferDB) TransferByToken(token string) (*models.TransferLog, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TransferLog), args.Error(1)
}

func (m *MockTransferDB) PendingForUnit(ruID int64) (*models.TransferLog, error) {
	args := m.Called(ruID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TransferLog), args.Error(1)
}

func (m *MockTransferDB) TransitionTransfer(id int64, toStatus string, fromStatuses ...string) (bool, error) {
	args := m.Called(id, toStatus, fromStatuses)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransferDB) AcceptTransfer(id int64, toUserID string) (bool, error) {
	args := m.Called(id, toUserID)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransferDB) AssignHolder(ruID int64, holderID string) (bool, error) {
	args := m.Called(ruID, holderID)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransferDB) RestoreHolder(ruID int64) (bool, error) {
	args := m.Called(ruID)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransferDB) ParkUnit(ruID int64) (bool, error) {
	args := m.Called(ruID)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransferDB) OutgoingByUser(fromUserID string) ([]models.TransferSummary, error) {
	args := m.Called(fromUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TransferSummary), args.Error(1)
}

func (m *MockTransferDB) IncomingByEmail(email string) ([]models.PendingTransfer, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PendingTransfer), args.Error(1)
}

func (m *MockTransferDB) HistoryByUser(userID string) ([]models.TransferLog, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TransferLog), args.Error(1)
}

func (m *MockTransferDB) ExpiredPending(now time.Time, limit int) ([]models.TransferLog, error) {
	args := m.Called(now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TransferLog), args.Error(1)
}

type MockTransferLedger struct {
	mock.Mock
}

func (m *MockTransferLedger) MarkTransferred(unitID int64) (bool, error) {
	args := m.Called(unitID)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransferLedger) CompleteTransfer(unitID int64) (bool, error) {
	args := m.Called(unitID)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransferLedger) RestoreAfterTransferExpiry(unitID int64) (bool, error) {
	args := m.Called(unitID)
	return args.Bool(0), args.Error(1)
}

type MockTransferIssuer struct {
	mock.Mock
}

func (m *MockTransferIssuer) IssueToken(ruID, unitID int64, holderID, eventSlug string) string {
	args := m.Called(ruID, unitID, holderID, eventSlug)
	return args.String(0)
}

type MockThrottle struct {
	mock.Mock
}

func (m *MockThrottle) Allow(key string, cooldown time.Duration) (bool, time.Duration, error) {
	args := m.Called(key, cooldown)
	return args.Bool(0), args.Get(1).(time.Duration), args.Error(2)
}

func (m *MockThrottle) Reset(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

type transferDeps struct {
	db       *MockTransferDB
	ledger   *MockTransferLedger
	issuer   *MockTransferIssuer
	throttle *MockThrottle
}

func newTransferService() (*transfer.Service, *transferDeps) {
	deps := &transferDeps{
		db:       new(MockTransferDB),
		ledger:   new(MockTransferLedger),
		issuer:   new(MockTransferIssuer),
		throttle: new(MockThrottle),
	}
	svc := transfer.NewService(deps.db, deps.ledger, deps.issuer, deps.throttle, nil,
		logger.NewLogger(), 48*time.Hour, 10*time.Minute)
	return svc, deps
}

func confirmedTransferUnit(ruID int64) *db.TransferUnit {
	return &db.TransferUnit{
		ReservationUnitID: ruID,
		ReservationID:     "res-1",
		UnitID:            7,
		HolderID:          "sender-1",
		Status:            models.RUnitConfirmed,
		EventSlug:         "festival-verano-2026",
	}
}

func pendingTransfer(id int64) *models.TransferLog {
	return &models.TransferLog{
		ID:                id,
		ReservationUnitID: 100,
		FromUserID:        "sender-1",
		ToEmail:           "amiga@example.com",
		Token:             "opaque-token",
		Status:            models.TransferPending,
		ExpiresAt:         time.Now().Add(24 * time.Hour),
	}
}

func TestInitiateTransfer(t *testing.T) {
	svc, deps := newTransferService()

	deps.db.On("UnitForTransfer", int64(100)).Return(confirmedTransferUnit(100), nil)
	deps.db.On("PendingForUnit", int64(100)).Return(nil, nil)
	deps.db.On("ParkUnit", int64(100)).Return(true, nil)
	deps.ledger.On("MarkTransferred", int64(7)).Return(true, nil)
	deps.db.On("InsertTransfer", mock.AnythingOfType("*models.TransferLog")).Return(nil)

	out, err := svc.Initiate(100, "sender-1", "Amiga@Example.com", "see you there")
	assert.NoError(t, err)
	assert.Equal(t, models.TransferPending, out.Status)
	assert.Equal(t, "amiga@example.com", out.ToEmail)
	assert.NotEmpty(t, out.Token)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), out.ExpiresAt, 2*time.Second)
	deps.db.AssertExpectations(t)
}

func TestInitiateTransferNotHolder(t *testing.T) {
	svc, deps := newTransferService()

	deps.db.On("UnitForTransfer", int64(100)).Return(confirmedTransferUnit(100), nil)

	_, err := svc.Initiate(100, "intruder", "amiga@example.com", "")
	assert.Equal(t, errs.KindUnauthorized, errs.KindOf(err))
	deps.db.AssertNotCalled(t, "ParkUnit", mock.Anything)
}

func TestInitiateTransferAlreadyPending(t *testing.T) {
	svc, deps := newTransferService()

	deps.db.On("UnitForTransfer", int64(100)).Return(confirmedTransferUnit(100), nil)
	deps.db.On("PendingForUnit", int64(100)).Return(pendingTransfer(9), nil)

	_, err := svc.Initiate(100, "sender-1", "amiga@example.com", "")
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
}

func TestAcceptTransfer(t *testing.T) {
	svc, deps := newTransferService()

	offer := pendingTransfer(9)
	accepted := confirmedTransferUnit(100)
	accepted.Status = models.RUnitTransferred

	deps.db.On("TransferByToken", "opaque-token").Return(offer, nil)
	deps.db.On("AcceptTransfer", int64(9), "claimant-1").Return(true, nil)
	deps.db.On("AssignHolder", int64(100), "claimant-1").Return(true, nil)
	deps.db.On("UnitForTransfer", int64(100)).Return(accepted, nil)
	deps.ledger.On("CompleteTransfer", int64(7)).Return(true, nil)
	deps.issuer.On("IssueToken", int64(100), int64(7), "claimant-1", "festival-verano-2026").Return("WT:fresh")

	result, err := svc.Accept("opaque-token", "claimant-1", "amiga@example.com")
	assert.NoError(t, err)
	assert.Equal(t, models.TransferAccepted, result.Transfer.Status)
	assert.Equal(t, "WT:fresh", result.TicketToken)
	deps.db.AssertExpectations(t)
}

func TestAcceptTransferWrongEmail(t *testing.T) {
	svc, deps := newTransferService()

	deps.db.On("TransferByToken", "opaque-token").Return(pendingTransfer(9), nil)

	_, err := svc.Accept("opaque-token", "claimant-1", "otra@example.com")
	assert.Equal(t, errs.KindUnauthorized, errs.KindOf(err))
	deps.db.AssertNotCalled(t, "AcceptTransfer", mock.Anything, mock.Anything)
}

func TestAcceptTransferStaleTokenSameClaimant(t *testing.T) {
	svc, deps := newTransferService()

	done := pendingTransfer(9)
	done.Status = models.TransferAccepted
	done.ToUserID = "claimant-1"
	handed := confirmedTransferUnit(100)

	deps.db.On("TransferByToken", "opaque-token").Return(done, nil)
	deps.db.On("UnitForTransfer", int64(100)).Return(handed, nil)
	deps.issuer.On("IssueToken", int64(100), int64(7), "claimant-1", "festival-verano-2026").Return("WT:again")

	result, err := svc.Accept("opaque-token", "claimant-1", "amiga@example.com")
	assert.NoError(t, err)
	assert.Equal(t, "WT:again", result.TicketToken)
	deps.db.AssertNotCalled(t, "AcceptTransfer", mock.Anything, mock.Anything)
}

func TestAcceptTransferLapsedOffer(t *testing.T) {
	svc, deps := newTransferService()

	stale := pendingTransfer(9)
	stale.ExpiresAt = time.Now().Add(-time.Minute)

	deps.db.On("TransferByToken", "opaque-token").Return(stale, nil)
	deps.db.On("TransitionTransfer", int64(9), models.TransferExpired,
		[]string{models.TransferPending}).Return(true, nil)
	deps.db.On("RestoreHolder", int64(100)).Return(true, nil)
	deps.db.On("UnitForTransfer", int64(100)).Return(confirmedTransferUnit(100), nil)
	deps.ledger.On("RestoreAfterTransferExpiry", int64(7)).Return(true, nil)

	_, err := svc.Accept("opaque-token", "claimant-1", "amiga@example.com")
	assert.Equal(t, errs.KindExpired, errs.KindOf(err))
}

func TestCancelTransferRestoresUnit(t *testing.T) {
	svc, deps := newTransferService()

	deps.db.On("TransferByID", int64(9)).Return(pendingTransfer(9), nil)
	deps.db.On("TransitionTransfer", int64(9), models.TransferCancelled,
		[]string{models.TransferPending}).Return(true, nil)
	deps.db.On("RestoreHolder", int64(100)).Return(true, nil)
	deps.db.On("UnitForTransfer", int64(100)).Return(confirmedTransferUnit(100), nil)
	deps.ledger.On("RestoreAfterTransferExpiry", int64(7)).Return(true, nil)
	deps.throttle.On("Reset", "transfer:9").Return(nil)

	err := svc.Cancel(9, "sender-1")
	assert.NoError(t, err)
	deps.throttle.AssertExpectations(t)
}

func TestResendThrottled(t *testing.T) {
	svc, deps := newTransferService()

	deps.db.On("TransferByID", int64(9)).Return(pendingTransfer(9), nil)
	deps.throttle.On("Allow", "transfer:9", 10*time.Minute).
		Return(false, 7*time.Minute, nil)

	err := svc.Resend(9, "sender-1")
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
	var e *errs.Error
	assert.ErrorAs(t, err, &e)
	assert.Equal(t, int((7 * time.Minute).Seconds()), e.Detail["retry_after_seconds"])
}

func TestResendAllowed(t *testing.T) {
	svc, deps := newTransferService()

	deps.db.On("TransferByID", int64(9)).Return(pendingTransfer(9), nil)
	deps.throttle.On("Allow", "transfer:9", 10*time.Minute).
		Return(true, time.Duration(0), nil)

	err := svc.Resend(9, "sender-1")
	assert.NoError(t, err)
}

func TestSweepExpiredTransfers(t *testing.T) {
	svc, deps := newTransferService()

	stale := pendingTransfer(9)
	stale.ExpiresAt = time.Now().Add(-time.Hour)
	deps.db.On("ExpiredPending", mock.AnythingOfType("time.Time"), 50).
		Return([]models.TransferLog{*stale}, nil)
	deps.db.On("TransitionTransfer", int64(9), models.TransferExpired,
		[]string{models.TransferPending}).Return(true, nil)
	deps.db.On("RestoreHolder", int64(100)).Return(true, nil)
	deps.db.On("UnitForTransfer", int64(100)).Return(confirmedTransferUnit(100), nil)
	deps.ledger.On("RestoreAfterTransferExpiry", int64(7)).Return(true, nil)

	swept, err := svc.SweepExpired(50)
	assert.NoError(t, err)
	assert.Equal(t, 1, swept)
}
