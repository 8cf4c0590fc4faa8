package tickets_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/tickets"
	"ms-reservations/internal/tickets/db"
)

type MockTicketDB struct {
	mock.Mock
}

func (m *MockTicketDB) TicketInfoByRUID(ruID int64) (*db.TicketInfo, error) {
	args := m.Called(ruID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.TicketInfo), args.Error(1)
}

func (m *MockTicketDB) MarkUsed(ruID int64) (bool, error) {
	args := m.Called(ruID)
	return args.Bool(0), args.Error(1)
}

func (m *MockTicketDB) ResetUsed(ruID int64) (bool, error) {
	args := m.Called(ruID)
	return args.Bool(0), args.Error(1)
}

func (m *MockTicketDB) InsertHistory(h *models.RUnitStatusHistory) error {
	args := m.Called(h)
	return args.Error(0)
}

func (m *MockTicketDB) HistoryByRUID(ruID int64) ([]models.RUnitStatusHistory, error) {
	args := m.Called(ruID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RUnitStatusHistory), args.Error(1)
}

func (m *MockTicketDB) StatsForEvent(eventSlug string) (*db.CheckInStats, error) {
	args := m.Called(eventSlug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.CheckInStats), args.Error(1)
}

func newGateService(dbMock *MockTicketDB) (*tickets.Service, *tickets.Signer) {
	signer := tickets.NewSigner("gate-test-secret")
	return tickets.NewService(dbMock, signer, logger.NewLogger()), signer
}

func confirmedTicket(ruID int64) *db.TicketInfo {
	return &db.TicketInfo{
		ReservationUnitID: ruID,
		ReservationID:     "res-1",
		UnitID:            7,
		Status:            models.RUnitConfirmed,
		HolderID:          "holder-1",
		EventSlug:         "festival-verano-2026",
	}
}

func TestValidateAtGateValidScan(t *testing.T) {
	dbMock := new(MockTicketDB)
	svc, signer := newGateService(dbMock)
	token := signer.Sign(42, 7, "holder-1", "festival-verano-2026", time.Now())

	dbMock.On("TicketInfoByRUID", int64(42)).Return(confirmedTicket(42), nil)
	dbMock.On("MarkUsed", int64(42)).Return(true, nil)
	dbMock.On("InsertHistory", mock.AnythingOfType("*models.RUnitStatusHistory")).Return(nil)

	result, err := svc.ValidateAtGate(token, "festival-verano-2026", "gate-3")
	assert.NoError(t, err)
	assert.Equal(t, tickets.GateValid, result.Status)
	assert.Equal(t, models.RUnitUsed, result.Ticket.Status)
	dbMock.AssertExpectations(t)
}

func TestValidateAtGateBadSignature(t *testing.T) {
	dbMock := new(MockTicketDB)
	svc, _ := newGateService(dbMock)

	result, err := svc.ValidateAtGate("WT:42|7|holder-1|festival-verano-2026|0|0000000000000000", "festival-verano-2026", "gate-3")
	assert.NoError(t, err)
	assert.Equal(t, tickets.GateInvalid, result.Status)
	dbMock.AssertNotCalled(t, "TicketInfoByRUID", mock.Anything)
}

func TestValidateAtGateWrongEvent(t *testing.T) {
	dbMock := new(MockTicketDB)
	svc, signer := newGateService(dbMock)
	token := signer.Sign(42, 7, "holder-1", "festival-verano-2026", time.Now())

	dbMock.On("TicketInfoByRUID", int64(42)).Return(confirmedTicket(42), nil)

	result, err := svc.ValidateAtGate(token, "otro-evento", "gate-1")
	assert.NoError(t, err)
	assert.Equal(t, tickets.GateWrongEvent, result.Status)
	dbMock.AssertNotCalled(t, "MarkUsed", mock.Anything)
}

func TestValidateAtGateDoubleScan(t *testing.T) {
	dbMock := new(MockTicketDB)
	svc, signer := newGateService(dbMock)
	token := signer.Sign(42, 7, "holder-1", "festival-verano-2026", time.Now())

	// Both scanners read a confirmed ticket, only one conditional flip
	// lands. Each read gets its own row so the second scan still sees
	// confirmed and loses at MarkUsed, not at the status switch.
	dbMock.On("TicketInfoByRUID", int64(42)).Return(confirmedTicket(42), nil).Once()
	dbMock.On("TicketInfoByRUID", int64(42)).Return(confirmedTicket(42), nil).Once()
	dbMock.On("MarkUsed", int64(42)).Return(true, nil).Once()
	dbMock.On("MarkUsed", int64(42)).Return(false, nil).Once()
	dbMock.On("InsertHistory", mock.AnythingOfType("*models.RUnitStatusHistory")).Return(nil).Once()

	first, err := svc.ValidateAtGate(token, "festival-verano-2026", "gate-1")
	assert.NoError(t, err)
	second, err := svc.ValidateAtGate(token, "festival-verano-2026", "gate-2")
	assert.NoError(t, err)

	assert.Equal(t, tickets.GateValid, first.Status)
	assert.Equal(t, tickets.GateAlreadyUsed, second.Status)
	dbMock.AssertExpectations(t)
}

func TestValidateAtGateUsedTicket(t *testing.T) {
	dbMock := new(MockTicketDB)
	svc, signer := newGateService(dbMock)
	token := signer.Sign(42, 7, "holder-1", "festival-verano-2026", time.Now())

	used := confirmedTicket(42)
	used.Status = models.RUnitUsed
	dbMock.On("TicketInfoByRUID", int64(42)).Return(used, nil)

	result, err := svc.ValidateAtGate(token, "festival-verano-2026", "gate-1")
	assert.NoError(t, err)
	assert.Equal(t, tickets.GateAlreadyUsed, result.Status)
	dbMock.AssertNotCalled(t, "MarkUsed", mock.Anything)
}

func TestResetTicket(t *testing.T) {
	dbMock := new(MockTicketDB)
	svc, _ := newGateService(dbMock)

	used := confirmedTicket(42)
	used.Status = models.RUnitUsed
	dbMock.On("TicketInfoByRUID", int64(42)).Return(used, nil)
	dbMock.On("ResetUsed", int64(42)).Return(true, nil)
	dbMock.On("InsertHistory", mock.AnythingOfType("*models.RUnitStatusHistory")).Return(nil)

	err := svc.ResetTicket(42, "supervisor-1", "scanned at wrong gate")
	assert.NoError(t, err)
	dbMock.AssertExpectations(t)
}

func TestResetTicketNotUsed(t *testing.T) {
	dbMock := new(MockTicketDB)
	svc, _ := newGateService(dbMock)

	dbMock.On("TicketInfoByRUID", int64(42)).Return(confirmedTicket(42), nil)
	dbMock.On("ResetUsed", int64(42)).Return(false, nil)

	err := svc.ResetTicket(42, "supervisor-1", "mistake")
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
}
