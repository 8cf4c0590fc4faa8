package payment

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"ms-reservations/internal/config"
	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/payment/db"
)

type DBLayer interface {
	InsertPayment(p *models.Payment) error
	PaymentByReference(reference string) (*models.Payment, error)
	PaymentsByReservation(reservationID string) ([]models.Payment, error)
	SettlePayment(reference, status string) (bool, error)
	ReservationTotal(reservationID string) (float64, string, error)
}

var _ DBLayer = (*db.DB)(nil)

// Confirmer is the reservation manager's confirm operation; the webhook
// drives it when the gateway reports success.
type Confirmer interface {
	ConfirmFromGateway(reservationID, paymentRef string) error
}

// Gateway is the thin Stripe surface the service calls; tests inject a
// fake so no network is involved.
type Gateway interface {
	CreateIntent(reservationID string, amountCents int64, currency string) (*stripe.PaymentIntent, error)
}

// StripeGateway talks to the real Stripe API.
type StripeGateway struct {
	Client *client.API
	Logger *logger.Logger
}

func NewStripeGateway(secretKey string, log *logger.Logger) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, errs.Gateway("stripe secret key is not configured", nil)
	}
	return &StripeGateway{Client: client.New(secretKey, nil), Logger: log}, nil
}

func (g *StripeGateway) CreateIntent(reservationID string, amountCents int64, currency string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("reservation_id", reservationID)
	pi, err := g.Client.PaymentIntents.New(params)
	if err != nil {
		g.Logger.Error("STRIPE", fmt.Sprintf("payment intent for %s failed: %v", reservationID, err))
		return nil, errs.Gateway("payment gateway rejected the request", err)
	}
	return pi, nil
}

type Service struct {
	DB            DBLayer
	Gateway       Gateway
	Confirm       Confirmer
	Logger        *logger.Logger
	WebhookSecret string
}

func NewService(dbLayer DBLayer, gateway Gateway, confirmer Confirmer, cfg config.StripeConfig, log *logger.Logger) *Service {
	return &Service{
		DB:            dbLayer,
		Gateway:       gateway,
		Confirm:       confirmer,
		Logger:        log,
		WebhookSecret: cfg.WebhookSecret,
	}
}

// StartResult hands the client what it needs to collect the card.
type StartResult struct {
	PaymentID    string  `json:"payment_id"`
	Reference    string  `json:"reference"`
	ClientSecret string  `json:"client_secret"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
}

// StartPayment opens a gateway intent for the reservation's recomputed
// total and records the attempt as pending.
func (s *Service) StartPayment(reservationID string) (*StartResult, error) {
	amount, currency, err := s.DB.ReservationTotal(reservationID)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, errs.InvalidInput("reservation has nothing to pay")
	}

	amountCents := int64(math.Round(amount * 100))
	intent, err := s.Gateway.CreateIntent(reservationID, amountCents, currency)
	if err != nil {
		return nil, err
	}

	p := &models.Payment{
		ID:            uuid.NewString(),
		ReservationID: reservationID,
		Reference:     intent.ID,
		Amount:        amount,
		Currency:      currency,
		Status:        models.PaymentPending,
		CreatedAt:     time.Now(),
	}
	if err := s.DB.InsertPayment(p); err != nil {
		return nil, err
	}

	s.Logger.Info("PAYMENT", fmt.Sprintf("intent %s opened for reservation %s (%.2f %s)",
		intent.ID, reservationID, amount, currency))
	return &StartResult{
		PaymentID:    p.ID,
		Reference:    intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       amount,
		Currency:     currency,
	}, nil
}

// HandleWebhook verifies the gateway's signature and settles the
// payment. Succeeded intents confirm the reservation; the confirm path
// is idempotent, so redelivered events are safe.
func (s *Service) HandleWebhook(r *http.Request) error {
	if s.WebhookSecret == "" {
		return errs.Gateway("stripe webhook secret is not configured", nil)
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return errs.InvalidInput("unreadable webhook payload")
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), s.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		s.Logger.LogSecurity("WEBHOOK", "signature verification failed: "+err.Error())
		return errs.Unauthorized("webhook signature verification failed")
	}

	switch event.Type {
	case "payment_intent.succeeded":
		return s.settle(event.Data.Raw, models.PaymentApproved)
	case "payment_intent.payment_failed":
		return s.settle(event.Data.Raw, models.PaymentDeclined)
	default:
		s.Logger.Info("WEBHOOK", "ignoring event type "+string(event.Type))
		return nil
	}
}

func (s *Service) settle(raw json.RawMessage, status string) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return errs.InvalidInput("unreadable payment intent payload")
	}
	reservationID := intent.Metadata["reservation_id"]
	if reservationID == "" {
		return errs.InvalidInput("payment intent carries no reservation_id")
	}

	settled, err := s.DB.SettlePayment(intent.ID, status)
	if err != nil {
		return err
	}
	if !settled {
		s.Logger.Info("WEBHOOK", fmt.Sprintf("intent %s already settled, redelivery ignored", intent.ID))
	}

	if status != models.PaymentApproved {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("intent %s declined for reservation %s", intent.ID, reservationID))
		return nil
	}

	// The hold is confirmed even when the sweep got there first; the
	// manager recovers it as long as the seats are still held.
	if err := s.Confirm.ConfirmFromGateway(reservationID, intent.ID); err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("confirm after payment %s failed: %v", intent.ID, err))
		return err
	}
	s.Logger.Info("PAYMENT", fmt.Sprintf("reservation %s confirmed by intent %s", reservationID, intent.ID))
	return nil
}

func (s *Service) PaymentsFor(reservationID string) ([]models.Payment, error) {
	return s.DB.PaymentsByReservation(reservationID)
}
