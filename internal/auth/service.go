package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-reservations/internal/errs"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
)

type DBLayer interface {
	ProfileByEmail(email string) (*models.Profile, error)
	InsertProfile(p *models.Profile) error
	InsertSession(s *models.Session) error
	DeleteSession(id string) error
	PurgeExpired(now time.Time) (int64, error)
}

type Service struct {
	DB     DBLayer
	Secret string
	TTL    time.Duration
	Logger *logger.Logger
}

func NewService(dbLayer DBLayer, secret string, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{DB: dbLayer, Secret: secret, TTL: ttl, Logger: log}
}

type SessionResult struct {
	Token     string          `json:"token"`
	Profile   *models.Profile `json:"profile"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Login gets or creates the profile for an email and opens a session.
// There is no password step; callers sit behind the venue's identity
// proxy and arrive with a verified email.
func (s *Service) Login(email, name string) (*SessionResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, errs.InvalidInput("a valid email is required")
	}

	profile, err := s.DB.ProfileByEmail(email)
	if errors.Is(err, sql.ErrNoRows) {
		profile = &models.Profile{
			ID:    uuid.New().String(),
			Email: email,
			Name:  name,
		}
		if err := s.DB.InsertProfile(profile); err != nil {
			return nil, fmt.Errorf("creating profile: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("looking up profile: %w", err)
	}

	session := &models.Session{
		ID:        uuid.New().String(),
		ProfileID: profile.ID,
		ExpiresAt: time.Now().Add(s.TTL),
	}
	if err := s.DB.InsertSession(session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	token, err := IssueSessionToken(s.Secret, session.ID, profile.ID, profile.Email, s.TTL)
	if err != nil {
		return nil, fmt.Errorf("signing session token: %w", err)
	}

	s.Logger.LogSecurity("LOGIN", fmt.Sprintf("session opened for %s", profile.ID))
	return &SessionResult{Token: token, Profile: profile, ExpiresAt: session.ExpiresAt}, nil
}

// Logout drops the session row named by the token's jti.
func (s *Service) Logout(rawToken string) error {
	claims, err := ParseSessionToken(s.Secret, rawToken)
	if err != nil {
		return errs.Unauthorized("invalid session token")
	}
	if err := s.DB.DeleteSession(claims.ID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	s.Logger.LogSecurity("LOGOUT", fmt.Sprintf("session closed for %s", claims.Subject))
	return nil
}

// PurgeSessions is the sweeper entry point for stale session cleanup.
func (s *Service) PurgeSessions() (int, error) {
	n, err := s.DB.PurgeExpired(time.Now())
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
