package auth

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-hq/meridian/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials. Failures are
// indistinguishable to the caller: unknown email, disabled account and wrong
// password all return the same error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	account, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return Account{}, shared.ErrInvalidCredentials
	}
	if !account.CanLogin() {
		return Account{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Account{}, shared.ErrInvalidCredentials
	}
	return account, nil
}

// Verify confirms a session's user still exists, may log in and carries the
// current token version. A bumped token version invalidates every session
// issued before the bump.
func (s *Service) Verify(ctx context.Context, userID, tokenVersion int64) (Account, error) {
	account, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return Account{}, shared.ErrUnauthenticated
	}
	if !account.CanLogin() {
		return Account{}, shared.ErrUnauthenticated
	}
	if account.TokenVersion != tokenVersion {
		return Account{}, shared.ErrUnauthenticated
	}
	return account, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, userAgent string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, userAgent)
}

// RemoveSession marks a session record inactive.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeactivateSession(ctx, id)
}

// SweepExpiredSessions drops session rows past their expiry.
func (s *Service) SweepExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, time.Now().UTC())
}
