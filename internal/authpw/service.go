// Package authpw protects portals with an optional shared password.
package authpw

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"clientportal/api/internal/store"
)

const MinPasswordLength = 4

var (
	ErrPasswordTooShort = errors.New("portal password is too short")
	ErrWrongPassword    = errors.New("incorrect portal password")
	ErrPasswordNotSet   = errors.New("portal is protected but has no password")
)

// ConfigStore is the storage the service reads portal passwords from.
type ConfigStore interface {
	GetPortalConfig(ctx context.Context, portalID string) (*store.PortalConfig, error)
}

// Service verifies portal passwords.
type Service struct {
	store ConfigStore
	cost  int
}

func NewService(store ConfigStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

// HashPassword hashes a new portal password. An empty password returns an
// empty hash, which clears protection.
func (s *Service) HashPassword(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password opens the portal. Portals without
// protection accept any password; protected portals without a stored hash
// accept none.
func (s *Service) Verify(ctx context.Context, portalID, password string) error {
	cfg, err := s.store.GetPortalConfig(ctx, portalID)
	if err != nil {
		return err
	}
	if cfg == nil || !cfg.PasswordProtected {
		return nil
	}
	if cfg.PortalPasswordHash == "" {
		return ErrPasswordNotSet
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cfg.PortalPasswordHash), []byte(password)); err != nil {
		return ErrWrongPassword
	}
	return nil
}
