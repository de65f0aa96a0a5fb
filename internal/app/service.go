package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"clientportal/api/internal/aggregate"
	"clientportal/api/internal/auth"
	"clientportal/api/internal/authpw"
	"clientportal/api/internal/config"
	"clientportal/api/internal/rbac"
	"clientportal/api/internal/session"
	"clientportal/api/internal/store"
)

// Session is the signed-in team member behind a request.
type Session struct {
	UserID    string
	UserName  string
	Role      string
	AccountID string
	JTI       string
	ExpiresAt time.Time
}

type dataStore interface {
	aggregate.Source
	GetPortal(context.Context, string) (store.Portal, error)
	UpdatePortalInfo(context.Context, string, *string, *string) error
	GetAccount(context.Context, string) (store.Account, error)
	GetProfile(context.Context, string) (store.Profile, error)
	GetPortalConfig(context.Context, string) (*store.PortalConfig, error)
	GetAccountConfig(context.Context, string) (*store.AccountConfig, error)
	UpsertPortalConfig(context.Context, store.PortalConfigWrite, int64) (bool, error)
	UpsertAccountConfig(context.Context, store.AccountConfigWrite, int64) (bool, error)
	Ping(ctx context.Context) error
}

type accountCache interface {
	LookupAccount(context.Context, string) (session.AccountData, error)
	SaveAccount(context.Context, string, session.AccountData) error
	Ping(context.Context) error
}

type passwordService interface {
	HashPassword(string) (string, error)
	Verify(context.Context, string, string) error
}

type Service struct {
	cfg        config.Config
	store      dataStore
	accounts   accountCache
	passwords  passwordService
	presigner  aggregate.Presigner
	aggregator *aggregate.Aggregator
	logger     *zap.Logger
}

type Option func(*Service)

// WithAccountCache caches session account resolution. A nil cache is ignored.
func WithAccountCache(cache *session.RedisStore) Option {
	return func(s *Service) {
		if cache != nil {
			s.accounts = cache
		}
	}
}

// WithPresigner attaches download links to file assets.
func WithPresigner(p aggregate.Presigner) Option {
	return func(s *Service) {
		s.presigner = p
	}
}

func New(cfg config.Config, dataStore *store.PostgresStore, logger *zap.Logger, opts ...Option) *Service {
	return newService(cfg, dataStore, logger, opts...)
}

func newService(cfg config.Config, ds dataStore, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		cfg:       cfg,
		store:     ds,
		passwords: authpw.NewService(ds),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	aggregateOpts := []aggregate.Option{aggregate.WithMessageLimit(cfg.MessageLimit)}
	if s.presigner != nil {
		aggregateOpts = append(aggregateOpts, aggregate.WithPresigner(s.presigner))
	}
	s.aggregator = aggregate.New(ds, logger.Named("aggregate"), aggregateOpts...)
	return s
}

func (s *Service) SessionFromToken(_ context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	sess := Session{
		UserID:    claims.Subject,
		UserName:  claims.Name,
		Role:      claims.Role,
		AccountID: claims.AccountID,
		JTI:       claims.ID,
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// resolveAccount finds the account the signed-in user belongs to: the token
// claim first, then the cache, then the user's profile.
func (s *Service) resolveAccount(ctx context.Context, sess *Session) (string, error) {
	if sess == nil || sess.UserID == "" {
		return "", unauthorizedError()
	}
	if sess.AccountID != "" {
		return sess.AccountID, nil
	}

	if s.accounts != nil {
		data, err := s.accounts.LookupAccount(ctx, sess.UserID)
		switch {
		case err == nil:
			sess.AccountID = data.AccountID
			if sess.Role == "" {
				sess.Role = data.Role
			}
			return sess.AccountID, nil
		case !errors.Is(err, session.ErrNotFound):
			s.logger.Warn("account cache lookup failed", zap.String("user_id", sess.UserID), zap.Error(err))
		}
	}

	profile, err := s.store.GetProfile(ctx, sess.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", unauthorizedError()
	}
	if err != nil {
		return "", fmt.Errorf("resolve account: %w", err)
	}
	if profile.AccountID == "" {
		return "", unauthorizedError()
	}

	sess.AccountID = profile.AccountID
	if sess.Role == "" {
		sess.Role = profile.Role
	}
	if s.accounts != nil {
		data := session.AccountData{AccountID: profile.AccountID, Role: profile.Role}
		if err := s.accounts.SaveAccount(ctx, sess.UserID, data); err != nil {
			s.logger.Warn("account cache save failed", zap.String("user_id", sess.UserID), zap.Error(err))
		}
	}
	return sess.AccountID, nil
}

// VerifyPortalPassword checks a visitor's password against the portal's
// stored hash. Unprotected portals accept any password.
func (s *Service) VerifyPortalPassword(ctx context.Context, rawID, password string) error {
	ref, err := ParsePortalRef(rawID)
	if err != nil {
		return err
	}
	specific, ok := ref.(SpecificRef)
	if !ok {
		return validationError("portalId", "The global template has no password")
	}
	if _, err := s.loadPortal(ctx, specific.PortalID); err != nil {
		return err
	}
	if err := s.passwords.Verify(ctx, specific.PortalID, password); err != nil {
		switch {
		case errors.Is(err, authpw.ErrWrongPassword):
			return domainError(http.StatusUnauthorized, "INVALID_PASSWORD", "Incorrect password", nil)
		case errors.Is(err, authpw.ErrPasswordNotSet):
			return domainError(http.StatusBadRequest, "PASSWORD_NOT_SET", "Password not set up", nil)
		}
		return fmt.Errorf("verify portal password: %w", err)
	}
	return nil
}

// Checks pings every backing service and reports each one's status.
func (s *Service) Checks(ctx context.Context) (map[string]any, bool) {
	ready := true
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.store.Ping(ctx); err != nil {
		ready = false
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if s.accounts != nil {
		checks["redis"] = map[string]any{"status": "ok"}
		if err := s.accounts.Ping(ctx); err != nil {
			ready = false
			checks["redis"] = map[string]any{"status": "error", "error": err.Error()}
		}
	}
	return checks, ready
}
