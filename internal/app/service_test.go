package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"clientportal/api/internal/auth"
	"clientportal/api/internal/config"
	"clientportal/api/internal/session"
	"clientportal/api/internal/store"
	"clientportal/api/internal/util"
)

const testSecret = "portal-test-secret"

type infoUpdate struct {
	portalID    string
	name        *string
	description *string
}

// fakeStore keeps portal configuration in memory and serves entity lists from
// its fields unless a function override is set.
type fakeStore struct {
	mu sync.Mutex

	portals        map[string]store.Portal
	profiles       map[string]store.Profile
	accounts       map[string]store.Account
	portalConfigs  map[string]store.PortalConfig
	accountConfigs map[string]store.AccountConfig

	projects []store.Project
	invoices []store.Invoice
	members  []store.Member

	infoUpdates    []infoUpdate
	portalUpserts  int
	accountUpserts int

	listProjectsFn       func(context.Context, string, string) ([]store.Project, error)
	listInvoicesFn       func(context.Context, string, string) ([]store.Invoice, error)
	listActiveMembersFn  func(context.Context, string, string) ([]store.Member, error)
	upsertPortalConfigFn func(context.Context, store.PortalConfigWrite, int64) (bool, error)
	pingFn               func(context.Context) error
}

func newFakeStore() *fakeStore {
	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return &fakeStore{
		portals: map[string]store.Portal{
			"portal-1": {
				ID:        "portal-1",
				AccountID: "acct-1",
				ClientID:  "client-1",
				Name:      "Reyes Portal",
				Status:    "active",
				URL:       "reyes",
				Client: store.Client{
					ID:        "client-1",
					AccountID: "acct-1",
					FirstName: "Dana",
					LastName:  "Reyes",
					Email:     "dana@example.com",
					Company:   "Reyes Co",
				},
			},
		},
		profiles: map[string]store.Profile{
			"user-1": {UserID: "user-1", AccountID: "acct-1", FirstName: "Rina", LastName: "Okafor", Role: "owner"},
			"user-2": {UserID: "user-2", AccountID: "acct-2", Role: "owner"},
			"user-3": {UserID: "user-3", AccountID: "acct-1", Role: "viewer"},
		},
		accounts: map[string]store.Account{
			"acct-1": {ID: "acct-1", CompanyName: "Northwind Studio"},
		},
		portalConfigs:  map[string]store.PortalConfig{},
		accountConfigs: map[string]store.AccountConfig{},
		projects: []store.Project{
			{ID: "proj-2", Name: "Rebrand", Status: "active", CreatedAt: created.Add(24 * time.Hour)},
			{ID: "proj-1", Name: "Website", Status: "active", CreatedAt: created},
		},
		invoices: []store.Invoice{{ID: "inv-1", Title: "Deposit"}},
		members:  []store.Member{{Email: "dana@example.com", Name: "Dana Reyes", Role: "owner", IsActive: true}},
	}
}

func (f *fakeStore) setPortalSettings(portalID, settingsJSON string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg := f.portalConfigs[portalID]
	cfg.PortalID = portalID
	cfg.Settings = json.RawMessage(settingsJSON)
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	f.portalConfigs[portalID] = cfg
}

func (f *fakeStore) setGlobalSettings(accountID, settingsJSON, modulesJSON string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountConfigs[accountID] = store.AccountConfig{
		AccountID: accountID,
		Settings:  json.RawMessage(settingsJSON),
		Modules:   json.RawMessage(modulesJSON),
		Version:   1,
	}
}

func (f *fakeStore) storedPortalSettings(t *testing.T, portalID string) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var doc map[string]any
	if err := json.Unmarshal(f.portalConfigs[portalID].Settings, &doc); err != nil {
		t.Fatalf("stored settings for %s: %v", portalID, err)
	}
	return doc
}

func (f *fakeStore) GetPortal(_ context.Context, portalID string) (store.Portal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	portal, ok := f.portals[portalID]
	if !ok {
		return store.Portal{}, sql.ErrNoRows
	}
	return portal, nil
}

func (f *fakeStore) UpdatePortalInfo(_ context.Context, portalID string, name, description *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	portal, ok := f.portals[portalID]
	if !ok {
		return sql.ErrNoRows
	}
	if name != nil {
		portal.Name = *name
	}
	if description != nil {
		portal.Description = *description
	}
	f.portals[portalID] = portal
	f.infoUpdates = append(f.infoUpdates, infoUpdate{portalID: portalID, name: name, description: description})
	return nil
}

func (f *fakeStore) GetAccount(_ context.Context, accountID string) (store.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[accountID]
	if !ok {
		return store.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (f *fakeStore) GetProfile(_ context.Context, userID string) (store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile, ok := f.profiles[userID]
	if !ok {
		return store.Profile{}, sql.ErrNoRows
	}
	return profile, nil
}

func (f *fakeStore) GetPortalConfig(_ context.Context, portalID string) (*store.PortalConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.portalConfigs[portalID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (f *fakeStore) GetAccountConfig(_ context.Context, accountID string) (*store.AccountConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.accountConfigs[accountID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (f *fakeStore) UpsertPortalConfig(ctx context.Context, write store.PortalConfigWrite, expectedVersion int64) (bool, error) {
	f.mu.Lock()
	f.portalUpserts++
	f.mu.Unlock()
	if f.upsertPortalConfigFn != nil {
		return f.upsertPortalConfigFn(ctx, write, expectedVersion)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	current := f.portalConfigs[write.PortalID]
	if current.Version != expectedVersion {
		return false, nil
	}
	f.portalConfigs[write.PortalID] = store.PortalConfig{
		PortalID:           write.PortalID,
		Settings:           write.Settings,
		Modules:            write.Modules,
		ProjectVisibility:  write.ProjectVisibility,
		PasswordProtected:  write.PasswordProtected,
		PortalPasswordHash: write.PortalPasswordHash,
		DefaultProjectID:   write.Legacy.DefaultProjectID,
		Version:            current.Version + 1,
	}
	return true, nil
}

func (f *fakeStore) UpsertAccountConfig(_ context.Context, write store.AccountConfigWrite, expectedVersion int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountUpserts++
	current := f.accountConfigs[write.AccountID]
	if current.Version != expectedVersion {
		return false, nil
	}
	f.accountConfigs[write.AccountID] = store.AccountConfig{
		AccountID: write.AccountID,
		Settings:  write.Settings,
		Modules:   write.Modules,
		Version:   current.Version + 1,
	}
	return true, nil
}

func (f *fakeStore) ListProjects(ctx context.Context, clientID, accountID string) ([]store.Project, error) {
	if f.listProjectsFn != nil {
		return f.listProjectsFn(ctx, clientID, accountID)
	}
	return f.projects, nil
}

func (f *fakeStore) ListInvoices(ctx context.Context, clientID, accountID string) ([]store.Invoice, error) {
	if f.listInvoicesFn != nil {
		return f.listInvoicesFn(ctx, clientID, accountID)
	}
	return f.invoices, nil
}

func (f *fakeStore) ListFilesByClient(context.Context, string, string) ([]store.FileAsset, error) {
	return nil, nil
}

func (f *fakeStore) ListFilesByProjects(context.Context, []string, string) ([]store.FileAsset, error) {
	return nil, nil
}

func (f *fakeStore) ListMilestones(context.Context, []string) ([]store.Milestone, error) {
	return nil, nil
}

func (f *fakeStore) ListTasks(context.Context, []string) ([]store.Task, error) {
	return nil, nil
}

func (f *fakeStore) ListBookingsByProjects(context.Context, []string) ([]store.Booking, error) {
	return nil, nil
}

func (f *fakeStore) ListBookingsByClient(context.Context, string) ([]store.Booking, error) {
	return nil, nil
}

func (f *fakeStore) ListContracts(context.Context, string, string) ([]store.Contract, error) {
	return nil, nil
}

func (f *fakeStore) ListPublishedForms(context.Context, string, string) ([]store.Form, error) {
	return nil, nil
}

func (f *fakeStore) ListCompletedSubmissions(context.Context, []string) ([]store.FormSubmission, error) {
	return nil, nil
}

func (f *fakeStore) ListMessages(context.Context, []string, string, int) ([]store.Message, error) {
	return nil, nil
}

func (f *fakeStore) ListProfileNames(context.Context, []string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (f *fakeStore) ListActiveMembers(ctx context.Context, clientID, accountID string) ([]store.Member, error) {
	if f.listActiveMembersFn != nil {
		return f.listActiveMembersFn(ctx, clientID, accountID)
	}
	return f.members, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func newTestService(fs *fakeStore, opts ...Option) *Service {
	cfg := config.Config{JWTSecret: testSecret, MessageLimit: 50, WriteRetries: 3}
	return newService(cfg, fs, zap.NewNop(), opts...)
}

func testToken(t *testing.T, userID, role, accountID string) string {
	t.Helper()
	claims := auth.NewClaims(userID, "Rina Okafor", role, accountID, util.NewID("jti"), time.Hour)
	token, err := auth.IssueToken([]byte(testSecret), claims)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

func ownerSession() *Session {
	return &Session{UserID: "user-1", Role: "owner", AccountID: "acct-1"}
}

func expectDomainError(t *testing.T, err error, status int, code string) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError %s, got %v", code, err)
	}
	if domainErr.Status != status || domainErr.Code != code {
		t.Fatalf("expected %d %s, got %d %s", status, code, domainErr.Status, domainErr.Code)
	}
	return domainErr
}

func TestSessionFromToken(t *testing.T) {
	svc := newTestService(newFakeStore())
	sess, err := svc.SessionFromToken(context.Background(), testToken(t, "user-1", "admin", "acct-1"))
	if err != nil {
		t.Fatalf("SessionFromToken() error = %v", err)
	}
	if sess.UserID != "user-1" || sess.Role != "admin" || sess.AccountID != "acct-1" || sess.JTI == "" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if _, err := svc.SessionFromToken(context.Background(), "not-a-token"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestResolveAccountFallsBackToProfile(t *testing.T) {
	svc := newTestService(newFakeStore())
	sess := &Session{UserID: "user-1"}
	accountID, err := svc.resolveAccount(context.Background(), sess)
	if err != nil {
		t.Fatalf("resolveAccount() error = %v", err)
	}
	if accountID != "acct-1" || sess.Role != "owner" {
		t.Fatalf("accountID=%q role=%q, want acct-1 owner", accountID, sess.Role)
	}

	_, err = svc.resolveAccount(context.Background(), &Session{UserID: "ghost"})
	expectDomainError(t, err, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestResolveAccountUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := session.NewRedisStoreWithClient(client, time.Minute)

	fs := newFakeStore()
	svc := newTestService(fs, WithAccountCache(cache))
	if _, err := svc.resolveAccount(context.Background(), &Session{UserID: "user-1"}); err != nil {
		t.Fatalf("resolveAccount() error = %v", err)
	}
	cached, err := cache.LookupAccount(context.Background(), "user-1")
	if err != nil || cached.AccountID != "acct-1" {
		t.Fatalf("expected cached account, got %+v, %v", cached, err)
	}

	// The cache answers once the profile is gone.
	delete(fs.profiles, "user-1")
	accountID, err := svc.resolveAccount(context.Background(), &Session{UserID: "user-1"})
	if err != nil || accountID != "acct-1" {
		t.Fatalf("resolveAccount() = %q, %v", accountID, err)
	}
}

func TestChecksReportsEachBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fs := newFakeStore()
	fs.pingFn = func(context.Context) error { return errors.New("connection refused") }
	svc := newTestService(fs, WithAccountCache(session.NewRedisStoreWithClient(client, time.Minute)))

	checks, ready := svc.Checks(context.Background())
	if ready {
		t.Fatal("expected not ready with database down")
	}
	if status := checks["database"].(map[string]any)["status"]; status != "error" {
		t.Fatalf("database status = %v", status)
	}
	if status := checks["redis"].(map[string]any)["status"]; status != "ok" {
		t.Fatalf("redis status = %v", status)
	}
}

func TestVerifyPortalPassword(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	hash, err := svc.passwords.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	fs.portalConfigs["portal-1"] = store.PortalConfig{PortalID: "portal-1", PasswordProtected: true, PortalPasswordHash: hash, Version: 1}

	ctx := context.Background()
	if err := svc.VerifyPortalPassword(ctx, "portal-1", "hunter22"); err != nil {
		t.Fatalf("VerifyPortalPassword(correct) error = %v", err)
	}
	expectDomainError(t, svc.VerifyPortalPassword(ctx, "portal-1", "wrong"), http.StatusUnauthorized, "INVALID_PASSWORD")
	expectDomainError(t, svc.VerifyPortalPassword(ctx, "missing", "x"), http.StatusNotFound, "NOT_FOUND")
	expectDomainError(t, svc.VerifyPortalPassword(ctx, "global", "x"), http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	fs.portalConfigs["portal-1"] = store.PortalConfig{PortalID: "portal-1", PasswordProtected: true, Version: 2}
	expectDomainError(t, svc.VerifyPortalPassword(ctx, "portal-1", "any-guess"), http.StatusBadRequest, "PASSWORD_NOT_SET")
}
