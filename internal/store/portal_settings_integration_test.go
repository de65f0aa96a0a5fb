package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func seedPortalFixture(ctx context.Context, t *testing.T, s *PostgresStore) {
	t.Helper()
	if err := resetPublicSchema(ctx, s.DB()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if _, err := ApplyMigrations(ctx, s.DB(), filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	statements := []string{
		`INSERT INTO accounts (id, company_name, address) VALUES ('acct-1', 'Northwind Studio', '1 Harbor Way')`,
		`INSERT INTO profiles (user_id, account_id, first_name, last_name, role) VALUES ('user-1', 'acct-1', 'Rina', 'Okafor', 'owner')`,
		`INSERT INTO clients (id, account_id, first_name, last_name, email, company) VALUES ('client-1', 'acct-1', 'Dana', 'Reyes', 'dana@example.com', 'Reyes Co')`,
		`INSERT INTO portals (id, account_id, client_id, name) VALUES ('portal-1', 'acct-1', 'client-1', 'Reyes Portal')`,
		`INSERT INTO projects (id, account_id, client_id, name, created_at) VALUES ('proj-1', 'acct-1', 'client-1', 'Website', NOW() - INTERVAL '2 days')`,
		`INSERT INTO projects (id, account_id, client_id, name, created_at) VALUES ('proj-2', 'acct-1', 'client-1', 'Rebrand', NOW())`,
		`INSERT INTO bookings (id, account_id, client_id, project_id, title, scheduled_date, start_time) VALUES ('book-1', 'acct-1', 'client-1', 'proj-1', 'Kickoff', '2026-03-02', '09:30')`,
	}
	for _, statement := range statements {
		if _, err := s.DB().ExecContext(ctx, statement); err != nil {
			t.Fatalf("seed %q: %v", statement, err)
		}
	}
}

func TestPortalConfigVersionedUpsert(t *testing.T) {
	db := openTestDatabase(t)
	s := NewPostgresStore(db)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	seedPortalFixture(ctx, t, s)

	existing, err := s.GetPortalConfig(ctx, "portal-1")
	if err != nil {
		t.Fatalf("GetPortalConfig() error = %v", err)
	}
	if existing != nil {
		t.Fatalf("expected no stored config, got %+v", existing)
	}

	brand := "#222222"
	write := PortalConfigWrite{
		PortalID: "portal-1",
		Settings: json.RawMessage(`{"brandColor":"#222222"}`),
		Legacy:   LegacyColumns{BrandColor: &brand},
	}
	ok, err := s.UpsertPortalConfig(ctx, write, 0)
	if err != nil || !ok {
		t.Fatalf("UpsertPortalConfig(insert) = %v, %v", ok, err)
	}

	stored, err := s.GetPortalConfig(ctx, "portal-1")
	if err != nil || stored == nil {
		t.Fatalf("GetPortalConfig() = %+v, %v", stored, err)
	}
	if stored.Version != 1 {
		t.Fatalf("Version = %d, want 1", stored.Version)
	}

	ok, err = s.UpsertPortalConfig(ctx, write, 0)
	if err != nil {
		t.Fatalf("UpsertPortalConfig(stale) error = %v", err)
	}
	if ok {
		t.Fatal("expected stale version to be rejected")
	}

	write.Settings = json.RawMessage(`{"brandColor":"#333333"}`)
	ok, err = s.UpsertPortalConfig(ctx, write, stored.Version)
	if err != nil || !ok {
		t.Fatalf("UpsertPortalConfig(update) = %v, %v", ok, err)
	}
	stored, _ = s.GetPortalConfig(ctx, "portal-1")
	if stored.Version != 2 {
		t.Fatalf("Version = %d, want 2", stored.Version)
	}
	var doc map[string]any
	if err := json.Unmarshal(stored.Settings, &doc); err != nil || doc["brandColor"] != "#333333" {
		t.Fatalf("stored settings = %s, %v", stored.Settings, err)
	}
}

func TestAccountConfigVersionedUpsert(t *testing.T) {
	db := openTestDatabase(t)
	s := NewPostgresStore(db)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	seedPortalFixture(ctx, t, s)

	ok, err := s.UpsertAccountConfig(ctx, AccountConfigWrite{
		AccountID: "acct-1",
		Settings:  json.RawMessage(`{"portalFont":"Lato"}`),
		Modules:   json.RawMessage(`{"files":false}`),
	}, 0)
	if err != nil || !ok {
		t.Fatalf("UpsertAccountConfig() = %v, %v", ok, err)
	}
	cfg, err := s.GetAccountConfig(ctx, "acct-1")
	if err != nil || cfg == nil {
		t.Fatalf("GetAccountConfig() = %+v, %v", cfg, err)
	}
	if cfg.Version != 1 || string(cfg.Modules) != `{"files": false}` {
		t.Fatalf("unexpected account config: version=%d modules=%s", cfg.Version, cfg.Modules)
	}
}

func TestEntityQueriesScopeAndOrder(t *testing.T) {
	db := openTestDatabase(t)
	s := NewPostgresStore(db)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	seedPortalFixture(ctx, t, s)

	portal, err := s.GetPortal(ctx, "portal-1")
	if err != nil {
		t.Fatalf("GetPortal() error = %v", err)
	}
	if portal.Client.Company != "Reyes Co" || portal.ClientID != "client-1" {
		t.Fatalf("unexpected portal: %+v", portal)
	}

	projects, err := s.ListProjects(ctx, "client-1", "acct-1")
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if len(projects) != 2 || projects[0].ID != "proj-2" {
		t.Fatalf("expected newest project first, got %+v", projects)
	}

	bookings, err := s.ListBookingsByProjects(ctx, []string{"proj-1", "proj-2"})
	if err != nil {
		t.Fatalf("ListBookingsByProjects() error = %v", err)
	}
	if len(bookings) != 1 || bookings[0].StartTime != "09:30" || bookings[0].ScheduledDate != "2026-03-02" {
		t.Fatalf("unexpected bookings: %+v", bookings)
	}

	for _, statement := range []string{
		`INSERT INTO messages (id, account_id, project_id, content, sender_type, created_at) VALUES ('msg-1', 'acct-1', 'proj-1', 'first', 'client', NOW() - INTERVAL '3 hours')`,
		`INSERT INTO messages (id, account_id, project_id, content, sender_type, created_at) VALUES ('msg-2', 'acct-1', 'proj-2', 'second', 'client', NOW() - INTERVAL '2 hours')`,
		`INSERT INTO messages (id, account_id, project_id, content, sender_type, created_at) VALUES ('msg-3', 'acct-1', 'proj-1', 'third', 'account_user', NOW() - INTERVAL '1 hour')`,
	} {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			t.Fatalf("seed %q: %v", statement, err)
		}
	}
	messages, err := s.ListMessages(ctx, []string{"proj-1", "proj-2"}, "acct-1", 2)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(messages) != 2 || messages[0].ID != "msg-3" || messages[1].ID != "msg-2" {
		t.Fatalf("expected the two newest messages newest first, got %+v", messages)
	}

	names, err := s.ListProfileNames(ctx, []string{"user-1", "missing"})
	if err != nil {
		t.Fatalf("ListProfileNames() error = %v", err)
	}
	if names["user-1"] != "Rina Okafor" || len(names) != 1 {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestMessageSenderTypeConstraint(t *testing.T) {
	db := openTestDatabase(t)
	s := NewPostgresStore(db)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	seedPortalFixture(ctx, t, s)

	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (id, account_id, project_id, content, sender_type)
		VALUES ('msg-x', 'acct-1', 'proj-1', 'hello', 'robot')
	`)
	if err == nil {
		t.Fatal("expected invalid sender_type to be rejected")
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23514" {
		t.Fatalf("expected check_violation (23514), got %v", err)
	}
}
