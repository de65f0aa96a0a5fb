package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetPortal returns the portal joined with its client. sql.ErrNoRows is
// returned unwrapped when the portal does not exist.
func (s *PostgresStore) GetPortal(ctx context.Context, portalID string) (Portal, error) {
	const query = `
		SELECT p.id, p.account_id, p.client_id, p.name, COALESCE(p.description, ''), p.status,
		       COALESCE(p.url, ''), COALESCE(p.brand_color, ''), p.created_at,
		       COALESCE(c.id, ''), COALESCE(c.first_name, ''), COALESCE(c.last_name, ''),
		       COALESCE(c.email, ''), COALESCE(c.phone, ''), COALESCE(c.company, '')
		FROM portals p
		LEFT JOIN clients c ON c.id = p.client_id
		WHERE p.id = $1
	`
	var portal Portal
	err := s.db.QueryRowContext(ctx, query, portalID).Scan(
		&portal.ID, &portal.AccountID, &portal.ClientID, &portal.Name, &portal.Description, &portal.Status,
		&portal.URL, &portal.BrandColor, &portal.CreatedAt,
		&portal.Client.ID, &portal.Client.FirstName, &portal.Client.LastName,
		&portal.Client.Email, &portal.Client.Phone, &portal.Client.Company,
	)
	if err != nil {
		return Portal{}, err
	}
	portal.Client.AccountID = portal.AccountID
	return portal, nil
}

// UpdatePortalInfo sets the portal's name and description. Nil leaves a column unchanged.
func (s *PostgresStore) UpdatePortalInfo(ctx context.Context, portalID string, name, description *string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE portals
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    updated_at = NOW()
		WHERE id = $1
	`, portalID, name, description)
	if err != nil {
		return fmt.Errorf("update portal: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update portal rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, accountID string) (Account, error) {
	var account Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(company_name, ''), COALESCE(address, ''), COALESCE(logo_url, '')
		FROM accounts WHERE id = $1
	`, accountID).Scan(&account.ID, &account.CompanyName, &account.Address, &account.LogoURL)
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var profile Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, COALESCE(account_id, ''), COALESCE(first_name, ''), COALESCE(last_name, ''), role
		FROM profiles WHERE user_id = $1
	`, userID).Scan(&profile.UserID, &profile.AccountID, &profile.FirstName, &profile.LastName, &profile.Role)
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// GetPortalConfig returns nil when the portal has no stored override document.
func (s *PostgresStore) GetPortalConfig(ctx context.Context, portalID string) (*PortalConfig, error) {
	const query = `
		SELECT portal_id, settings::text, modules::text, project_visibility::text,
		       password_protected, COALESCE(portal_password_hash, ''), default_project_id, version
		FROM portal_settings
		WHERE portal_id = $1
	`
	var (
		cfg                           PortalConfig
		settings, modules, visibility string
		defaultProject                sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, portalID).Scan(
		&cfg.PortalID, &settings, &modules, &visibility,
		&cfg.PasswordProtected, &cfg.PortalPasswordHash, &defaultProject, &cfg.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get portal settings: %w", err)
	}
	cfg.Settings = json.RawMessage(settings)
	cfg.Modules = json.RawMessage(modules)
	cfg.ProjectVisibility = json.RawMessage(visibility)
	cfg.DefaultProjectID = nullStringPtr(defaultProject)
	return &cfg, nil
}

// GetAccountConfig returns nil when the account has no stored template.
func (s *PostgresStore) GetAccountConfig(ctx context.Context, accountID string) (*AccountConfig, error) {
	var (
		cfg               AccountConfig
		settings, modules string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, settings::text, modules::text, version
		FROM global_portal_settings
		WHERE account_id = $1
	`, accountID).Scan(&cfg.AccountID, &settings, &modules, &cfg.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get global portal settings: %w", err)
	}
	cfg.Settings = json.RawMessage(settings)
	cfg.Modules = json.RawMessage(modules)
	return &cfg, nil
}

// UpsertPortalConfig replaces the portal's override document when the stored
// version still equals expectedVersion (zero meaning "no row yet"). It reports
// false when another writer got there first.
func (s *PostgresStore) UpsertPortalConfig(ctx context.Context, write PortalConfigWrite, expectedVersion int64) (bool, error) {
	const query = `
		INSERT INTO portal_settings (
			portal_id, settings, modules, project_visibility, password_protected, portal_password_hash,
			brand_color, welcome_message, logo_url, use_background_image, background_image_url, background_color,
			default_project_id, version, updated_at
		)
		VALUES ($1, $2::jsonb, $3::jsonb, $4::jsonb, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13, 1, NOW())
		ON CONFLICT (portal_id) DO UPDATE SET
			settings = EXCLUDED.settings,
			modules = EXCLUDED.modules,
			project_visibility = EXCLUDED.project_visibility,
			password_protected = EXCLUDED.password_protected,
			portal_password_hash = EXCLUDED.portal_password_hash,
			brand_color = EXCLUDED.brand_color,
			welcome_message = EXCLUDED.welcome_message,
			logo_url = EXCLUDED.logo_url,
			use_background_image = EXCLUDED.use_background_image,
			background_image_url = EXCLUDED.background_image_url,
			background_color = EXCLUDED.background_color,
			default_project_id = EXCLUDED.default_project_id,
			version = portal_settings.version + 1,
			updated_at = NOW()
		WHERE portal_settings.version = $14
	`
	legacy := write.Legacy
	result, err := s.db.ExecContext(ctx, query,
		write.PortalID, jsonText(write.Settings), jsonText(write.Modules), jsonText(write.ProjectVisibility),
		write.PasswordProtected, write.PortalPasswordHash,
		legacy.BrandColor, legacy.WelcomeMessage, legacy.LogoURL, legacy.UseBackgroundImage,
		legacy.BackgroundImageURL, legacy.BackgroundColor, legacy.DefaultProjectID,
		expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("upsert portal settings: %w", err)
	}
	return applied(result, "upsert portal settings")
}

func (s *PostgresStore) UpsertAccountConfig(ctx context.Context, write AccountConfigWrite, expectedVersion int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO global_portal_settings (account_id, settings, modules, version, updated_at)
		VALUES ($1, $2::jsonb, $3::jsonb, 1, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			settings = EXCLUDED.settings,
			modules = EXCLUDED.modules,
			version = global_portal_settings.version + 1,
			updated_at = NOW()
		WHERE global_portal_settings.version = $4
	`, write.AccountID, jsonText(write.Settings), jsonText(write.Modules), expectedVersion)
	if err != nil {
		return false, fmt.Errorf("upsert global portal settings: %w", err)
	}
	return applied(result, "upsert global portal settings")
}

func (s *PostgresStore) ListProjects(ctx context.Context, clientID, accountID string) ([]Project, error) {
	return collect(ctx, s.db, "projects", `
		SELECT id, account_id, client_id, name, COALESCE(description, ''), status, created_at
		FROM projects
		WHERE client_id = $1 AND account_id = $2
		ORDER BY created_at DESC
	`, func(rows *sql.Rows) (Project, error) {
		var item Project
		err := rows.Scan(&item.ID, &item.AccountID, &item.ClientID, &item.Name, &item.Description, &item.Status, &item.CreatedAt)
		return item, err
	}, clientID, accountID)
}

func (s *PostgresStore) ListInvoices(ctx context.Context, clientID, accountID string) ([]Invoice, error) {
	return collect(ctx, s.db, "invoices", `
		SELECT i.id, i.account_id, COALESCE(i.client_id, ''), i.project_id, COALESCE(i.invoice_number, ''),
		       COALESCE(i.title, ''), i.status, i.currency, i.total_amount::float8, i.issue_date, i.due_date,
		       i.metadata::text, i.created_at,
		       c.first_name, c.last_name, c.company, c.email, c.phone,
		       a.company_name, a.address, a.logo_url
		FROM invoices i
		LEFT JOIN clients c ON c.id = i.client_id
		LEFT JOIN accounts a ON a.id = i.account_id
		WHERE i.client_id = $1 AND i.account_id = $2
		ORDER BY i.created_at DESC
	`, func(rows *sql.Rows) (Invoice, error) {
		var (
			item                                 Invoice
			projectID                            sql.NullString
			issueDate, dueDate                   sql.NullTime
			metadata                             string
			firstName, lastName, company, email  sql.NullString
			phone, companyName, address, logoURL sql.NullString
		)
		err := rows.Scan(
			&item.ID, &item.AccountID, &item.ClientID, &projectID, &item.InvoiceNumber,
			&item.Title, &item.Status, &item.Currency, &item.TotalAmount, &issueDate, &dueDate,
			&metadata, &item.CreatedAt,
			&firstName, &lastName, &company, &email, &phone,
			&companyName, &address, &logoURL,
		)
		if err != nil {
			return Invoice{}, err
		}
		item.ProjectID = nullStringPtr(projectID)
		item.IssueDate = nullTimePtr(issueDate)
		item.DueDate = nullTimePtr(dueDate)
		item.Metadata = json.RawMessage(metadata)
		item.Client = InvoiceClient{
			FirstName: nullStringPtr(firstName),
			LastName:  nullStringPtr(lastName),
			Company:   nullStringPtr(company),
			Email:     nullStringPtr(email),
			Phone:     nullStringPtr(phone),
		}
		item.Account = InvoiceAccount{
			CompanyName: nullStringPtr(companyName),
			Address:     nullStringPtr(address),
			LogoURL:     nullStringPtr(logoURL),
		}
		return item, nil
	}, clientID, accountID)
}

const fileColumns = `
	SELECT id, account_id, client_id, project_id, name, COALESCE(original_name, ''), COALESCE(file_type, ''),
	       COALESCE(mime_type, ''), file_size, COALESCE(storage_bucket, ''), COALESCE(storage_path, ''), status, created_at
	FROM files
`

func scanFile(rows *sql.Rows) (FileAsset, error) {
	var (
		item                FileAsset
		clientID, projectID sql.NullString
	)
	err := rows.Scan(
		&item.ID, &item.AccountID, &clientID, &projectID, &item.Name, &item.OriginalName, &item.FileType,
		&item.MimeType, &item.FileSize, &item.StorageBucket, &item.StoragePath, &item.Status, &item.CreatedAt,
	)
	item.ClientID = nullStringPtr(clientID)
	item.ProjectID = nullStringPtr(projectID)
	return item, err
}

func (s *PostgresStore) ListFilesByClient(ctx context.Context, clientID, accountID string) ([]FileAsset, error) {
	return collect(ctx, s.db, "client files", fileColumns+`
		WHERE client_id = $1 AND account_id = $2 AND status = 'active'
		ORDER BY created_at DESC
	`, scanFile, clientID, accountID)
}

func (s *PostgresStore) ListFilesByProjects(ctx context.Context, projectIDs []string, accountID string) ([]FileAsset, error) {
	return collect(ctx, s.db, "project files", fileColumns+`
		WHERE project_id = ANY($1) AND account_id = $2 AND status = 'active'
		ORDER BY created_at DESC
	`, scanFile, projectIDs, accountID)
}

func (s *PostgresStore) ListMilestones(ctx context.Context, projectIDs []string) ([]Milestone, error) {
	return collect(ctx, s.db, "milestones", `
		SELECT id, project_id, title, COALESCE(description, ''), status, due_date, sort_order, created_at
		FROM project_milestones
		WHERE project_id = ANY($1)
		ORDER BY sort_order ASC, created_at ASC
	`, func(rows *sql.Rows) (Milestone, error) {
		var (
			item    Milestone
			dueDate sql.NullTime
		)
		err := rows.Scan(&item.ID, &item.ProjectID, &item.Title, &item.Description, &item.Status, &dueDate, &item.SortOrder, &item.CreatedAt)
		item.DueDate = nullTimePtr(dueDate)
		return item, err
	}, projectIDs)
}

func (s *PostgresStore) ListTasks(ctx context.Context, projectIDs []string) ([]Task, error) {
	return collect(ctx, s.db, "tasks", `
		SELECT id, project_id, milestone_id, title, COALESCE(description, ''), status, priority, due_date, sort_order, created_at
		FROM tasks
		WHERE project_id = ANY($1)
		ORDER BY sort_order ASC, created_at ASC
	`, func(rows *sql.Rows) (Task, error) {
		var (
			item        Task
			milestoneID sql.NullString
			dueDate     sql.NullTime
		)
		err := rows.Scan(&item.ID, &item.ProjectID, &milestoneID, &item.Title, &item.Description, &item.Status, &item.Priority, &dueDate, &item.SortOrder, &item.CreatedAt)
		item.MilestoneID = nullStringPtr(milestoneID)
		item.DueDate = nullTimePtr(dueDate)
		return item, err
	}, projectIDs)
}

const bookingColumns = `
	SELECT id, account_id, client_id, project_id, title, COALESCE(service_name, ''), status,
	       scheduled_date::text, to_char(start_time, 'HH24:MI'), COALESCE(to_char(end_time, 'HH24:MI'), ''), created_at
	FROM bookings
`

func scanBooking(rows *sql.Rows) (Booking, error) {
	var (
		item                Booking
		clientID, projectID sql.NullString
	)
	err := rows.Scan(
		&item.ID, &item.AccountID, &clientID, &projectID, &item.Title, &item.ServiceName, &item.Status,
		&item.ScheduledDate, &item.StartTime, &item.EndTime, &item.CreatedAt,
	)
	item.ClientID = nullStringPtr(clientID)
	item.ProjectID = nullStringPtr(projectID)
	return item, err
}

func (s *PostgresStore) ListBookingsByProjects(ctx context.Context, projectIDs []string) ([]Booking, error) {
	return collect(ctx, s.db, "project bookings", bookingColumns+`
		WHERE project_id = ANY($1)
		ORDER BY scheduled_date ASC, start_time ASC
	`, scanBooking, projectIDs)
}

func (s *PostgresStore) ListBookingsByClient(ctx context.Context, clientID string) ([]Booking, error) {
	return collect(ctx, s.db, "client bookings", bookingColumns+`
		WHERE client_id = $1
		ORDER BY scheduled_date ASC, start_time ASC
	`, scanBooking, clientID)
}

func (s *PostgresStore) ListContracts(ctx context.Context, clientID, accountID string) ([]Contract, error) {
	return collect(ctx, s.db, "contracts", `
		SELECT id, account_id, client_id, project_id, title, status, signed_at, created_at
		FROM contracts
		WHERE client_id = $1 AND account_id = $2
		ORDER BY created_at DESC
	`, func(rows *sql.Rows) (Contract, error) {
		var (
			item      Contract
			projectID sql.NullString
			signedAt  sql.NullTime
		)
		err := rows.Scan(&item.ID, &item.AccountID, &item.ClientID, &projectID, &item.Title, &item.Status, &signedAt, &item.CreatedAt)
		item.ProjectID = nullStringPtr(projectID)
		item.SignedAt = nullTimePtr(signedAt)
		return item, err
	}, clientID, accountID)
}

func (s *PostgresStore) ListPublishedForms(ctx context.Context, clientID, accountID string) ([]Form, error) {
	return collect(ctx, s.db, "forms", `
		SELECT id, account_id, client_id, project_id, title, COALESCE(description, ''), status, created_at
		FROM forms
		WHERE client_id = $1 AND account_id = $2 AND status = 'published'
		ORDER BY created_at DESC
	`, func(rows *sql.Rows) (Form, error) {
		var (
			item      Form
			projectID sql.NullString
		)
		err := rows.Scan(&item.ID, &item.AccountID, &item.ClientID, &projectID, &item.Title, &item.Description, &item.Status, &item.CreatedAt)
		item.ProjectID = nullStringPtr(projectID)
		return item, err
	}, clientID, accountID)
}

func (s *PostgresStore) ListCompletedSubmissions(ctx context.Context, formIDs []string) ([]FormSubmission, error) {
	return collect(ctx, s.db, "form submissions", `
		SELECT id, form_id, status, responses::text, submitted_at, created_at
		FROM form_submissions
		WHERE form_id = ANY($1) AND status = 'completed'
		ORDER BY created_at DESC
	`, func(rows *sql.Rows) (FormSubmission, error) {
		var (
			item        FormSubmission
			responses   string
			submittedAt sql.NullTime
		)
		err := rows.Scan(&item.ID, &item.FormID, &item.Status, &responses, &submittedAt, &item.CreatedAt)
		item.Responses = json.RawMessage(responses)
		item.SubmittedAt = nullTimePtr(submittedAt)
		return item, err
	}, formIDs)
}

// ListMessages returns the most recent limit messages of the projects,
// newest first.
func (s *PostgresStore) ListMessages(ctx context.Context, projectIDs []string, accountID string, limit int) ([]Message, error) {
	return collect(ctx, s.db, "messages", `
		SELECT id, account_id, project_id, client_id, content, sender_type, sender_id, COALESCE(sender_name, ''),
		       is_read, attachment_url, attachment_name, created_at
		FROM messages
		WHERE project_id = ANY($1) AND account_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, func(rows *sql.Rows) (Message, error) {
		var (
			item                          Message
			projectID, clientID, senderID sql.NullString
			attachmentURL, attachmentName sql.NullString
		)
		err := rows.Scan(
			&item.ID, &item.AccountID, &projectID, &clientID, &item.Content, &item.SenderType, &senderID, &item.SenderName,
			&item.IsRead, &attachmentURL, &attachmentName, &item.CreatedAt,
		)
		item.ProjectID = nullStringPtr(projectID)
		item.ClientID = nullStringPtr(clientID)
		item.SenderID = nullStringPtr(senderID)
		item.AttachmentURL = nullStringPtr(attachmentURL)
		item.AttachmentName = nullStringPtr(attachmentName)
		return item, err
	}, projectIDs, accountID, limit)
}

// ListProfileNames maps user id to "first last" for the given users. Users
// without a name are left out.
func (s *PostgresStore) ListProfileNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, TRIM(CONCAT(COALESCE(first_name, ''), ' ', COALESCE(last_name, '')))
		FROM profiles
		WHERE user_id = ANY($1)
	`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list profile names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string, len(userIDs))
	for rows.Next() {
		var userID, name string
		if err := rows.Scan(&userID, &name); err != nil {
			return nil, fmt.Errorf("scan profile name: %w", err)
		}
		if name != "" {
			names[userID] = name
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile names: %w", err)
	}
	return names, nil
}

func (s *PostgresStore) ListActiveMembers(ctx context.Context, clientID, accountID string) ([]Member, error) {
	return collect(ctx, s.db, "members", `
		SELECT email, COALESCE(name, ''), role, is_active
		FROM client_allowlist
		WHERE client_id = $1 AND account_id = $2 AND is_active = TRUE
		ORDER BY created_at ASC
	`, func(rows *sql.Rows) (Member, error) {
		var item Member
		err := rows.Scan(&item.Email, &item.Name, &item.Role, &item.IsActive)
		return item, err
	}, clientID, accountID)
}

func collect[T any](ctx context.Context, db *sql.DB, what, query string, scan func(*sql.Rows) (T, error), args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	defer rows.Close()

	items := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return items, nil
}

func applied(result sql.Result, op string) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return rows > 0, nil
}

func jsonText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	v := value.Time
	return &v
}
