package store

import (
	"encoding/json"
	"time"
)

type Account struct {
	ID          string
	CompanyName string
	Address     string
	LogoURL     string
}

type Profile struct {
	UserID    string
	AccountID string
	FirstName string
	LastName  string
	Role      string
}

type Client struct {
	ID        string
	AccountID string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Company   string
}

type Portal struct {
	ID          string
	AccountID   string
	ClientID    string
	Name        string
	Description string
	Status      string
	URL         string
	BrandColor  string
	CreatedAt   time.Time
	Client      Client
}

// PortalConfig is the stored override document of one portal.
type PortalConfig struct {
	PortalID           string
	Settings           json.RawMessage
	Modules            json.RawMessage
	ProjectVisibility  json.RawMessage
	PasswordProtected  bool
	PortalPasswordHash string
	DefaultProjectID   *string
	Version            int64
}

// AccountConfig is the stored account-wide template document.
type AccountConfig struct {
	AccountID string
	Settings  json.RawMessage
	Modules   json.RawMessage
	Version   int64
}

// PortalConfigWrite is a full replacement of a portal_settings row.
// The legacy fields mirror keys of Settings and are never read back.
type PortalConfigWrite struct {
	PortalID           string
	Settings           json.RawMessage
	Modules            json.RawMessage
	ProjectVisibility  json.RawMessage
	PasswordProtected  bool
	PortalPasswordHash string
	Legacy             LegacyColumns
}

type LegacyColumns struct {
	BrandColor         *string
	WelcomeMessage     *string
	LogoURL            *string
	UseBackgroundImage *bool
	BackgroundImageURL *string
	BackgroundColor    *string
	DefaultProjectID   *string
}

type AccountConfigWrite struct {
	AccountID string
	Settings  json.RawMessage
	Modules   json.RawMessage
}

type Project struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	ClientID    string    `json:"client_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type Invoice struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	ClientID      string          `json:"client_id"`
	ProjectID     *string         `json:"project_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Title         string          `json:"title"`
	Status        string          `json:"status"`
	Currency      string          `json:"currency"`
	TotalAmount   float64         `json:"total_amount"`
	IssueDate     *time.Time      `json:"issue_date"`
	DueDate       *time.Time      `json:"due_date"`
	Metadata      json.RawMessage `json:"metadata"`
	CreatedAt     time.Time       `json:"created_at"`

	Client  InvoiceClient  `json:"-"`
	Account InvoiceAccount `json:"-"`
}

// InvoiceClient holds the joined client columns of an invoice; any may be null.
type InvoiceClient struct {
	FirstName *string
	LastName  *string
	Company   *string
	Email     *string
	Phone     *string
}

type InvoiceAccount struct {
	CompanyName *string
	Address     *string
	LogoURL     *string
}

type FileAsset struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id"`
	ClientID      *string   `json:"client_id"`
	ProjectID     *string   `json:"project_id"`
	Name          string    `json:"name"`
	OriginalName  string    `json:"original_name"`
	FileType      string    `json:"file_type"`
	MimeType      string    `json:"mime_type"`
	FileSize      int64     `json:"file_size"`
	StorageBucket string    `json:"storage_bucket"`
	StoragePath   string    `json:"storage_path"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type Milestone struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date"`
	SortOrder   int        `json:"sort_order"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Task struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	MilestoneID *string    `json:"milestone_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	SortOrder   int        `json:"sort_order"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Booking struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id"`
	ClientID      *string   `json:"client_id"`
	ProjectID     *string   `json:"project_id"`
	Title         string    `json:"title"`
	ServiceName   string    `json:"service_name"`
	Status        string    `json:"status"`
	ScheduledDate string    `json:"scheduled_date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	CreatedAt     time.Time `json:"created_at"`
}

type Contract struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	ClientID  string     `json:"client_id"`
	ProjectID *string    `json:"project_id"`
	Title     string     `json:"title"`
	Status    string     `json:"status"`
	SignedAt  *time.Time `json:"signed_at"`
	CreatedAt time.Time  `json:"created_at"`
}

type Form struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	ClientID    string    `json:"client_id"`
	ProjectID   *string   `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type FormSubmission struct {
	ID          string          `json:"id"`
	FormID      string          `json:"form_id"`
	Status      string          `json:"status"`
	Responses   json.RawMessage `json:"responses"`
	SubmittedAt *time.Time      `json:"submitted_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

const (
	SenderClient      = "client"
	SenderAccountUser = "account_user"
)

type Message struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	ProjectID      *string   `json:"project_id"`
	ClientID       *string   `json:"client_id"`
	Content        string    `json:"content"`
	SenderType     string    `json:"sender_type"`
	SenderID       *string   `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	IsRead         bool      `json:"is_read"`
	AttachmentURL  *string   `json:"attachment_url"`
	AttachmentName *string   `json:"attachment_name"`
	CreatedAt      time.Time `json:"created_at"`
}

// Member is an active allow-listed person with access to a client's portal.
type Member struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}
