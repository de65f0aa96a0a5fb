// Package aggregate gathers every entity collection a client portal displays.
//
// Collections are fetched concurrently. Projects and members are critical:
// their failure fails the whole collection. Every other collection degrades
// to an empty list and a warning.
package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"clientportal/api/internal/store"
)

const DefaultMessageLimit = 50

const (
	CollectionProjects        = "projects"
	CollectionInvoices        = "invoices"
	CollectionFiles           = "files"
	CollectionMilestones      = "milestones"
	CollectionTasks           = "tasks"
	CollectionBookings        = "bookings"
	CollectionContracts       = "contracts"
	CollectionForms           = "forms"
	CollectionFormSubmissions = "form_submissions"
	CollectionMessages        = "messages"
	CollectionMembers         = "members"
)

// Source is the read side of the data store the aggregator needs.
type Source interface {
	ListProjects(ctx context.Context, clientID, accountID string) ([]store.Project, error)
	ListInvoices(ctx context.Context, clientID, accountID string) ([]store.Invoice, error)
	ListFilesByClient(ctx context.Context, clientID, accountID string) ([]store.FileAsset, error)
	ListFilesByProjects(ctx context.Context, projectIDs []string, accountID string) ([]store.FileAsset, error)
	ListMilestones(ctx context.Context, projectIDs []string) ([]store.Milestone, error)
	ListTasks(ctx context.Context, projectIDs []string) ([]store.Task, error)
	ListBookingsByProjects(ctx context.Context, projectIDs []string) ([]store.Booking, error)
	ListBookingsByClient(ctx context.Context, clientID string) ([]store.Booking, error)
	ListContracts(ctx context.Context, clientID, accountID string) ([]store.Contract, error)
	ListPublishedForms(ctx context.Context, clientID, accountID string) ([]store.Form, error)
	ListCompletedSubmissions(ctx context.Context, formIDs []string) ([]store.FormSubmission, error)
	ListMessages(ctx context.Context, projectIDs []string, accountID string, limit int) ([]store.Message, error)
	ListProfileNames(ctx context.Context, userIDs []string) (map[string]string, error)
	ListActiveMembers(ctx context.Context, clientID, accountID string) ([]store.Member, error)
}

// Presigner turns a stored object path into a time-limited download URL.
type Presigner interface {
	PresignDownload(ctx context.Context, bucket, key string) (string, error)
}

// UpstreamQueryError is returned when a critical collection cannot be fetched.
type UpstreamQueryError struct {
	Collection string
	Critical   bool
	Err        error
}

func (e *UpstreamQueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Collection, e.Err)
}

func (e *UpstreamQueryError) Unwrap() error {
	return e.Err
}

// Scope selects whose entities are collected. A nil ProjectIDs derives the
// project set from the client's projects; an empty non-nil slice means none.
type Scope struct {
	ClientID   string
	AccountID  string
	ProjectIDs []string
}

type Invoice struct {
	store.Invoice
	ClientName     *string `json:"client_name"`
	ClientEmail    *string `json:"client_email"`
	ClientPhone    *string `json:"client_phone"`
	CompanyName    *string `json:"company_name"`
	CompanyAddress *string `json:"company_address"`
	CompanyLogo    *string `json:"company_logo"`
}

type File struct {
	store.FileAsset
	DownloadURL string `json:"download_url,omitempty"`
}

type Task struct {
	store.Task
	Milestone *store.Milestone `json:"milestone"`
}

// Aggregates holds every collection. Slices are never nil.
type Aggregates struct {
	Projects        []store.Project
	Invoices        []Invoice
	Files           []File
	Milestones      []store.Milestone
	Tasks           []Task
	Bookings        []store.Booking
	Contracts       []store.Contract
	Forms           []store.Form
	FormSubmissions []store.FormSubmission
	Messages        []store.Message
	Members         []store.Member
}

// Empty returns aggregates with every collection empty.
func Empty() Aggregates {
	return Aggregates{
		Projects:        []store.Project{},
		Invoices:        []Invoice{},
		Files:           []File{},
		Milestones:      []store.Milestone{},
		Tasks:           []Task{},
		Bookings:        []store.Booking{},
		Contracts:       []store.Contract{},
		Forms:           []store.Form{},
		FormSubmissions: []store.FormSubmission{},
		Messages:        []store.Message{},
		Members:         []store.Member{},
	}
}

type Option func(*Aggregator)

func WithMessageLimit(limit int) Option {
	return func(a *Aggregator) {
		if limit > 0 {
			a.messageLimit = limit
		}
	}
}

func WithPresigner(p Presigner) Option {
	return func(a *Aggregator) {
		a.presigner = p
	}
}

type Aggregator struct {
	source       Source
	logger       *zap.Logger
	messageLimit int
	presigner    Presigner
}

func New(source Source, logger *zap.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Aggregator{
		source:       source,
		logger:       logger,
		messageLimit: DefaultMessageLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// partial holds fetch results that still need combining once every query has returned.
type partial struct {
	clientFiles     []store.FileAsset
	projectFiles    []store.FileAsset
	tasks           []store.Task
	projectBookings []store.Booking
	clientBookings  []store.Booking
}

// Collect fetches every collection for scope. The only error it returns is an
// *UpstreamQueryError for a critical collection, or the context's error.
func (a *Aggregator) Collect(ctx context.Context, scope Scope) (Aggregates, error) {
	out := Empty()
	var parts partial

	g, gctx := errgroup.WithContext(ctx)
	logger := a.logger.With(zap.String("client_id", scope.ClientID), zap.String("account_id", scope.AccountID))

	g.Go(func() error {
		projects, err := a.source.ListProjects(gctx, scope.ClientID, scope.AccountID)
		if err != nil {
			return &UpstreamQueryError{Collection: CollectionProjects, Critical: true, Err: err}
		}
		out.Projects = orEmpty(projects)
		if scope.ProjectIDs == nil {
			a.collectProjectScoped(gctx, g, logger, scope.AccountID, projectIDsOf(out.Projects), &out, &parts)
		}
		return nil
	})
	if scope.ProjectIDs != nil {
		a.collectProjectScoped(gctx, g, logger, scope.AccountID, scope.ProjectIDs, &out, &parts)
	}

	g.Go(func() error {
		members, err := a.source.ListActiveMembers(gctx, scope.ClientID, scope.AccountID)
		if err != nil {
			return &UpstreamQueryError{Collection: CollectionMembers, Critical: true, Err: err}
		}
		out.Members = orEmpty(members)
		return nil
	})

	g.Go(func() error {
		invoices, err := a.source.ListInvoices(gctx, scope.ClientID, scope.AccountID)
		if err != nil {
			a.degrade(gctx, logger, CollectionInvoices, err)
			return nil
		}
		out.Invoices = enrichInvoices(invoices)
		return nil
	})

	g.Go(func() error {
		files, err := a.source.ListFilesByClient(gctx, scope.ClientID, scope.AccountID)
		if err != nil {
			a.degrade(gctx, logger, CollectionFiles, err)
			return nil
		}
		parts.clientFiles = files
		return nil
	})

	g.Go(func() error {
		bookings, err := a.source.ListBookingsByClient(gctx, scope.ClientID)
		if err != nil {
			a.degrade(gctx, logger, CollectionBookings, err)
			return nil
		}
		parts.clientBookings = bookings
		return nil
	})

	g.Go(func() error {
		contracts, err := a.source.ListContracts(gctx, scope.ClientID, scope.AccountID)
		if err != nil {
			a.degrade(gctx, logger, CollectionContracts, err)
			return nil
		}
		out.Contracts = orEmpty(contracts)
		return nil
	})

	g.Go(func() error {
		forms, err := a.source.ListPublishedForms(gctx, scope.ClientID, scope.AccountID)
		if err != nil {
			a.degrade(gctx, logger, CollectionForms, err)
			return nil
		}
		out.Forms = orEmpty(forms)
		if len(out.Forms) == 0 {
			return nil
		}
		formIDs := make([]string, 0, len(out.Forms))
		for _, form := range out.Forms {
			formIDs = append(formIDs, form.ID)
		}
		submissions, err := a.source.ListCompletedSubmissions(gctx, formIDs)
		if err != nil {
			a.degrade(gctx, logger, CollectionFormSubmissions, err)
			return nil
		}
		out.FormSubmissions = orEmpty(submissions)
		return nil
	})

	if err := g.Wait(); err != nil {
		return Aggregates{}, err
	}
	if err := ctx.Err(); err != nil {
		return Aggregates{}, err
	}

	out.Files = a.presign(ctx, logger, mergeFiles(parts.clientFiles, parts.projectFiles))
	out.Bookings = mergeBookings(parts.projectBookings, parts.clientBookings)
	out.Tasks = attachMilestones(parts.tasks, out.Milestones)
	return out, nil
}

// collectProjectScoped schedules the queries keyed by project id. With no
// projects they are skipped and their collections stay empty.
func (a *Aggregator) collectProjectScoped(ctx context.Context, g *errgroup.Group, logger *zap.Logger, accountID string, projectIDs []string, out *Aggregates, parts *partial) {
	if len(projectIDs) == 0 {
		return
	}

	g.Go(func() error {
		files, err := a.source.ListFilesByProjects(ctx, projectIDs, accountID)
		if err != nil {
			a.degrade(ctx, logger, CollectionFiles, err)
			return nil
		}
		parts.projectFiles = files
		return nil
	})

	g.Go(func() error {
		milestones, err := a.source.ListMilestones(ctx, projectIDs)
		if err != nil {
			a.degrade(ctx, logger, CollectionMilestones, err)
			return nil
		}
		out.Milestones = orEmpty(milestones)
		return nil
	})

	g.Go(func() error {
		tasks, err := a.source.ListTasks(ctx, projectIDs)
		if err != nil {
			a.degrade(ctx, logger, CollectionTasks, err)
			return nil
		}
		parts.tasks = tasks
		return nil
	})

	g.Go(func() error {
		bookings, err := a.source.ListBookingsByProjects(ctx, projectIDs)
		if err != nil {
			a.degrade(ctx, logger, CollectionBookings, err)
			return nil
		}
		parts.projectBookings = bookings
		return nil
	})

	g.Go(func() error {
		messages, err := a.source.ListMessages(ctx, projectIDs, accountID, a.messageLimit)
		if err != nil {
			a.degrade(ctx, logger, CollectionMessages, err)
			return nil
		}
		out.Messages = a.resolveSenderNames(ctx, logger, orEmpty(messages))
		return nil
	})
}

func (a *Aggregator) degrade(ctx context.Context, logger *zap.Logger, collection string, err error) {
	if ctx.Err() != nil {
		return
	}
	logger.Warn("portal collection unavailable",
		zap.String("collection", collection),
		zap.Error(err),
	)
}

// resolveSenderNames replaces the stored sender name of team messages with
// the sender's current profile name, using one lookup for all senders.
func (a *Aggregator) resolveSenderNames(ctx context.Context, logger *zap.Logger, messages []store.Message) []store.Message {
	seen := map[string]bool{}
	var senderIDs []string
	for _, message := range messages {
		if message.SenderType != store.SenderAccountUser || message.SenderID == nil || *message.SenderID == "" {
			continue
		}
		if !seen[*message.SenderID] {
			seen[*message.SenderID] = true
			senderIDs = append(senderIDs, *message.SenderID)
		}
	}
	if len(senderIDs) == 0 {
		return messages
	}

	names, err := a.source.ListProfileNames(ctx, senderIDs)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("message sender lookup failed", zap.Int("senders", len(senderIDs)), zap.Error(err))
		}
		return messages
	}
	for i := range messages {
		if messages[i].SenderType != store.SenderAccountUser || messages[i].SenderID == nil {
			continue
		}
		if name, ok := names[*messages[i].SenderID]; ok && name != "" {
			messages[i].SenderName = name
		}
	}
	return messages
}

func (a *Aggregator) presign(ctx context.Context, logger *zap.Logger, files []File) []File {
	if a.presigner == nil {
		return files
	}
	for i := range files {
		if files[i].StoragePath == "" {
			continue
		}
		url, err := a.presigner.PresignDownload(ctx, files[i].StorageBucket, files[i].StoragePath)
		if err != nil {
			logger.Warn("presign file download failed", zap.String("file_id", files[i].ID), zap.Error(err))
			continue
		}
		files[i].DownloadURL = url
	}
	return files
}

// mergeFiles returns the client-scoped files followed by project-scoped files
// not already present, newest first. Files created at the same instant keep
// that order.
func mergeFiles(clientFiles, projectFiles []store.FileAsset) []File {
	seen := make(map[string]bool, len(clientFiles)+len(projectFiles))
	files := make([]File, 0, len(clientFiles)+len(projectFiles))
	for _, group := range [][]store.FileAsset{clientFiles, projectFiles} {
		for _, file := range group {
			if seen[file.ID] {
				continue
			}
			seen[file.ID] = true
			files = append(files, File{FileAsset: file})
		}
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files
}

// mergeBookings keeps project bookings in their stored order and appends
// client bookings not already present.
func mergeBookings(projectBookings, clientBookings []store.Booking) []store.Booking {
	seen := make(map[string]bool, len(projectBookings))
	bookings := make([]store.Booking, 0, len(projectBookings)+len(clientBookings))
	for _, group := range [][]store.Booking{projectBookings, clientBookings} {
		for _, booking := range group {
			if seen[booking.ID] {
				continue
			}
			seen[booking.ID] = true
			bookings = append(bookings, booking)
		}
	}
	return bookings
}

func attachMilestones(tasks []store.Task, milestones []store.Milestone) []Task {
	byID := make(map[string]*store.Milestone, len(milestones))
	for i := range milestones {
		byID[milestones[i].ID] = &milestones[i]
	}
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		enriched := Task{Task: task}
		if task.MilestoneID != nil {
			if milestone, ok := byID[*task.MilestoneID]; ok {
				copied := *milestone
				enriched.Milestone = &copied
			}
		}
		out = append(out, enriched)
	}
	return out
}

func enrichInvoices(invoices []store.Invoice) []Invoice {
	out := make([]Invoice, 0, len(invoices))
	for _, invoice := range invoices {
		out = append(out, enrichInvoice(invoice))
	}
	return out
}

// enrichInvoice denormalizes client and issuer details. Issuer fields prefer
// the invoice's own metadata over the account record.
func enrichInvoice(invoice store.Invoice) Invoice {
	client := invoice.Client
	enriched := Invoice{
		Invoice:     invoice,
		ClientEmail: client.Email,
		ClientPhone: client.Phone,
	}

	name := strings.TrimSpace(deref(client.Company))
	if name == "" {
		name = strings.TrimSpace(deref(client.FirstName) + " " + deref(client.LastName))
	}
	if name != "" {
		enriched.ClientName = &name
	}

	metadata := map[string]any{}
	if len(invoice.Metadata) > 0 {
		_ = json.Unmarshal(invoice.Metadata, &metadata)
	}
	enriched.CompanyName = firstNonEmpty(metadataString(metadata, "company_name"), invoice.Account.CompanyName)
	enriched.CompanyAddress = firstNonEmpty(metadataString(metadata, "company_address"), invoice.Account.Address)
	enriched.CompanyLogo = firstNonEmpty(metadataString(metadata, "company_logo"), metadataString(metadata, "logo_url"), invoice.Account.LogoURL)
	return enriched
}

func metadataString(metadata map[string]any, key string) *string {
	value, ok := metadata[key].(string)
	if !ok {
		return nil
	}
	return &value
}

func firstNonEmpty(values ...*string) *string {
	for _, value := range values {
		if value != nil && *value != "" {
			return value
		}
	}
	return nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func projectIDsOf(projects []store.Project) []string {
	ids := make([]string, 0, len(projects))
	for _, project := range projects {
		ids = append(ids, project.ID)
	}
	return ids
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// IsCritical reports whether err came from a critical collection.
func IsCritical(err error) bool {
	var upstream *UpstreamQueryError
	return errors.As(err, &upstream) && upstream.Critical
}
