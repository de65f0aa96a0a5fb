package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"clientportal/api/internal/aggregate"
	"clientportal/api/internal/rbac"
	"clientportal/api/internal/settings"
	"clientportal/api/internal/store"
)

const globalPortalName = "Global Portal Template"

// PortalView is everything a portal page renders.
type PortalView struct {
	Portal            PortalSummary          `json:"portal"`
	Client            ClientSummary          `json:"client"`
	Modules           settings.Modules       `json:"modules"`
	Projects          []ProjectView          `json:"projects"`
	Invoices          []aggregate.Invoice    `json:"invoices"`
	Files             []aggregate.File       `json:"files"`
	Tasks             []aggregate.Task       `json:"tasks"`
	Milestones        []store.Milestone      `json:"milestones"`
	Contracts         []store.Contract       `json:"contracts"`
	Forms             []store.Form           `json:"forms"`
	FormSubmissions   []store.FormSubmission `json:"formSubmissions"`
	Messages          []store.Message        `json:"messages"`
	Bookings          []store.Booking        `json:"bookings"`
	ProjectVisibility map[string]bool        `json:"projectVisibility"`
	DefaultProject    string                 `json:"defaultProject"`
	Members           []MemberView           `json:"members"`
}

// PortalSummary carries the portal row and its resolved settings, flattened.
type PortalSummary struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Status            string `json:"status"`
	URL               string `json:"url"`
	Description       string `json:"description"`
	PasswordProtected bool   `json:"passwordProtected"`
	settings.Resolved
}

type ClientSummary struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Company   string `json:"company"`
	Avatar    string `json:"avatar"`
}

type ProjectView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	IsVisible   bool      `json:"isVisible"`
	IsDefault   bool      `json:"isDefault"`
}

type MemberView struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// viewSource is the input of materialize.
type viewSource struct {
	Portal               store.Portal
	Client               store.Client
	Resolved             settings.Resolved
	Modules              settings.Modules
	Visibility           settings.Object
	LegacyDefaultProject *string
	PasswordProtected    bool
	Aggregates           aggregate.Aggregates
}

// GetPortalSettings builds the view for a portal, or for the account template
// when rawID is the global identifier. sess may be nil for portal reads.
func (s *Service) GetPortalSettings(ctx context.Context, rawID string, sess *Session) (PortalView, error) {
	ref, err := ParsePortalRef(rawID)
	if err != nil {
		return PortalView{}, err
	}
	switch ref := ref.(type) {
	case GlobalRef:
		return s.globalView(ctx, sess)
	case SpecificRef:
		return s.portalView(ctx, ref.PortalID, sess)
	default:
		return PortalView{}, fmt.Errorf("unsupported portal reference %T", ref)
	}
}

func (s *Service) portalView(ctx context.Context, portalID string, sess *Session) (PortalView, error) {
	portal, err := s.loadPortal(ctx, portalID)
	if err != nil {
		return PortalView{}, err
	}
	if sess != nil {
		if err := s.requireOwner(ctx, sess, portal); err != nil {
			return PortalView{}, err
		}
	}

	portalCfg, err := s.store.GetPortalConfig(ctx, portal.ID)
	if err != nil {
		return PortalView{}, err
	}
	accountCfg, err := s.store.GetAccountConfig(ctx, portal.AccountID)
	if err != nil {
		return PortalView{}, err
	}

	var portalSettings, portalModules, visibility settings.Object
	var legacyDefault *string
	var passwordProtected bool
	if portalCfg != nil {
		portalSettings = s.decodeDocument("portal settings", portalCfg.Settings)
		portalModules = s.decodeDocument("portal modules", portalCfg.Modules)
		visibility = s.decodeDocument("project visibility", portalCfg.ProjectVisibility)
		legacyDefault = portalCfg.DefaultProjectID
		passwordProtected = portalCfg.PasswordProtected
	}
	var globalSettings, globalModules settings.Object
	if accountCfg != nil {
		globalSettings = s.decodeDocument("global settings", accountCfg.Settings)
		globalModules = s.decodeDocument("global modules", accountCfg.Modules)
	}

	aggregates, err := s.aggregator.Collect(ctx, aggregate.Scope{
		ClientID:  portal.ClientID,
		AccountID: portal.AccountID,
	})
	if err != nil {
		if aggregate.IsCritical(err) {
			s.logger.Error("portal view aborted",
				zap.String("portal_id", portal.ID),
				zap.Error(err),
			)
			return PortalView{}, upstreamError(err)
		}
		return PortalView{}, err
	}

	return materialize(viewSource{
		Portal:               portal,
		Client:               portal.Client,
		Resolved:             settings.Resolve(globalSettings, portalSettings),
		Modules:              settings.ResolveModules(portalModules, globalModules),
		Visibility:           visibility,
		LegacyDefaultProject: legacyDefault,
		PasswordProtected:    passwordProtected,
		Aggregates:           aggregates,
	}), nil
}

// globalView renders the account template with a placeholder client and no
// entities.
func (s *Service) globalView(ctx context.Context, sess *Session) (PortalView, error) {
	accountID, err := s.resolveAccount(ctx, sess)
	if err != nil {
		return PortalView{}, err
	}
	if !s.Can(sess.Role, rbac.ActionViewPortal) {
		return PortalView{}, forbiddenError(string(rbac.ActionViewPortal))
	}
	accountCfg, err := s.store.GetAccountConfig(ctx, accountID)
	if err != nil {
		return PortalView{}, err
	}
	company := "Client"
	account, err := s.store.GetAccount(ctx, accountID)
	switch {
	case err == nil:
		if name := strings.TrimSpace(account.CompanyName); name != "" {
			company = name
		}
	case !errors.Is(err, sql.ErrNoRows):
		return PortalView{}, fmt.Errorf("get account: %w", err)
	}

	var globalSettings, globalModules settings.Object
	if accountCfg != nil {
		globalSettings = s.decodeDocument("global settings", accountCfg.Settings)
		globalModules = s.decodeDocument("global modules", accountCfg.Modules)
	}
	resolved := settings.Resolve(globalSettings, nil)
	resolved.DefaultProject = settings.DefaultProject{}

	return materialize(viewSource{
		Portal: store.Portal{
			ID:        GlobalPortalID,
			AccountID: accountID,
			Name:      globalPortalName,
			Status:    "template",
		},
		Client: store.Client{
			ID:        "template",
			FirstName: "Client",
			LastName:  "Preview",
			Company:   company,
		},
		Resolved:   resolved,
		Modules:    settings.ResolveModules(nil, globalModules),
		Aggregates: aggregate.Empty(),
	}), nil
}

func (s *Service) loadPortal(ctx context.Context, portalID string) (store.Portal, error) {
	portal, err := s.store.GetPortal(ctx, portalID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Portal{}, notFoundError("Portal")
	}
	if err != nil {
		return store.Portal{}, fmt.Errorf("get portal: %w", err)
	}
	return portal, nil
}

// requireOwner hides portals of other accounts behind NotFound.
func (s *Service) requireOwner(ctx context.Context, sess *Session, portal store.Portal) error {
	accountID, err := s.resolveAccount(ctx, sess)
	if err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			return notFoundError("Portal")
		}
		return err
	}
	if accountID != portal.AccountID {
		return notFoundError("Portal")
	}
	return nil
}

// decodeDocument reads a stored JSON document. A malformed document reads as
// empty.
func (s *Service) decodeDocument(kind string, raw json.RawMessage) settings.Object {
	obj, err := settings.ParseObject(raw)
	if err != nil {
		s.logger.Debug("malformed stored document", zap.String("document", kind), zap.Error(err))
		return settings.Object{}
	}
	return obj
}

func materialize(src viewSource) PortalView {
	aggs := src.Aggregates
	defaultProject := resolveDefaultProject(src.Resolved.DefaultProject, src.LegacyDefaultProject)

	visibility := make(map[string]bool, len(src.Visibility)+len(aggs.Projects))
	for id, value := range src.Visibility {
		visibility[id] = isVisible(value)
	}
	projects := make([]ProjectView, 0, len(aggs.Projects))
	for _, project := range aggs.Projects {
		visible, ok := visibility[project.ID]
		if !ok {
			visible = true
			visibility[project.ID] = true
		}
		projects = append(projects, ProjectView{
			ID:          project.ID,
			Name:        project.Name,
			Description: project.Description,
			Status:      project.Status,
			CreatedAt:   project.CreatedAt,
			IsVisible:   visible,
			IsDefault:   defaultProject != settings.NewestProject && project.ID == defaultProject,
		})
	}

	members := make([]MemberView, 0, len(aggs.Members))
	for _, member := range aggs.Members {
		members = append(members, MemberView{Email: member.Email, Name: member.Name, Role: member.Role})
	}

	modules := src.Modules
	if modules == nil {
		modules = settings.DefaultModules()
	}

	return PortalView{
		Portal: PortalSummary{
			ID:                src.Portal.ID,
			Name:              src.Portal.Name,
			Status:            src.Portal.Status,
			URL:               src.Portal.URL,
			Description:       src.Portal.Description,
			PasswordProtected: src.PasswordProtected,
			Resolved:          src.Resolved,
		},
		Client:            clientSummary(src.Client),
		Modules:           modules,
		Projects:          projects,
		Invoices:          nonNil(aggs.Invoices),
		Files:             nonNil(aggs.Files),
		Tasks:             nonNil(aggs.Tasks),
		Milestones:        nonNil(aggs.Milestones),
		Contracts:         nonNil(aggs.Contracts),
		Forms:             nonNil(aggs.Forms),
		FormSubmissions:   nonNil(aggs.FormSubmissions),
		Messages:          nonNil(aggs.Messages),
		Bookings:          nonNil(aggs.Bookings),
		ProjectVisibility: visibility,
		DefaultProject:    defaultProject,
		Members:           members,
	}
}

// resolveDefaultProject prefers the settings document, then the legacy column.
func resolveDefaultProject(configured settings.DefaultProject, legacy *string) string {
	if configured.Set {
		return configured.ID
	}
	if legacy != nil {
		return settings.NormalizeDefaultProject(*legacy)
	}
	return settings.NewestProject
}

// isVisible treats anything but an explicit false as visible.
func isVisible(value any) bool {
	visible, ok := value.(bool)
	return !ok || visible
}

func clientSummary(client store.Client) ClientSummary {
	return ClientSummary{
		ID:        client.ID,
		FirstName: client.FirstName,
		LastName:  client.LastName,
		Email:     client.Email,
		Company:   client.Company,
		Avatar:    initials(client.FirstName, client.LastName),
	}
}

func initials(first, last string) string {
	var out strings.Builder
	for _, name := range []string{first, last} {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		for _, r := range name {
			out.WriteString(strings.ToUpper(string(r)))
			break
		}
	}
	if out.Len() == 0 {
		return "C"
	}
	return out.String()
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
