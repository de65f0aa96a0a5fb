package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"clientportal/api/internal/authpw"
	"clientportal/api/internal/rbac"
	"clientportal/api/internal/settings"
	"clientportal/api/internal/store"
)

// UpdateInput is a partial settings update. Keys left out of the request are
// never written.
type UpdateInput struct {
	Portal         map[string]json.RawMessage `json:"portal"`
	Modules        json.RawMessage            `json:"modules"`
	Projects       *[]ProjectVisibilityInput  `json:"projects"`
	DefaultProject json.RawMessage            `json:"defaultProject"`
}

type ProjectVisibilityInput struct {
	ID        string `json:"id"`
	IsVisible *bool  `json:"isVisible"`
}

// Keys of the portal object that are echoed back by clients but belong to
// the portal row, not the settings document.
var readOnlyPortalKeys = map[string]struct{}{
	"id":     {},
	"status": {},
	"url":    {},
}

// settingsPatch is an UpdateInput split by destination.
type settingsPatch struct {
	document          settings.Object
	name              *string
	description       *string
	passwordProtected *bool
	password          *string

	modules        settings.Object
	visibility     map[string]bool
	defaultProject *json.RawMessage
}

// UpdatePortalSettings applies input to a portal, or to the account template
// when rawID is the global identifier.
func (s *Service) UpdatePortalSettings(ctx context.Context, rawID string, sess *Session, input UpdateInput) error {
	ref, err := ParsePortalRef(rawID)
	if err != nil {
		return err
	}
	if sess == nil {
		return unauthorizedError()
	}
	accountID, err := s.resolveAccount(ctx, sess)
	if err != nil {
		return err
	}

	switch ref := ref.(type) {
	case GlobalRef:
		if !s.Can(sess.Role, rbac.ActionEditTemplate) {
			return forbiddenError(string(rbac.ActionEditTemplate))
		}
		return s.updateTemplate(ctx, accountID, input)
	case SpecificRef:
		if !s.Can(sess.Role, rbac.ActionEditPortal) {
			return forbiddenError(string(rbac.ActionEditPortal))
		}
		portal, err := s.loadPortal(ctx, ref.PortalID)
		if err != nil {
			return err
		}
		if portal.AccountID != accountID {
			return notFoundError("Portal")
		}
		return s.updatePortal(ctx, portal, input)
	default:
		return fmt.Errorf("unsupported portal reference %T", ref)
	}
}

func (s *Service) updatePortal(ctx context.Context, portal store.Portal, input UpdateInput) error {
	patch, err := parsePatch(input)
	if err != nil {
		return err
	}

	var passwordHash *string
	if patch.password != nil {
		hash, err := s.passwords.HashPassword(*patch.password)
		if err != nil {
			if errors.Is(err, authpw.ErrPasswordTooShort) {
				return validationError("portal.portalPassword",
					fmt.Sprintf("Password must be at least %d characters", authpw.MinPasswordLength))
			}
			return err
		}
		passwordHash = &hash
	}

	for attempt := 1; attempt <= s.writeAttempts(); attempt++ {
		existing, err := s.store.GetPortalConfig(ctx, portal.ID)
		if err != nil {
			return err
		}
		write, version, err := s.portalWrite(portal.ID, existing, patch, passwordHash)
		if err != nil {
			return err
		}
		ok, err := s.store.UpsertPortalConfig(ctx, write, version)
		if err != nil {
			return err
		}
		if ok {
			return s.updatePortalInfo(ctx, portal.ID, patch)
		}
		s.logger.Info("portal settings changed concurrently, retrying",
			zap.String("portal_id", portal.ID),
			zap.Int("attempt", attempt),
		)
	}
	return conflictError()
}

// updatePortalInfo writes the row fields once the settings document is saved.
func (s *Service) updatePortalInfo(ctx context.Context, portalID string, patch settingsPatch) error {
	if patch.name == nil && patch.description == nil {
		return nil
	}
	if err := s.store.UpdatePortalInfo(ctx, portalID, patch.name, patch.description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFoundError("Portal")
		}
		return err
	}
	return nil
}

func (s *Service) updateTemplate(ctx context.Context, accountID string, input UpdateInput) error {
	patch, err := parsePatch(UpdateInput{Portal: input.Portal, Modules: input.Modules})
	if err != nil {
		return err
	}

	for attempt := 1; attempt <= s.writeAttempts(); attempt++ {
		existing, err := s.store.GetAccountConfig(ctx, accountID)
		if err != nil {
			return err
		}
		write := store.AccountConfigWrite{AccountID: accountID}
		var version int64
		var current, modules settings.Object
		if existing != nil {
			version = existing.Version
			current = s.decodeDocument("global settings", existing.Settings)
			modules = s.decodeDocument("global modules", existing.Modules)
		}
		if patch.modules != nil {
			modules = patch.modules
		}
		doc := mergeDocument(current, patch.document)
		delete(doc, "defaultProject")
		if write.Settings, err = marshalDocument(doc); err != nil {
			return err
		}
		if write.Modules, err = marshalDocument(modules); err != nil {
			return err
		}

		ok, err := s.store.UpsertAccountConfig(ctx, write, version)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		s.logger.Info("global portal settings changed concurrently, retrying",
			zap.String("account_id", accountID),
			zap.Int("attempt", attempt),
		)
	}
	return conflictError()
}

// portalWrite merges patch into the stored configuration and returns the row
// to write with the version it must replace.
func (s *Service) portalWrite(portalID string, existing *store.PortalConfig, patch settingsPatch, passwordHash *string) (store.PortalConfigWrite, int64, error) {
	write := store.PortalConfigWrite{PortalID: portalID}
	var (
		version       int64
		current       settings.Object
		modules       settings.Object
		visibility    json.RawMessage
		legacyDefault *string
	)
	if existing != nil {
		version = existing.Version
		current = s.decodeDocument("portal settings", existing.Settings)
		modules = s.decodeDocument("portal modules", existing.Modules)
		visibility = existing.ProjectVisibility
		legacyDefault = existing.DefaultProjectID
		write.PasswordProtected = existing.PasswordProtected
		write.PortalPasswordHash = existing.PortalPasswordHash
	}

	doc := mergeDocument(current, patch.document)
	if patch.defaultProject != nil {
		id := settings.NormalizeDefaultProject(decodeValue(*patch.defaultProject))
		if id == settings.NewestProject {
			doc["defaultProject"] = nil
			legacyDefault = nil
		} else {
			doc["defaultProject"] = id
			legacyDefault = &id
		}
	}
	if patch.modules != nil {
		modules = patch.modules
	}
	if patch.visibility != nil {
		encoded, err := json.Marshal(patch.visibility)
		if err != nil {
			return store.PortalConfigWrite{}, 0, fmt.Errorf("encode project visibility: %w", err)
		}
		visibility = encoded
	}
	if patch.passwordProtected != nil {
		write.PasswordProtected = *patch.passwordProtected
	}
	if passwordHash != nil {
		write.PortalPasswordHash = *passwordHash
	}
	if write.PasswordProtected && write.PortalPasswordHash == "" && (patch.passwordProtected != nil || passwordHash != nil) {
		return store.PortalConfigWrite{}, 0, validationError("portal.portalPassword", "A password is required while the portal is password protected")
	}

	var err error
	if write.Settings, err = marshalDocument(doc); err != nil {
		return store.PortalConfigWrite{}, 0, err
	}
	if write.Modules, err = marshalDocument(modules); err != nil {
		return store.PortalConfigWrite{}, 0, err
	}
	write.ProjectVisibility = visibility
	write.Legacy = legacyColumns(doc, legacyDefault)
	return write, version, nil
}

// mergeDocument overlays update on current at the top level only. A login
// object present afterwards is normalized to its full field set.
func mergeDocument(current, update settings.Object) settings.Object {
	doc := current.Clone()
	for key, value := range update {
		doc[key] = value
	}
	if login, ok := doc["login"]; ok {
		doc["login"] = settings.NormalizeLoginObject(login)
	}
	return doc
}

func legacyColumns(doc settings.Object, defaultProject *string) store.LegacyColumns {
	return store.LegacyColumns{
		BrandColor:         stringValue(doc, "brandColor"),
		WelcomeMessage:     stringValue(doc, "welcomeMessage"),
		LogoURL:            stringValue(doc, "logoUrl"),
		UseBackgroundImage: boolValue(doc, "useBackgroundImage"),
		BackgroundImageURL: stringValue(doc, "backgroundImageUrl"),
		BackgroundColor:    stringValue(doc, "backgroundColor"),
		DefaultProjectID:   defaultProject,
	}
}

func parsePatch(input UpdateInput) (settingsPatch, error) {
	patch := settingsPatch{document: settings.Object{}}
	for key, raw := range input.Portal {
		if _, skip := readOnlyPortalKeys[key]; skip {
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return settingsPatch{}, validationError("portal."+key, "Invalid value")
		}
		switch key {
		case "name", "description":
			if value == nil {
				continue
			}
			text, ok := value.(string)
			if !ok {
				return settingsPatch{}, validationError("portal."+key, "Must be a string")
			}
			text = strings.TrimSpace(text)
			if key == "name" {
				if text == "" {
					return settingsPatch{}, validationError("portal.name", "Portal name cannot be empty")
				}
				patch.name = &text
			} else {
				patch.description = &text
			}
		case "passwordProtected":
			protected, ok := value.(bool)
			if !ok {
				return settingsPatch{}, validationError("portal.passwordProtected", "Must be a boolean")
			}
			patch.passwordProtected = &protected
		case "portalPassword":
			if value == nil {
				continue
			}
			password, ok := value.(string)
			if !ok {
				return settingsPatch{}, validationError("portal.portalPassword", "Must be a string")
			}
			patch.password = &password
		case "defaultProject":
			switch value.(type) {
			case nil, string:
			default:
				return settingsPatch{}, validationError("portal.defaultProject", "Must be a project ID or \"newest\"")
			}
			if len(input.DefaultProject) == 0 {
				patch.defaultProject = &raw
			}
		case "login":
			patch.document[key] = settings.NarrowLogin(value)
		default:
			patch.document[key] = value
		}
	}

	if len(input.Modules) > 0 {
		obj, err := settings.ParseObject(input.Modules)
		if err != nil {
			return settingsPatch{}, validationError("modules", "Must be an object of module flags")
		}
		patch.modules = settings.NarrowModules(obj)
	}

	if input.Projects != nil {
		patch.visibility = make(map[string]bool, len(*input.Projects))
		for _, project := range *input.Projects {
			id := strings.TrimSpace(project.ID)
			if id == "" {
				return settingsPatch{}, validationError("projects", "Project ID is required")
			}
			patch.visibility[id] = project.IsVisible == nil || *project.IsVisible
		}
	}

	if len(input.DefaultProject) > 0 {
		switch decodeValue(input.DefaultProject).(type) {
		case nil, string:
			raw := input.DefaultProject
			patch.defaultProject = &raw
		default:
			return settingsPatch{}, validationError("defaultProject", "Must be a project ID or \"newest\"")
		}
	}
	return patch, nil
}

func (s *Service) writeAttempts() int {
	if s.cfg.WriteRetries < 1 {
		return 1
	}
	return s.cfg.WriteRetries
}

func marshalDocument(doc settings.Object) (json.RawMessage, error) {
	if doc == nil {
		doc = settings.Object{}
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode settings document: %w", err)
	}
	return encoded, nil
}

func decodeValue(raw json.RawMessage) any {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	return value
}

func stringValue(doc settings.Object, key string) *string {
	value, ok := doc[key].(string)
	if !ok {
		return nil
	}
	return &value
}

func boolValue(doc settings.Object, key string) *bool {
	value, ok := doc[key].(bool)
	if !ok {
		return nil
	}
	return &value
}
