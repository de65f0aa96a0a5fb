package settings

import "strings"

// NewestProject is the default-project sentinel meaning "the most recently
// created project".
const NewestProject = "newest"

// TaskViews toggles the client task views.
type TaskViews struct {
	Milestones bool `json:"milestones"`
	Board      bool `json:"board"`
}

// DefaultProject is the explicitly configured default project. Set is false
// when neither document names one.
type DefaultProject struct {
	Set bool
	ID  string
}

// Resolved is the effective, fully defaulted branding configuration.
type Resolved struct {
	BrandColor                string    `json:"brandColor"`
	WelcomeMessage            string    `json:"welcomeMessage"`
	LogoURL                   string    `json:"logoUrl"`
	CompanyName               string    `json:"companyName"`
	UseBackgroundImage        bool      `json:"useBackgroundImage"`
	BackgroundImageURL        string    `json:"backgroundImageUrl"`
	BackgroundColor           string    `json:"backgroundColor"`
	SidebarBgColor            string    `json:"sidebarBgColor"`
	SidebarTextColor          string    `json:"sidebarTextColor"`
	SidebarHighlightColor     string    `json:"sidebarHighlightColor"`
	SidebarHighlightTextColor string    `json:"sidebarHighlightTextColor"`
	PortalFont                string    `json:"portalFont"`
	TaskViews                 TaskViews `json:"taskViews"`
	Login                     Login     `json:"login"`

	DefaultProject DefaultProject `json:"-"`
}

// Resolve merges the two documents and applies defaults.
func Resolve(global, individual Object) Resolved {
	return FromMerged(Merge(global, individual))
}

// FromMerged applies defaults to an already merged document.
func FromMerged(merged Object) Resolved {
	top := TopLevel.Fill(merged)
	return Resolved{
		BrandColor:                stringField(top, "brandColor"),
		WelcomeMessage:            stringField(top, "welcomeMessage"),
		LogoURL:                   stringField(top, "logoUrl"),
		CompanyName:               stringField(top, "companyName"),
		UseBackgroundImage:        boolField(top, "useBackgroundImage"),
		BackgroundImageURL:        stringField(top, "backgroundImageUrl"),
		BackgroundColor:           stringField(top, "backgroundColor"),
		SidebarBgColor:            stringField(top, "sidebarBgColor"),
		SidebarTextColor:          stringField(top, "sidebarTextColor"),
		SidebarHighlightColor:     stringField(top, "sidebarHighlightColor"),
		SidebarHighlightTextColor: stringField(top, "sidebarHighlightTextColor"),
		PortalFont:                stringField(top, "portalFont"),
		TaskViews:                 taskViewsFrom(top["taskViews"]),
		Login:                     NormalizeLogin(merged["login"]),
		DefaultProject:            defaultProjectFrom(merged),
	}
}

func taskViewsFrom(raw any) TaskViews {
	src, _ := asObject(raw)
	views := TaskViewFields.Fill(src)
	return TaskViews{
		Milestones: boolField(views, "milestones"),
		Board:      boolField(views, "board"),
	}
}

func defaultProjectFrom(merged Object) DefaultProject {
	raw, ok := merged["defaultProject"]
	if !ok {
		return DefaultProject{}
	}
	return DefaultProject{Set: true, ID: NormalizeDefaultProject(raw)}
}

// NormalizeDefaultProject maps null, empty and non-string values to
// NewestProject and returns any other id trimmed.
func NormalizeDefaultProject(raw any) string {
	id, _ := raw.(string)
	id = strings.TrimSpace(id)
	if id == "" {
		return NewestProject
	}
	return id
}
