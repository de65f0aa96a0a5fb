package settings

// Login is the fully defaulted login page configuration.
type Login struct {
	LogoURL              string  `json:"logoUrl"`
	WelcomeHeadline      string  `json:"welcomeHeadline"`
	WelcomeSubtitle      string  `json:"welcomeSubtitle"`
	BgMode               string  `json:"bgMode"`
	BgColor              string  `json:"bgColor"`
	BgGradientFrom       string  `json:"bgGradientFrom"`
	BgGradientTo         string  `json:"bgGradientTo"`
	BgGradientAngle      float64 `json:"bgGradientAngle"`
	BgImageURL           string  `json:"bgImageUrl"`
	ImageFit             string  `json:"imageFit"`
	OverlayOpacity       float64 `json:"overlayOpacity"`
	Blur                 bool    `json:"blur"`
	MagicLinkEnabled     bool    `json:"magicLinkEnabled"`
	PasswordEnabled      bool    `json:"passwordEnabled"`
	ActiveAuthMode       string  `json:"activeAuthMode"`
	MagicLinkButtonLabel string  `json:"magicLinkButtonLabel"`
	PasswordButtonLabel  string  `json:"passwordButtonLabel"`
	ShowResend           bool    `json:"showResend"`
}

// NormalizeLoginObject fills every login field. A raw value that is not a
// JSON object yields all defaults.
func NormalizeLoginObject(raw any) Object {
	src, _ := asObject(raw)
	return LoginFields.Fill(src)
}

// NormalizeLogin is NormalizeLoginObject in typed form.
func NormalizeLogin(raw any) Login {
	obj := NormalizeLoginObject(raw)
	return Login{
		LogoURL:              stringField(obj, "logoUrl"),
		WelcomeHeadline:      stringField(obj, "welcomeHeadline"),
		WelcomeSubtitle:      stringField(obj, "welcomeSubtitle"),
		BgMode:               stringField(obj, "bgMode"),
		BgColor:              stringField(obj, "bgColor"),
		BgGradientFrom:       stringField(obj, "bgGradientFrom"),
		BgGradientTo:         stringField(obj, "bgGradientTo"),
		BgGradientAngle:      numberField(obj, "bgGradientAngle"),
		BgImageURL:           stringField(obj, "bgImageUrl"),
		ImageFit:             stringField(obj, "imageFit"),
		OverlayOpacity:       numberField(obj, "overlayOpacity"),
		Blur:                 boolField(obj, "blur"),
		MagicLinkEnabled:     boolField(obj, "magicLinkEnabled"),
		PasswordEnabled:      boolField(obj, "passwordEnabled"),
		ActiveAuthMode:       stringField(obj, "activeAuthMode"),
		MagicLinkButtonLabel: stringField(obj, "magicLinkButtonLabel"),
		PasswordButtonLabel:  stringField(obj, "passwordButtonLabel"),
		ShowResend:           boolField(obj, "showResend"),
	}
}

// NarrowLogin drops every key that is not a login field. Values are kept as
// given; defaults are applied later by NormalizeLoginObject.
func NarrowLogin(raw any) Object {
	src, ok := asObject(raw)
	if !ok {
		return Object{}
	}
	return LoginFields.Narrow(src)
}
