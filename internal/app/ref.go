package app

import "strings"

// GlobalPortalID addresses the account-wide template instead of a portal.
const GlobalPortalID = "global"

// PortalRef is either GlobalRef or SpecificRef.
type PortalRef interface {
	portalRef()
}

// GlobalRef targets the template of the caller's account.
type GlobalRef struct{}

// SpecificRef targets one portal.
type SpecificRef struct {
	PortalID string
}

func (GlobalRef) portalRef()   {}
func (SpecificRef) portalRef() {}

// ParsePortalRef validates a portal identifier taken from a request path.
func ParsePortalRef(raw string) (PortalRef, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return nil, validationError("portalId", "Portal ID is required")
	}
	if id == GlobalPortalID {
		return GlobalRef{}, nil
	}
	return SpecificRef{PortalID: id}, nil
}
