package app

import (
	"net/http"
	"testing"
)

func TestParsePortalRef(t *testing.T) {
	tests := []struct {
		raw  string
		want PortalRef
	}{
		{raw: "global", want: GlobalRef{}},
		{raw: "portal-1", want: SpecificRef{PortalID: "portal-1"}},
		{raw: "  portal-1 ", want: SpecificRef{PortalID: "portal-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParsePortalRef(tt.raw)
			if err != nil {
				t.Fatalf("ParsePortalRef(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParsePortalRef(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}

	for _, raw := range []string{"", "   "} {
		_, err := ParsePortalRef(raw)
		domainErr := expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
		if details, _ := domainErr.Details.(map[string]any); details["field"] != "portalId" {
			t.Fatalf("details = %v, want field portalId", domainErr.Details)
		}
	}
}
