package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer view", role: RoleViewer, action: ActionViewPortal, allow: true},
		{name: "viewer edit", role: RoleViewer, action: ActionEditPortal, allow: false},
		{name: "member edit portal", role: RoleMember, action: ActionEditPortal, allow: true},
		{name: "member edit template", role: RoleMember, action: ActionEditTemplate, allow: false},
		{name: "admin edit template", role: RoleAdmin, action: ActionEditTemplate, allow: true},
		{name: "owner edit template", role: RoleOwner, action: ActionEditTemplate, allow: true},
		{name: "unknown role", role: Role("intern"), action: ActionViewPortal, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("owner"); got != RoleOwner {
		t.Fatalf("Normalize(owner) = %q", got)
	}
	if got := Normalize(" Admin "); got != RoleAdmin {
		t.Fatalf("Normalize(Admin) = %q, want admin", got)
	}
	for _, role := range []string{"superuser", ""} {
		if got := Normalize(role); got != "" {
			t.Fatalf("Normalize(%q) = %q, want no role", role, got)
		}
		if Can(Normalize(role), ActionViewPortal) {
			t.Fatalf("role %q may view portals", role)
		}
	}
}
