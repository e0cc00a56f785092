package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer triage", role: RoleViewer, action: ActionTriage, allow: false},
		{name: "viewer manage", role: RoleViewer, action: ActionManage, allow: false},
		{name: "analyst read", role: RoleAnalyst, action: ActionRead, allow: true},
		{name: "analyst triage", role: RoleAnalyst, action: ActionTriage, allow: true},
		{name: "analyst manage", role: RoleAnalyst, action: ActionManage, allow: false},
		{name: "admin manage", role: RoleAdmin, action: ActionManage, allow: true},
		{name: "unknown role", role: Role("owner"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalizeFallsBackToViewer(t *testing.T) {
	if got := Normalize("superuser"); got != RoleViewer {
		t.Fatalf("expected unknown role to normalize to viewer, got %q", got)
	}
	if got := Normalize("analyst"); got != RoleAnalyst {
		t.Fatalf("expected analyst to survive normalization, got %q", got)
	}
}
