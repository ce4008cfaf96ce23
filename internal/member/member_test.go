package member

import "testing"

func TestCanAdd(t *testing.T) {
	t.Parallel()

	if !CanAdd(RoleOwner) || !CanAdd(RoleAdmin) {
		t.Error("owners and admins should be able to add members")
	}
	if CanAdd(RoleMember) {
		t.Error("plain members must not add members")
	}
}

func TestCanRemove(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		actorRole  string
		targetRole string
		self       bool
		want       bool
	}{
		{name: "member leaves", actorRole: RoleMember, targetRole: RoleMember, self: true, want: true},
		{name: "admin leaves", actorRole: RoleAdmin, targetRole: RoleAdmin, self: true, want: true},
		{name: "owner cannot leave", actorRole: RoleOwner, targetRole: RoleOwner, self: true, want: false},
		{name: "owner removes admin", actorRole: RoleOwner, targetRole: RoleAdmin, want: true},
		{name: "owner removes member", actorRole: RoleOwner, targetRole: RoleMember, want: true},
		{name: "admin removes member", actorRole: RoleAdmin, targetRole: RoleMember, want: true},
		{name: "admin cannot remove admin", actorRole: RoleAdmin, targetRole: RoleAdmin, want: false},
		{name: "member cannot remove anyone", actorRole: RoleMember, targetRole: RoleMember, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CanRemove(tt.actorRole, tt.targetRole, tt.self); got != tt.want {
				t.Errorf("CanRemove(%s, %s, self=%v) = %v, want %v",
					tt.actorRole, tt.targetRole, tt.self, got, tt.want)
			}
		})
	}
}

func TestCanChangeRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		actorRole  string
		targetRole string
		newRole    string
		want       bool
	}{
		{name: "owner promotes member", actorRole: RoleOwner, targetRole: RoleMember, newRole: RoleAdmin, want: true},
		{name: "admin promotes member", actorRole: RoleAdmin, targetRole: RoleMember, newRole: RoleAdmin, want: true},
		{name: "member promotes member", actorRole: RoleMember, targetRole: RoleMember, newRole: RoleAdmin, want: false},
		{name: "owner demotes admin", actorRole: RoleOwner, targetRole: RoleAdmin, newRole: RoleMember, want: true},
		{name: "admin demotes admin", actorRole: RoleAdmin, targetRole: RoleAdmin, newRole: RoleMember, want: false},
		{name: "owner transfers ownership", actorRole: RoleOwner, targetRole: RoleAdmin, newRole: RoleOwner, want: true},
		{name: "admin cannot seize ownership", actorRole: RoleAdmin, targetRole: RoleAdmin, newRole: RoleOwner, want: false},
		{name: "member straight to owner", actorRole: RoleOwner, targetRole: RoleMember, newRole: RoleOwner, want: false},
		{name: "no-op change", actorRole: RoleOwner, targetRole: RoleAdmin, newRole: RoleAdmin, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CanChangeRole(tt.actorRole, tt.targetRole, tt.newRole); got != tt.want {
				t.Errorf("CanChangeRole(%s, %s→%s) = %v, want %v",
					tt.actorRole, tt.targetRole, tt.newRole, got, tt.want)
			}
		})
	}
}

func TestValidRole(t *testing.T) {
	t.Parallel()

	for _, role := range []string{RoleOwner, RoleAdmin, RoleMember} {
		if !ValidRole(role) {
			t.Errorf("ValidRole(%s) = false", role)
		}
	}
	for _, role := range []string{"", "owner", "SUPERADMIN"} {
		if ValidRole(role) {
			t.Errorf("ValidRole(%q) = true", role)
		}
	}
}
