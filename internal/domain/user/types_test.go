package user

import "testing"

func TestTier_IsValid(t *testing.T) {
	tests := []struct {
		tier Tier
		want bool
	}{
		{TierFree, true},
		{TierPro, true},
		{TierEnterprise, true},
		{Tier("platinum"), false},
		{Tier(""), false},
	}

	for _, tt := range tests {
		if got := tt.tier.IsValid(); got != tt.want {
			t.Errorf("Tier(%q).IsValid() = %v, want %v", tt.tier, got, tt.want)
		}
	}
}

func TestRole_IsValid(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleUser, true},
		{RoleAdmin, true},
		{Role("superuser"), false},
	}

	for _, tt := range tests {
		if got := tt.role.IsValid(); got != tt.want {
			t.Errorf("Role(%q).IsValid() = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestUser_IsAdmin(t *testing.T) {
	u := &User{Role: RoleAdmin}
	if !u.IsAdmin() {
		t.Error("admin user should report IsAdmin")
	}

	u.Role = RoleUser
	if u.IsAdmin() {
		t.Error("regular user should not report IsAdmin")
	}
}

func TestUser_CanAccess(t *testing.T) {
	u := &User{}
	if !u.CanAccess() {
		t.Error("enabled user should have access")
	}

	u.Disabled = true
	if u.CanAccess() {
		t.Error("disabled user should not have access")
	}
}
