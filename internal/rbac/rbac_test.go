package rbac

import (
	"sort"
	"testing"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role string
		perm string
		want bool
	}{
		{RoleAdmin, PermConfirmOrder, true},
		{RoleAdmin, PermViewOrders, true},
		{RoleAdmin, PermCancelOrder, true},
		{RoleCustomer, PermViewOrders, false},
		{RoleCustomer, PermConfirmOrder, false},
		{RoleCustomer, PermCancelOrder, false},
		{"ghost", PermViewOrders, false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.perm, func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}

func TestAuthorizer(t *testing.T) {
	a := NewAuthorizer([]int64{10, 20})

	if !a.Can(10, PermConfirmOrder) {
		t.Error("admin 10 cannot confirm")
	}
	if a.Can(30, PermConfirmOrder) {
		t.Error("non-admin 30 can confirm")
	}
	if a.Can(30, PermViewOrders) {
		t.Error("customer can view orders")
	}
	if a.Role(20) != RoleAdmin || a.Role(0) != RoleCustomer {
		t.Error("unexpected roles")
	}

	admins := a.Admins()
	sort.Slice(admins, func(i, j int) bool { return admins[i] < admins[j] })
	if len(admins) != 2 || admins[0] != 10 || admins[1] != 20 {
		t.Errorf("Admins() = %v", admins)
	}

	if NewAuthorizer(nil).IsAdmin(10) {
		t.Error("empty allow-list grants admin")
	}
}
