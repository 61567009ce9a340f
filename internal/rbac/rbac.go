package rbac

// Role constants
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// Permission constants
const (
	PermConfirmOrder = "confirm_order"
	PermCancelOrder  = "cancel_order" // отмена чужого заказа
	PermViewOrders   = "view_orders"
)

// RolePermissions defines what each role can do. Buying and downloading
// own products need no permission.
var RolePermissions = map[string][]string{
	RoleAdmin:    {PermConfirmOrder, PermCancelOrder, PermViewOrders},
	RoleCustomer: {},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// Authorizer resolves an actor's role from the admin allow-list.
type Authorizer struct {
	admins map[int64]struct{}
}

func NewAuthorizer(adminIDs []int64) *Authorizer {
	a := &Authorizer{admins: make(map[int64]struct{}, len(adminIDs))}
	for _, id := range adminIDs {
		a.admins[id] = struct{}{}
	}
	return a
}

func (a *Authorizer) Role(actorID int64) string {
	if _, ok := a.admins[actorID]; ok {
		return RoleAdmin
	}
	return RoleCustomer
}

func (a *Authorizer) IsAdmin(actorID int64) bool {
	return a.Role(actorID) == RoleAdmin
}

// Can is the single authorization check for every privileged operation.
func (a *Authorizer) Can(actorID int64, permission string) bool {
	return HasPermission(a.Role(actorID), permission)
}

// Admins returns the allow-listed ids, used for broadcast notifications.
func (a *Authorizer) Admins() []int64 {
	out := make([]int64, 0, len(a.admins))
	for id := range a.admins {
		out = append(out, id)
	}
	return out
}
