// Package actor identifies who performs an operation and with what authority.
package actor

// Role is the authority level an actor carries.
type Role string

const (
	// RoleCustomer may place orders and cancel their own pending
	// cash-on-delivery orders.
	RoleCustomer Role = "CUSTOMER"
	// RoleStaff may drive order lifecycles and manage discounts.
	RoleStaff Role = "STAFF"
	// RoleAdmin additionally reviews (approves/rejects) discounts.
	RoleAdmin Role = "ADMIN"
)

// Actor is the identity attached to every mutating operation.
type Actor struct {
	ID   string
	Role Role
}

// IsStaff reports whether the role carries staff-level authority.
func (r Role) IsStaff() bool {
	return r == RoleStaff || r == RoleAdmin
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleAdmin:
		return true
	}
	return false
}
