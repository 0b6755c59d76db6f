// Package actor defines the authenticated identity performing an operation.
package actor

// Role classifies what a user is allowed to do on the platform.
type Role string

const (
	RoleStudent Role = "student"
	RoleCompany Role = "company"
	RoleAdmin   Role = "admin"
)

// Actor is the authenticated identity (id + role) attached to a request.
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// User is a directory record resolved from the external user directory.
// Only the fields the core reads are carried.
type User struct {
	ID       string
	Username string
	FullName string
	Email    string
	Role     Role
}

// DisplayName returns the name a client should render for the user.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}
