package domain

import "time"

// User is the minimal subject projection this core needs: identity,
// contact handle, and activation state. Profile data lives elsewhere.
type User struct {
	ID          string
	PhoneNumber string
	FirstName   *string
	LastName    *string
	IsActive    bool
	CreatedAt   time.Time
	DeletedAt   *time.Time
}

// CanAuthenticate reports whether sessions may be issued for the user.
func (u User) CanAuthenticate() bool {
	return u.IsActive && u.DeletedAt == nil
}

// DeviceInfo captures the client context a session is bound to.
type DeviceInfo struct {
	DeviceID  *string
	UserAgent *string
	IPAddress *string
}
