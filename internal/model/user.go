package model

import "time"

// UserStatus represents the status of a user account
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusLocked   UserStatus = "locked"
	UserStatusDisabled UserStatus = "disabled"
)

// User represents the core user entity. The four quarantine fields are
// written by the containment actuator and read by the auth middleware.
type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	Role                string     `json:"role"`
	Status              UserStatus `json:"status"`
	LockedUntil         *time.Time `json:"lockedUntil,omitempty"`
	ForceLogoutAfter    *time.Time `json:"forceLogoutAfter,omitempty"`
	QuarantineReason    *string    `json:"securityQuarantineReason,omitempty"`
	QuarantineUpdatedAt *time.Time `json:"securityQuarantineUpdatedAt,omitempty"`
	LastLoginAt         *time.Time `json:"lastLoginAt,omitempty"`
	LastLoginIP         *string    `json:"lastLoginIp,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// IsLocked checks if the user account is currently locked
func (u *User) IsLocked() bool {
	if u.LockedUntil == nil {
		return false
	}
	return time.Now().Before(*u.LockedUntil)
}

// SessionValidAt reports whether a session issued at issuedAt is still
// acceptable. Quarantine sets force_logout_after; any session issued at or
// before that instant is invalid regardless of its nominal lifetime, which
// revokes outstanding sessions without a session registry.
func (u *User) SessionValidAt(issuedAt time.Time) bool {
	if u.ForceLogoutAfter == nil {
		return true
	}
	return issuedAt.After(*u.ForceLogoutAfter)
}
