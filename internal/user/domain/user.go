package domain

import (
	"errors"
	"time"
)

// User is the core user entity. PasswordHash and RefreshTokenHash never leave the service layer.
type User struct {
	ID    string
	Email string
	Name  string
	Phone string // optional
	Role  Role
	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash string
	// RefreshTokenHash is the SHA-256 hex digest of the one valid refresh token; empty when logged out.
	// Only populated when sessions live in the users table.
	RefreshTokenHash string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleFleetManager Role = "fleet_manager"
	RoleUser         Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleFleetManager, RoleUser:
		return true
	}
	return false
}

var (
	// ErrEmailTaken is returned by repositories when the email unique constraint fails.
	ErrEmailTaken = errors.New("email already in use")
	// ErrNotFound is returned by repository writes that matched no row.
	ErrNotFound    = errors.New("user not found")
	ErrInvalidRole = errors.New("invalid role")
)

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Name == "" {
		return errors.New("name is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if !u.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}
