package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique constraint rejects an insert.
var ErrConflict = errors.New("already exists")

// User represents a registered chat user. Username doubles as the user id
// embedded in room ids.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers returns all users ordered by username.
	ListUsers(ctx context.Context) ([]*User, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore

	// Close closes the underlying database connection.
	Close() error
}
