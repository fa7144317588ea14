package user

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("user not found")

// User is a marketplace account. Only active users may transact.
type User struct {
	ID     string
	Name   string
	Email  string
	Active bool
}

// Repository provides point reads of users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}
