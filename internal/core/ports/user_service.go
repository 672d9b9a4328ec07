package ports

import (
	"context"

	"github.com/iam-platform/iam-service/internal/core/domain"
)

// UserSummary is the cache-backed view returned by GetUser.
type UserSummary struct {
	ID       int64
	Username string
}

// UserService defines use-case operations for users.
type UserService interface {
	CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error)
	// GetUser returns domain.ErrUserNotFound when the id is unknown.
	GetUser(ctx context.Context, id int64) (*UserSummary, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
}

// RoleService defines use-case operations for roles.
type RoleService interface {
	CreateRole(ctx context.Context, name string) (*domain.Role, error)
	ListRoles(ctx context.Context) ([]*domain.Role, error)
}
