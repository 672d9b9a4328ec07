package ports

import (
	"context"

	"github.com/iam-platform/iam-service/internal/core/domain"
)

// CreateUserInput carries the validated fields of a new user.
type CreateUserInput struct {
	Username string
	Email    string
	RoleID   int64
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	// Create inserts the user and commits before returning. The returned user
	// carries the store-assigned ID and the joined role.
	// Returns domain.ErrConflict on a duplicate username or email and
	// domain.ErrRoleNotFound when RoleID does not reference an existing role.
	Create(ctx context.Context, in CreateUserInput) (*domain.User, error)
	// FindByID returns domain.ErrUserNotFound when no row matches.
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
}
