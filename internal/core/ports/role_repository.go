package ports

import (
	"context"

	"github.com/iam-platform/iam-service/internal/core/domain"
)

// RoleRepository defines persistence operations for roles.
type RoleRepository interface {
	// Create returns domain.ErrConflict when the name is taken.
	Create(ctx context.Context, name string) (*domain.Role, error)
	List(ctx context.Context) ([]*domain.Role, error)
}
