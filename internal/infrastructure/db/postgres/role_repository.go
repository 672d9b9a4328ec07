package postgres

import (
	"context"
	"fmt"

	"github.com/iam-platform/iam-service/internal/core/domain"
)

type RoleRepository struct {
	store *Store
}

func NewRoleRepository(store *Store) *RoleRepository {
	return &RoleRepository{store: store}
}

// Create inserts a role. A taken name yields domain.ErrConflict.
func (r *RoleRepository) Create(ctx context.Context, name string) (*domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	role := &domain.Role{Name: name}
	err := r.store.pool.QueryRow(ctx,
		`INSERT INTO roles (name) VALUES ($1) RETURNING id`, name,
	).Scan(&role.ID)
	if err != nil {
		if pgErrorCode(err) == codeUniqueViolation {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("insert role: %w", err)
	}
	return role, nil
}

func (r *RoleRepository) List(ctx context.Context) ([]*domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := r.store.pool.Query(ctx, `SELECT id, name FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles := make([]*domain.Role, 0)
	for rows.Next() {
		role := &domain.Role{}
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
