package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/iam-platform/iam-service/internal/core/domain"
	"github.com/iam-platform/iam-service/internal/core/ports"
)

const selectUserWithRole = `
	SELECT u.id, u.username, u.email, u.role_id, r.id, r.name
	FROM users u
	JOIN roles r ON r.id = u.role_id`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UserRepository struct {
	store *Store
}

func NewUserRepository(store *Store) *UserRepository {
	return &UserRepository{store: store}
}

// Create inserts the user and reads it back with its role in one transaction.
// The row is committed by the time Create returns.
func (r *UserRepository) Create(ctx context.Context, in ports.CreateUserInput) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var created *domain.User
	err := r.store.RunInTx(ctx, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx,
			`INSERT INTO users (username, email, role_id) VALUES ($1, $2, $3) RETURNING id`,
			in.Username, in.Email, in.RoleID,
		).Scan(&id)
		if err != nil {
			switch pgErrorCode(err) {
			case codeUniqueViolation:
				return domain.ErrConflict
			case codeForeignKeyViolation:
				return domain.ErrRoleNotFound
			}
			return fmt.Errorf("insert user: %w", err)
		}

		created, err = findUser(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// FindByID returns domain.ErrUserNotFound when no row matches.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return findUser(ctx, r.store.pool, id)
}

func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := r.store.pool.Query(ctx, selectUserWithRole+` ORDER BY u.id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]*domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func findUser(ctx context.Context, q querier, id int64) (*domain.User, error) {
	u, err := scanUser(q.QueryRow(ctx, selectUserWithRole+` WHERE u.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return u, err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	u := &domain.User{Role: &domain.Role{}}
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.RoleID, &u.Role.ID, &u.Role.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}
