package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/iam-platform/iam-service/internal/core/domain"
	"github.com/iam-platform/iam-service/internal/core/ports"
)

type RoleService struct {
	repo   ports.RoleRepository
	logger zerolog.Logger
}

func NewRoleService(repo ports.RoleRepository, logger zerolog.Logger) *RoleService {
	return &RoleService{repo: repo, logger: logger}
}

func (s *RoleService) CreateRole(ctx context.Context, name string) (*domain.Role, error) {
	role, err := s.repo.Create(ctx, name)
	if err != nil {
		if !domain.IsDomainError(err) {
			s.logger.Error().Err(err).Str("name", name).Msg("failed to create role")
		}
		return nil, err
	}

	s.logger.Info().Int64("role_id", role.ID).Str("name", role.Name).Msg("role created")
	return role, nil
}

func (s *RoleService) ListRoles(ctx context.Context) ([]*domain.Role, error) {
	return s.repo.List(ctx)
}
