package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iam-platform/iam-service/internal/core/domain"
	"github.com/iam-platform/iam-service/internal/core/ports"
	"github.com/iam-platform/iam-service/internal/core/resilience"
	"github.com/iam-platform/iam-service/internal/pkg/metrics"
)

type UserService struct {
	users  ports.UserRepository
	cache  ports.Cache
	events ports.EventPublisher
	guard  resilience.Policy
	ttl    time.Duration
	logger zerolog.Logger
}

// NewUserService wires the user flows. guard wraps the whole read path; a
// non-positive ttl falls back to the cache's default expiry.
func NewUserService(
	users ports.UserRepository,
	cache ports.Cache,
	events ports.EventPublisher,
	guard resilience.Policy,
	ttl time.Duration,
	logger zerolog.Logger,
) *UserService {
	return &UserService{
		users:  users,
		cache:  cache,
		events: events,
		guard:  guard,
		ttl:    ttl,
		logger: logger,
	}
}

// CreateUser commits the row, then publishes the creation event, then
// populates the cache. Only the insert can fail the call.
func (s *UserService) CreateUser(ctx context.Context, in ports.CreateUserInput) (*domain.User, error) {
	user, err := s.users.Create(ctx, in)
	if err != nil {
		if !domain.IsDomainError(err) {
			s.logger.Error().Err(err).Str("username", in.Username).Msg("failed to create user")
		}
		return nil, err
	}
	metrics.UsersCreatedTotal.Inc()

	message := fmt.Sprintf("User %s created.", user.Username)
	if err := s.events.Publish(ctx, ports.QueueUserCreated, message); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("user created event not published")
	}

	s.populate(ctx, user.ID, user.Username)

	s.logger.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("user created")
	return user, nil
}

// GetUser serves the summary from the cache when possible and falls back to
// the store on a miss. Cache or store failures are retried and circuit-broken
// by the guard; an unknown id is not a failure and is never retried.
func (s *UserService) GetUser(ctx context.Context, id int64) (*ports.UserSummary, error) {
	summary, err := resilience.Do(ctx, s.guard, func(ctx context.Context) (*ports.UserSummary, error) {
		return s.lookup(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, domain.ErrUserNotFound
	}
	return summary, nil
}

// lookup returns a nil summary for an unknown id.
func (s *UserService) lookup(ctx context.Context, id int64) (*ports.UserSummary, error) {
	key := domain.UserCacheKey(id)

	username, found, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if found {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return &ports.UserSummary{ID: id, Username: username}, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()

	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.populate(ctx, user.ID, user.Username)
	return &ports.UserSummary{ID: user.ID, Username: user.Username}, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.users.List(ctx)
}

// populate writes id -> username into the cache. Failures are logged and
// counted, never returned.
func (s *UserService) populate(ctx context.Context, id int64, username string) {
	if err := s.cache.Set(ctx, domain.UserCacheKey(id), username, s.ttl); err != nil {
		metrics.CacheWriteFailuresTotal.Inc()
		s.logger.Warn().Err(err).Int64("user_id", id).Msg("cache population skipped")
	}
}
