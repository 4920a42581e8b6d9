// Package userapi exposes the backend user endpoints as cached queries and
// invalidating mutations.
package userapi

import (
	"context"

	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/querycache"
)

// Backend is the transport the service caches in front of.
type Backend interface {
	RegisterUser(ctx context.Context, token string, user *domain.User) (*domain.User, error)
	Login(ctx context.Context, token string) (*domain.User, error)
	Me(ctx context.Context, token string) (*domain.User, error)
	UpdateUser(ctx context.Context, token string, update domain.UserUpdate) (*domain.User, error)
	DeleteUser(ctx context.Context, token string) error
}

// Graph wires the user queries and mutations through the User tag.
func Graph() *querycache.Graph {
	return querycache.NewGraph().
		Provides(domain.QueryLogin, domain.TagUser).
		Provides(domain.QueryGetUserData, domain.TagUser).
		Invalidates(domain.MutationRegister, domain.TagUser).
		Invalidates(domain.MutationUpdate, domain.TagUser).
		Invalidates(domain.MutationDelete, domain.TagUser)
}

type Service struct {
	backend Backend
	cache   *querycache.Cache
	logger  *zap.Logger
}

// New builds the service and its cache over Graph.
func New(backend Backend, opts querycache.Options) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	cache, err := querycache.New(Graph(), opts)
	if err != nil {
		return nil, err
	}
	return &Service{
		backend: backend,
		cache:   cache,
		logger:  opts.Logger,
	}, nil
}

func (s *Service) Cache() *querycache.Cache {
	return s.cache
}

// Login is a query tagged User, keyed by token.
func (s *Service) Login(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrNoToken
	}
	u, err := querycache.Query(ctx, s.cache, querycache.Key{Kind: domain.QueryLogin, Arg: token},
		func(ctx context.Context) (*domain.User, error) {
			return s.backend.Login(ctx, token)
		})
	return u.Clone(), err
}

// GetUserData is a query tagged User, keyed by token.
func (s *Service) GetUserData(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrNoToken
	}
	u, err := querycache.Query(ctx, s.cache, querycache.Key{Kind: domain.QueryGetUserData, Arg: token},
		func(ctx context.Context) (*domain.User, error) {
			return s.backend.Me(ctx, token)
		})
	return u.Clone(), err
}

func (s *Service) RegisterUser(ctx context.Context, token string, user *domain.User) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrNoToken
	}
	if user == nil || user.Email == "" {
		return nil, domain.ErrInvalidPayload
	}
	return querycache.Mutate(ctx, s.cache, domain.MutationRegister, func(ctx context.Context) (*domain.User, error) {
		return s.backend.RegisterUser(ctx, token, user)
	})
}

func (s *Service) UpdateUser(ctx context.Context, token string, update domain.UserUpdate) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrNoToken
	}
	if update.Status == "" {
		return nil, domain.WrapError(domain.ErrCodeInvalid, "status is required", domain.ErrInvalidPayload)
	}
	return querycache.Mutate(ctx, s.cache, domain.MutationUpdate, func(ctx context.Context) (*domain.User, error) {
		return s.backend.UpdateUser(ctx, token, update)
	})
}

// DeleteUser removes the account and drops everything cached for token.
func (s *Service) DeleteUser(ctx context.Context, token string) error {
	if token == "" {
		return domain.ErrNoToken
	}
	_, err := querycache.Mutate(ctx, s.cache, domain.MutationDelete, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.DeleteUser(ctx, token)
	})
	if err == nil {
		s.cache.Forget(token)
	}
	return err
}

// Invalidate marks stale every query providing tags.
func (s *Service) Invalidate(tags ...domain.Tag) int {
	n := s.cache.Invalidate(tags...)
	s.logger.Debug("cache invalidated", zap.Int("entries", n))
	return n
}

// Forget drops every cached entry for token.
func (s *Service) Forget(token string) int {
	return s.cache.Forget(token)
}
