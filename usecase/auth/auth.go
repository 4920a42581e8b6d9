package auth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/identity"
	"github.com/fastygo/portal/usecase/account"
)

type Inspector interface {
	Inspect(raw string) (identity.Claims, error)
}

type UserAPI interface {
	Login(ctx context.Context, token string) (*domain.User, error)
	GetUserData(ctx context.Context, token string) (*domain.User, error)
	RegisterUser(ctx context.Context, token string, user *domain.User) (*domain.User, error)
	UpdateUser(ctx context.Context, token string, update domain.UserUpdate) (*domain.User, error)
	DeleteUser(ctx context.Context, token string) error
	Invalidate(tags ...domain.Tag) int
	Forget(token string) int
}

// Sessions releases the persisted state of a browser session.
type Sessions interface {
	Release(ctx context.Context, sid string) error
}

// Registration carries the fields collected by the register form.
type Registration struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

type UseCase struct {
	inspector Inspector
	users     UserAPI
	sessions  Sessions
	logger    *zap.Logger
}

func New(inspector Inspector, users UserAPI, sessions Sessions, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		inspector: inspector,
		users:     users,
		sessions:  sessions,
		logger:    logger,
	}
}

// IdentityError marks a token the identity checks refused before any backend call.
type IdentityError struct {
	Err error
}

func (e *IdentityError) Error() string {
	return "identity token rejected: " + e.Err.Error()
}

func (e *IdentityError) Unwrap() error {
	return e.Err
}

// IsIdentityError reports whether err came from token inspection.
func IsIdentityError(err error) bool {
	var idErr *IdentityError
	return errors.As(err, &idErr)
}

// Login stores the identity token in the session and resolves the backend
// user. The token stays in the session when the backend refuses it, so an
// unregistered identity can continue to registration.
func (uc *UseCase) Login(ctx context.Context, acc *account.Accessor, raw string) (*domain.User, error) {
	claims, err := uc.inspector.Inspect(raw)
	if err != nil {
		uc.logger.Info("login refused by identity checks", zap.Error(err))
		return nil, &IdentityError{Err: err}
	}
	token := normalizeToken(raw)

	acc.SetToken(ctx, token)
	user, err := uc.users.Login(ctx, token)
	if err != nil {
		acc.SetLoginState(ctx, false)
		uc.logger.Warn("backend login failed",
			zap.String("subject", claims.Subject),
			zap.String("code", string(domain.CodeOf(err))),
			zap.Error(err))
		return nil, err
	}

	acc.SetUser(ctx, user)
	acc.SetLoginState(ctx, true)
	uc.logger.Info("user logged in", zap.String("user_id", user.ID), zap.String("subject", claims.Subject))
	return user, nil
}

// Register creates the backend account for the token already in the session.
func (uc *UseCase) Register(ctx context.Context, acc *account.Accessor, reg Registration) (*domain.User, error) {
	token := acc.Token()
	if token == "" {
		return nil, domain.ErrNoToken
	}
	email := strings.TrimSpace(reg.Email)
	if email == "" {
		return nil, domain.WrapError(domain.ErrCodeInvalid, "email is required", domain.ErrInvalidPayload)
	}

	created, err := uc.users.RegisterUser(ctx, token, &domain.User{
		Email: email,
		Profile: domain.Profile{
			FirstName: domain.StringPtr(strings.TrimSpace(reg.FirstName)),
			LastName:  domain.StringPtr(strings.TrimSpace(reg.LastName)),
			Phone:     domain.StringPtr(strings.TrimSpace(reg.Phone)),
		},
	})
	if err != nil {
		return nil, err
	}

	acc.SetUser(ctx, created)
	acc.SetLoginState(ctx, true)
	uc.logger.Info("user registered", zap.String("user_id", created.ID))
	return created, nil
}

// Refresh reloads the user through the cache. A token the backend no longer
// accepts ends the login.
func (uc *UseCase) Refresh(ctx context.Context, acc *account.Accessor) (*domain.User, error) {
	token := acc.Token()
	if token == "" {
		return nil, domain.ErrNoToken
	}
	user, err := uc.users.GetUserData(ctx, token)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeUnauthorized) {
			acc.SetLoginState(ctx, false)
		}
		return nil, err
	}
	if !acc.User().Equal(user) {
		acc.SetUser(ctx, user)
	}
	return user, nil
}

func (uc *UseCase) UpdateProfile(ctx context.Context, acc *account.Accessor, update domain.UserUpdate) (*domain.User, error) {
	token := acc.Token()
	if token == "" {
		return nil, domain.ErrNoToken
	}
	if update.Status == "" && acc.User() != nil {
		update.Status = acc.User().Status
	}
	updated, err := uc.users.UpdateUser(ctx, token, update)
	if err != nil {
		return nil, err
	}
	acc.SetUser(ctx, updated)
	return updated, nil
}

// DeleteAccount removes the backend account and ends the session.
func (uc *UseCase) DeleteAccount(ctx context.Context, acc *account.Accessor, sid string) error {
	token := acc.Token()
	if token == "" {
		return domain.ErrNoToken
	}
	if err := uc.users.DeleteUser(ctx, token); err != nil {
		return err
	}
	return uc.Logout(ctx, acc, sid)
}

// Logout drops cached user data, clears the session and removes its
// persisted state.
func (uc *UseCase) Logout(ctx context.Context, acc *account.Accessor, sid string) error {
	if token := acc.Token(); token != "" {
		uc.users.Forget(token)
	}
	uc.users.Invalidate(domain.TagUser)
	acc.Logout(ctx)

	if err := uc.sessions.Release(ctx, sid); err != nil {
		uc.logger.Warn("failed to release session state", zap.Error(err))
		return err
	}
	return nil
}

func normalizeToken(raw string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
}
