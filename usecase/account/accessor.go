// Package account is the facade pages and use cases go through to read and
// change a browser session.
package account

import (
	"context"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/session"
)

// Accessor is bound to one session store.
type Accessor struct {
	store *session.Store
}

func New(store *session.Store) *Accessor {
	return &Accessor{store: store}
}

func (a *Accessor) User() *domain.User {
	return a.store.Snapshot().User
}

func (a *Accessor) Token() string {
	return a.store.Snapshot().Token
}

func (a *Accessor) IsLoggedIn() bool {
	return a.store.Snapshot().IsLoggedIn()
}

// Ready closes once persisted state has been restored.
func (a *Accessor) Ready() <-chan struct{} {
	return a.store.Ready()
}

func (a *Accessor) SetUser(ctx context.Context, user *domain.User) {
	a.store.Dispatch(ctx, session.SetUser{User: user})
}

func (a *Accessor) SetToken(ctx context.Context, token string) {
	a.store.Dispatch(ctx, session.SetToken{Token: token})
}

func (a *Accessor) SetLoginState(ctx context.Context, loggedIn bool) {
	a.store.Dispatch(ctx, session.SetLoginState{LoggedIn: loggedIn})
}

// Logout resets every field.
func (a *Accessor) Logout(ctx context.Context) {
	a.store.Dispatch(ctx, session.Clear{})
}

// View is the session as templates and JSON clients may see it.
func (a *Accessor) View() domain.PublicSession {
	return a.store.Snapshot().Public()
}
