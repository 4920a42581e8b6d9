package session

import "github.com/fastygo/portal/domain"

// Command is a typed mutation of a session's state.
type Command interface {
	// Name identifies the command in logs.
	Name() string
	// Fields lists the persisted-document fields the command touches.
	Fields() []string
	apply(domain.SessionState) domain.SessionState
}

// SetUser replaces the whole user record.
type SetUser struct {
	User *domain.User
}

func (SetUser) Name() string     { return "setUser" }
func (SetUser) Fields() []string { return []string{domain.FieldUser} }

func (c SetUser) apply(s domain.SessionState) domain.SessionState {
	s.User = c.User.Clone()
	return s
}

// SetToken replaces the bearer token. An empty token means absent.
type SetToken struct {
	Token string
}

func (SetToken) Name() string     { return "setToken" }
func (SetToken) Fields() []string { return []string{domain.FieldToken} }

func (c SetToken) apply(s domain.SessionState) domain.SessionState {
	s.Token = c.Token
	return s
}

// SetLoginState records the login flag. IsLoggedIn still requires a token.
type SetLoginState struct {
	LoggedIn bool
}

func (SetLoginState) Name() string     { return "setLoginState" }
func (SetLoginState) Fields() []string { return []string{domain.FieldIsLoggedIn} }

func (c SetLoginState) apply(s domain.SessionState) domain.SessionState {
	s.LoginFlag = c.LoggedIn
	return s
}

// Clear resets every field to its initial empty value.
type Clear struct{}

func (Clear) Name() string { return "clear" }

func (Clear) Fields() []string {
	return []string{domain.FieldUser, domain.FieldToken, domain.FieldIsLoggedIn}
}

func (Clear) apply(domain.SessionState) domain.SessionState {
	return domain.SessionState{}
}
