package domain

// Persistable session fields, named as they appear in the persisted document.
const (
	FieldUser       = "user"
	FieldToken      = "token"
	FieldIsLoggedIn = "isLoggedIn"
)

// SessionState is the per-browser record of the current user and access token.
type SessionState struct {
	User      *User  `json:"user"`
	Token     string `json:"token,omitempty"`
	LoginFlag bool   `json:"isLoggedIn"`
}

// IsLoggedIn reports a login only while a token is present.
func (s SessionState) IsLoggedIn() bool {
	return s.LoginFlag && s.Token != ""
}

// HasToken reports whether a bearer token is held.
func (s SessionState) HasToken() bool {
	return s.Token != ""
}

// Clone copies the state including the user record.
func (s SessionState) Clone() SessionState {
	s.User = s.User.Clone()
	return s
}

// PublicSession is the session view safe to hand to templates and JSON clients.
type PublicSession struct {
	User       *User `json:"user"`
	IsLoggedIn bool  `json:"is_logged_in"`
}

// Public strips the token from the state.
func (s SessionState) Public() PublicSession {
	return PublicSession{
		User:       s.User.Clone(),
		IsLoggedIn: s.IsLoggedIn(),
	}
}

// IsPersistableField reports whether name may appear in a persistence whitelist.
func IsPersistableField(name string) bool {
	switch name {
	case FieldUser, FieldToken, FieldIsLoggedIn:
		return true
	}
	return false
}
