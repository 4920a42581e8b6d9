package domain

import "time"

// User statuses as issued by the backend.
const (
	UserStatusActive    = "active"
	UserStatusInactive  = "inactive"
	UserStatusBanned    = "banned"
	UserStatusSuspended = "suspended"
	UserStatusPending   = "pending"
)

// User roles as issued by the backend.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
	RoleGuest = "guest"
	RoleSuper = "super"
)

// User represents the authenticated account returned by the backend API.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	FirebaseID       string    `json:"firebase_id"`
	StripeCustomerID string    `json:"stripe_customer_id"`
	Status           string    `json:"status"`
	Role             string    `json:"role"`
	Profile          Profile   `json:"profile"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Profile holds the personal details attached to a user.
type Profile struct {
	ID        int     `json:"id"`
	UserID    string  `json:"user_id,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	PhotoURL  *string `json:"photo_url,omitempty"`
}

// UserUpdate is the partial update accepted by the backend's PATCH /users.
type UserUpdate struct {
	Status    string  `json:"status"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	PhotoURL  *string `json:"photo_url,omitempty"`
}

func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}

// DisplayName prefers the profile name and falls back to the email.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	first, last := deref(u.Profile.FirstName), deref(u.Profile.LastName)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	}
	return u.Email
}

// Clone returns a deep copy so callers can never mutate a stored user in place.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.Profile = Profile{
		ID:        u.Profile.ID,
		UserID:    u.Profile.UserID,
		FirstName: cloneString(u.Profile.FirstName),
		LastName:  cloneString(u.Profile.LastName),
		Phone:     cloneString(u.Profile.Phone),
		PhotoURL:  cloneString(u.Profile.PhotoURL),
	}
	return &out
}

// Equal reports whether u and other describe the same user. Timestamps are
// compared as instants.
func (u *User) Equal(other *User) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.ID == other.ID &&
		u.Email == other.Email &&
		u.FirebaseID == other.FirebaseID &&
		u.StripeCustomerID == other.StripeCustomerID &&
		u.Status == other.Status &&
		u.Role == other.Role &&
		u.CreatedAt.Equal(other.CreatedAt) &&
		u.UpdatedAt.Equal(other.UpdatedAt) &&
		u.Profile.ID == other.Profile.ID &&
		u.Profile.UserID == other.Profile.UserID &&
		equalString(u.Profile.FirstName, other.Profile.FirstName) &&
		equalString(u.Profile.LastName, other.Profile.LastName) &&
		equalString(u.Profile.Phone, other.Profile.Phone) &&
		equalString(u.Profile.PhotoURL, other.Profile.PhotoURL)
}

// StringPtr returns nil for empty strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
