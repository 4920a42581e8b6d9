package transport

import (
	"strings"

	"github.com/fastygo/portal/domain"
)

// LoginRequest carries the identity provider token from the login page.
type LoginRequest struct {
	Token string `json:"token"`
	Next  string `json:"next"`
}

type RegisterRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Next      string `json:"next"`
}

// ProfileUpdateRequest mirrors the backend's PATCH /users body.
type ProfileUpdateRequest struct {
	Status    string  `json:"status"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	PhotoURL  *string `json:"photo_url"`
}

func (r ProfileUpdateRequest) ToDomain() domain.UserUpdate {
	return domain.UserUpdate{
		Status:    strings.TrimSpace(r.Status),
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Phone:     r.Phone,
		PhotoURL:  r.PhotoURL,
	}
}

// SafeNext keeps post-login redirects on this site.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return "/dashboard"
	}
	return next
}
