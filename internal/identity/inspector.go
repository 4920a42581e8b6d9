// Package identity reads the claims of identity provider tokens before they
// are handed to the backend. Signatures are checked by the backend, not here.
package identity

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
)

// Claims are the token fields the portal cares about.
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

type tokenClaims struct {
	Email  string `json:"email"`
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type Inspector struct {
	projectID string
	leeway    time.Duration
	parser    *jwt.Parser
	logger    *zap.Logger
	now       func() time.Time
}

// NewInspector checks audience against projectID when it is not empty.
func NewInspector(projectID string, leeway time.Duration, logger *zap.Logger) *Inspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if leeway < 0 {
		leeway = 0
	}
	return &Inspector{
		projectID: projectID,
		leeway:    leeway,
		parser:    jwt.NewParser(),
		logger:    logger,
		now:       time.Now,
	}
}

// Inspect rejects empty, malformed, expired or foreign tokens.
func (i *Inspector) Inspect(raw string) (Claims, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return Claims{}, domain.ErrNoToken
	}

	var claims tokenClaims
	if _, _, err := i.parser.ParseUnverified(raw, &claims); err != nil {
		i.logger.Warn("identity token rejected", zap.String("reason", "malformed"), zap.Error(err))
		return Claims{}, domain.WrapError(domain.ErrCodeUnauthorized, domain.ErrInvalidToken.Message, err)
	}

	if !claims.VerifyExpiresAt(i.now().Add(-i.leeway), true) {
		i.logger.Warn("identity token rejected", zap.String("reason", "expired"))
		return Claims{}, domain.ErrTokenExpired
	}
	if i.projectID != "" && !claims.VerifyAudience(i.projectID, true) {
		i.logger.Warn("identity token rejected", zap.String("reason", "audience"),
			zap.Strings("aud", claims.Audience))
		return Claims{}, domain.ErrInvalidToken
	}

	subject := claims.Subject
	if subject == "" {
		subject = claims.UserID
	}
	return Claims{
		Subject:   subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
