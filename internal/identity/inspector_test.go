package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/portal/domain"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func signToken(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("provider-key"))
	require.NoError(t, err)
	return raw
}

func validClaims() tokenClaims {
	return tokenClaims{
		Email: "a@b.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "fb-1",
			Audience:  jwt.ClaimStrings{"portal-project"},
			ExpiresAt: jwt.NewNumericDate(fixedNow.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(fixedNow),
		},
	}
}

func newInspector(projectID string) *Inspector {
	i := NewInspector(projectID, 30*time.Second, nil)
	i.now = func() time.Time { return fixedNow }
	return i
}

func TestInspect_Valid(t *testing.T) {
	raw := signToken(t, validClaims())

	got, err := newInspector("portal-project").Inspect(raw)
	require.NoError(t, err)
	assert.Equal(t, "fb-1", got.Subject)
	assert.Equal(t, "a@b.com", got.Email)
	assert.True(t, got.ExpiresAt.Equal(fixedNow.Add(time.Hour)))

	got, err = newInspector("").Inspect("Bearer " + raw)
	require.NoError(t, err)
	assert.Equal(t, "fb-1", got.Subject)
}

func TestInspect_FallsBackToUserID(t *testing.T) {
	c := validClaims()
	c.Subject = ""
	c.UserID = "fb-legacy"

	got, err := newInspector("").Inspect(signToken(t, c))
	require.NoError(t, err)
	assert.Equal(t, "fb-legacy", got.Subject)
}

func TestInspect_Rejections(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(fixedNow.Add(-time.Minute))

	withinLeeway := validClaims()
	withinLeeway.ExpiresAt = jwt.NewNumericDate(fixedNow.Add(-10 * time.Second))

	foreign := validClaims()
	foreign.Audience = jwt.ClaimStrings{"someone-else"}

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"empty", "", domain.ErrNoToken},
		{"expired", signToken(t, expired), domain.ErrTokenExpired},
		{"missing expiry", signToken(t, noExpiry), domain.ErrTokenExpired},
		{"foreign audience", signToken(t, foreign), domain.ErrInvalidToken},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newInspector("portal-project").Inspect(tc.raw)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	t.Run("malformed", func(t *testing.T) {
		_, err := newInspector("").Inspect("not-a-jwt")
		require.Error(t, err)
		assert.True(t, domain.IsDomainError(err, domain.ErrCodeUnauthorized))
	})

	t.Run("within leeway", func(t *testing.T) {
		_, err := newInspector("portal-project").Inspect(signToken(t, withinLeeway))
		assert.NoError(t, err)
	})
}
