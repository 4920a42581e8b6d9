package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/portal/domain"
)

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"":                     "/dashboard",
		"/dashboard":           "/dashboard",
		"/pricing?plan=pro":    "/pricing?plan=pro",
		"https://evil.example": "/dashboard",
		"//evil.example":       "/dashboard",
		"/\\evil.example":      "/dashboard",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeNext(in), in)
	}
}

func TestProfileUpdateRequest_ToDomain(t *testing.T) {
	phone := "555"
	got := ProfileUpdateRequest{Status: " active ", Phone: &phone}.ToDomain()
	assert.Equal(t, domain.UserUpdate{Status: domain.UserStatusActive, Phone: &phone}, got)
}

func TestEnvelope_String(t *testing.T) {
	assert.JSONEq(t, `{"status":"error","code":"INVALID","error":"bad"}`, NewError("INVALID", "bad", nil).String())
}

func TestRegisterRequest_DecodesNext(t *testing.T) {
	var req RegisterRequest
	require.NoError(t, json.Unmarshal([]byte(`{"email":"ada@example.com","next":"/pricing"}`), &req))
	assert.Equal(t, "/pricing", req.Next)

	assert.JSONEq(t, `{"status":"success","meta":{"next":"/pricing"}}`, NewSuccess(nil, Meta{Next: req.Next}).String())
}
