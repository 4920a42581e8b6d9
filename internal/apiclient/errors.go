package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/fastygo/portal/domain"
)

// Kind classifies a failed backend call.
type Kind string

const (
	KindNetwork  Kind = "network"
	KindStatus   Kind = "status"
	KindDecode   Kind = "decode"
	KindCanceled Kind = "canceled"
)

const maxMessageLen = 256

// Error is returned by every Client method that fails.
type Error struct {
	Kind     Kind
	Endpoint string
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		if e.Message != "" {
			return fmt.Sprintf("%s: backend returned %d: %s", e.Endpoint, e.Status, e.Message)
		}
		return fmt.Sprintf("%s: backend returned %d", e.Endpoint, e.Status)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Endpoint, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code maps the failure onto the domain classification used by handlers.
func (e *Error) Code() domain.ErrorCode {
	switch e.Kind {
	case KindNetwork, KindCanceled:
		return domain.ErrCodeUnavailable
	case KindDecode:
		return domain.ErrCodeMalformed
	}
	switch e.Status {
	case http.StatusUnauthorized:
		return domain.ErrCodeUnauthorized
	case http.StatusForbidden:
		return domain.ErrCodeForbidden
	case http.StatusNotFound:
		return domain.ErrCodeNotFound
	case http.StatusConflict:
		return domain.ErrCodeConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ErrCodeInvalid
	}
	return domain.ErrCodeUpstream
}

// Temporary reports whether retrying the same call may succeed.
func (e *Error) Temporary() bool {
	return e.Kind == KindNetwork || (e.Kind == KindStatus && e.Status >= http.StatusInternalServerError)
}

// statusMessage pulls a human readable message out of an error body. JSON
// bodies with "message" or "error" are preferred; anything else is truncated.
func statusMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if s, ok := payload.Error.(string); ok && s != "" {
			return s
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxMessageLen {
		cut := maxMessageLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return msg
}
