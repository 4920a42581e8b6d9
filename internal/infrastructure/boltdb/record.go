package boltdb

import (
	"encoding/json"
	"time"
)

// Record wraps a stored value with its write time so stale entries can be purged.
type Record struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (r *Record) normalize() {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	if len(r.Value) == 0 {
		r.Value = json.RawMessage("null")
	}
}
