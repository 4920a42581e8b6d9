package monitor

import "time"

type Status struct {
	Storage       bool      `json:"storage"`
	StorageDriver string    `json:"storage_driver"`
	Backend       bool      `json:"backend"`
	Sessions      int       `json:"sessions"`
	LastCheck     time.Time `json:"last_check"`
}
