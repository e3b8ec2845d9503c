package model

import "time"

// Known setting keys. Settings form a small operator-mutable key/value map.
const (
	// SettingLogChannel is the platform channel reference the auth callback
	// posts a line to after a completed verification. Unset means no logging.
	SettingLogChannel = "log_channel"
)

// Setting is one operator-set configuration entry.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
