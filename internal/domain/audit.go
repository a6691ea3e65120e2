package domain

import "time"

// AuditEntry is a single row of the operational audit log: lease
// transitions, enable/disable events, and config reloads. It is distinct
// from RunRecord, which logs cognitive-cycle outcomes.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// NotificationEvent is a fan-out record for the notify package: auto-pause,
// permanent-disable, and fatal tick-level backoff. It never feeds back into
// scheduling decisions.
type NotificationEvent struct {
	TokenId   TokenId
	Kind      string
	Title     string
	Message   string
	CreatedAt time.Time
}
