// Package audit records security-relevant user events in a sheet.
//
// Entries are appended through the same record store as users, newest row
// first. A cron scheduler prunes entries past the retention window.
package audit

import "time"

// Action is the kind of event being recorded.
type Action string

const (
	ActionLogin       Action = "login"
	ActionLoginFailed Action = "login_failed"
	ActionUserCreate  Action = "user_create"
	ActionUserUpdate  Action = "user_update"
	ActionUserDelete  Action = "user_delete"
)

// Severity ranks an entry for review.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Field names of the audit sheet.
const (
	FieldID        = "id"
	FieldAction    = "action"
	FieldSeverity  = "severity"
	FieldDocument  = "document"
	FieldUserID    = "userId"
	FieldIP        = "ip"
	FieldUserAgent = "userAgent"
	FieldCreatedAt = "createdAt"
)

// Fields is the audit sheet header set.
var Fields = []string{
	FieldID, FieldAction, FieldSeverity, FieldDocument, FieldUserID, FieldIP, FieldUserAgent, FieldCreatedAt,
}

// Entry is one audit row.
type Entry struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	Severity  Severity  `json:"severity"`
	Document  string    `json:"document,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SeverityOf returns the severity recorded for action.
func SeverityOf(action Action) Severity {
	switch action {
	case ActionLoginFailed, ActionUserDelete:
		return SeverityHigh
	case ActionUserUpdate:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
