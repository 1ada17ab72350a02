package service

import "errors"

var ErrForbidden = errors.New("forbidden: insufficient permissions")

type AuditEntry struct {
	UserID       string
	UserRole     string
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	RequestID    string
	Changes      string
}
