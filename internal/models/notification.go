package models

import (
	"errors"
	"strings"
	"time"
)

// Type classifies a notification for icon, styling and filter buckets.
type Type string

const (
	TypeAlert   Type = "alert"
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
)

// Severity is the optional urgency attached to a notification.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Notification is a single timestamped event surfaced to the user.
type Notification struct {
	// Unique identifier, assigned by the store
	ID string `json:"id"`

	Type    Type   `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`

	// Creation time, never changes after the store stamps it
	Timestamp time.Time `json:"timestamp"`

	// Read only ever goes from false to true
	Read bool `json:"read"`

	Location string   `json:"location,omitempty"`
	Severity Severity `json:"severity,omitempty"`
}

// Payload is what callers hand to the store. The store fills in
// ID, Timestamp and Read.
type Payload struct {
	Type     Type     `json:"type"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Location string   `json:"location,omitempty"`
	Severity Severity `json:"severity,omitempty"`
}

// IsAlerting reports whether the notification lands in the alerts tab.
func (n Notification) IsAlerting() bool {
	return n.Type == TypeAlert || n.Type == TypeWarning
}

// Payload validation errors. The store itself accepts anything; these are
// used at the HTTP boundary.
var (
	ErrInvalidType     = errors.New("invalid notification type")
	ErrInvalidSeverity = errors.New("invalid notification severity")
	ErrEmptyTitle      = errors.New("title cannot be empty")
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrMessageTooLong  = errors.New("message exceeds maximum length")
)

const MaxMessageLength = 4096

// Normalize trims free-text fields and lower-cases the enums.
func (p *Payload) Normalize() {
	p.Type = Type(strings.ToLower(strings.TrimSpace(string(p.Type))))
	p.Severity = Severity(strings.ToLower(strings.TrimSpace(string(p.Severity))))
	p.Title = strings.TrimSpace(p.Title)
	p.Message = strings.TrimSpace(p.Message)
	p.Location = strings.TrimSpace(p.Location)
}

// Validate checks a payload coming from outside the process.
func (p *Payload) Validate() error {
	if !p.Type.IsValid() {
		return ErrInvalidType
	}

	// severity is optional
	if p.Severity != "" && !p.Severity.IsValid() {
		return ErrInvalidSeverity
	}

	if p.Title == "" {
		return ErrEmptyTitle
	}

	if p.Message == "" {
		return ErrEmptyMessage
	}

	if len(p.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}

	return nil
}

// IsValid checks if the type is one of the known buckets
func (t Type) IsValid() bool {
	switch t {
	case TypeAlert, TypeInfo, TypeSuccess, TypeWarning:
		return true
	default:
		return false
	}
}

// IsValid checks if the severity level is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}
