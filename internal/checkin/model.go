package checkin

import (
	"strings"
	"time"

	"otpattend/internal/fault"
)

// Status is the classification stored with an attempt. It is derived once
// and never updated.
type Status string

const (
	StatusValid   Status = "valid"
	StatusExpired Status = "expired"
	StatusInvalid Status = "invalid"
	StatusError   Status = "error"
)

// Record is one check-in attempt. The record is the attempt itself, not the
// outcome of a successful attendance mark; failed validations are recorded
// too.
type Record struct {
	ID            string    `json:"id"`
	SubjectID     string    `json:"subject_id"`
	PresentedCode string    `json:"presented_code"`
	Status        Status    `json:"status"`
	AttemptedAt   time.Time `json:"attempted_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// Stats aggregates attempts over a date range.
type Stats struct {
	Total          int            `json:"total"`
	ByStatus       map[Status]int `json:"by_status"`
	UniqueSubjects int            `json:"unique_subjects"`
}

// NormalizeSubject canonicalizes a phone-number-like identity to digits only.
// A leading + and common separators are stripped; anything else is refused.
func NormalizeSubject(subject string) (string, error) {
	s := strings.TrimSpace(subject)
	s = strings.TrimPrefix(s, "+")
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// separator, dropped
		default:
			return "", fault.Validation("subject id contains invalid characters")
		}
	}
	normalized := b.String()
	if len(normalized) < 7 || len(normalized) > 15 {
		return "", fault.Validation("subject id must normalize to 7-15 digits")
	}
	return normalized, nil
}
