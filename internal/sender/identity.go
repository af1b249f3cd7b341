// Package sender manages outreach mailbox identities: their SMTP
// credentials, per-day quotas and round-robin rotation.
package sender

import "time"

// DateFormat is the calendar-date format used for daily counter resets.
const DateFormat = "2006-01-02"

// Identity is one configured sender mailbox.
type Identity struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	SMTPHost   string    `json:"smtp_host"`
	SMTPPort   int       `json:"smtp_port"`
	Password   string    `json:"password"`
	DailyLimit int       `json:"daily_limit"`
	SentToday  int       `json:"sent_today"`
	LastReset  string    `json:"last_reset"` // calendar date, DateFormat
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Eligible reports whether this identity may send right now: it must be
// active, carry a credential, and still have quota left today.
func (id *Identity) Eligible() bool {
	return id.Active && id.Password != "" && id.SentToday < id.DailyLimit
}

// ResetIfStale zeroes the daily counter when the stored reset date is not
// today. Returns true if a reset happened.
func (id *Identity) ResetIfStale(today string) bool {
	if id.LastReset == today {
		return false
	}
	id.SentToday = 0
	id.LastReset = today
	return true
}

// Today returns the current calendar date in DateFormat.
func Today() string {
	return time.Now().Format(DateFormat)
}
