package sendlog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Entry is one recorded delivery attempt.
type Entry struct {
	ID             string    `json:"id"`
	BatchID        string    `json:"batch_id"`
	SenderID       string    `json:"sender_id,omitempty"`
	SenderEmail    string    `json:"sender_email,omitempty"`
	RecipientEmail string    `json:"recipient_email"`
	RecipientName  string    `json:"recipient_name,omitempty"`
	Subject        string    `json:"subject,omitempty"`
	Status         string    `json:"status"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	SentAt         time.Time `json:"sent_at"`
}

// Filter narrows List results.
type Filter struct {
	BatchID     string
	Status      string
	SenderEmail string
	Search      string // matches recipient email, name or subject
	Limit       int
	Offset      int
}

// Stats are aggregate counts over log entries.
type Stats struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Repository reads and writes send log entries.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a send log repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a log entry, assigning ID and timestamp.
func (r *Repository) Create(e *Entry) error {
	e.ID = uuid.New().String()
	if e.SentAt.IsZero() {
		e.SentAt = time.Now()
	}

	_, err := r.db.Exec(`
		INSERT INTO send_log (id, batch_id, sender_id, sender_email, recipient_email,
			recipient_name, subject, status, error_kind, error_message, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.BatchID, nullString(e.SenderID), nullString(e.SenderEmail), e.RecipientEmail,
		nullString(e.RecipientName), nullString(e.Subject), e.Status,
		nullString(e.ErrorKind), nullString(e.ErrorMessage), e.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create log entry: %w", err)
	}
	return nil
}

// List returns entries matching the filter, newest first, plus the total
// count before limit/offset.
func (r *Repository) List(filter Filter) ([]Entry, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.BatchID != "" {
		where += " AND batch_id = ?"
		args = append(args, filter.BatchID)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.SenderEmail != "" {
		where += " AND sender_email = ?"
		args = append(args, filter.SenderEmail)
	}
	if filter.Search != "" {
		where += " AND (recipient_email LIKE ? OR recipient_name LIKE ? OR subject LIKE ?)"
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM send_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, batch_id, sender_id, sender_email, recipient_email,
			recipient_name, subject, status, error_kind, error_message, sent_at
		FROM send_log` + where + " ORDER BY sent_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var senderID, senderEmail, recipientName, subject, errorKind, errorMsg sql.NullString

		if err := rows.Scan(&e.ID, &e.BatchID, &senderID, &senderEmail, &e.RecipientEmail,
			&recipientName, &subject, &e.Status, &errorKind, &errorMsg, &e.SentAt); err != nil {
			return nil, 0, err
		}

		e.SenderID = senderID.String
		e.SenderEmail = senderEmail.String
		e.RecipientName = recipientName.String
		e.Subject = subject.String
		e.ErrorKind = errorKind.String
		e.ErrorMessage = errorMsg.String

		entries = append(entries, e)
	}

	return entries, total, rows.Err()
}

// GetStats returns aggregate counts, optionally scoped to one batch.
func (r *Repository) GetStats(batchID string) (*Stats, error) {
	query := `
		SELECT
			COUNT(*) as total,
			SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END) as sent,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) as failed
		FROM send_log`
	args := []any{}
	if batchID != "" {
		query += " WHERE batch_id = ?"
		args = append(args, batchID)
	}

	stats := &Stats{}
	var sent, failed sql.NullInt64
	if err := r.db.QueryRow(query, args...).Scan(&stats.Total, &sent, &failed); err != nil {
		return nil, err
	}
	stats.Sent = int(sent.Int64)
	stats.Failed = int(failed.Int64)
	return stats, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
