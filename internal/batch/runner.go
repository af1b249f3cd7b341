package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mailflock/mailflock/internal/recipient"
	"github.com/mailflock/mailflock/internal/sender"
	"github.com/mailflock/mailflock/internal/sendlog"
	"github.com/mailflock/mailflock/internal/smtp"
	"github.com/mailflock/mailflock/internal/template"
)

// DefaultPace is the pause between consecutive deliveries.
const DefaultPace = 500 * time.Millisecond

// errCancelled marks recipients skipped after a batch cancellation.
var errCancelled = errors.New("batch cancelled")

// Failure kinds for outcomes decided before any connection is opened. They
// extend the transport taxonomy in the send log and metrics.
const (
	KindNoEligibleSender = "no_eligible_sender"
	KindCancelled        = "cancelled"
)

// failureKind classifies a failed recipient for journaling.
func failureKind(err error) string {
	switch {
	case errors.Is(err, sender.ErrNoEligibleSender):
		return KindNoEligibleSender
	case errors.Is(err, errCancelled):
		return KindCancelled
	}
	return string(smtp.KindOf(err))
}

// Progress describes the outcome for one recipient. The callback fires
// exactly once per recipient, in input order.
type Progress struct {
	Index       int // 0-based position in the batch
	Total       int
	Recipient   recipient.Recipient
	SenderEmail string // empty when no sender was selected
	Sent        bool
	Err         error // nil on success
}

// ProgressFunc receives per-recipient progress during a run.
type ProgressFunc func(Progress)

// Result summarizes a completed batch. TotalSent+TotalFailed always equals
// the number of recipients submitted.
type Result struct {
	BatchID     string   `json:"batch_id"`
	TotalSent   int      `json:"total_sent"`
	TotalFailed int      `json:"total_failed"`
	Errors      []string `json:"errors,omitempty"`
}

// Runner executes batches sequentially: one recipient at a time, rotating
// senders, pausing between deliveries. A failed recipient never aborts the
// batch; cancellation is honored only between recipients.
type Runner struct {
	transport Transport
	pace      time.Duration
	logger    *slog.Logger
	journal   *sendlog.Repository
	observer  Observer
}

// Observer receives delivery outcomes for metrics. Optional.
type Observer interface {
	BatchStarted(eligibleSenders int)
	EmailSent(senderEmail string)
	EmailFailed(senderEmail string, kind string)
	BatchFinished(duration time.Duration, sent, failed int)
}

// NewRunner creates a batch runner. pace <= 0 selects DefaultPace; journal
// may be nil to skip persistence.
func NewRunner(transport Transport, pace time.Duration, logger *slog.Logger, journal *sendlog.Repository) *Runner {
	if pace <= 0 {
		pace = DefaultPace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		transport: transport,
		pace:      pace,
		logger:    logger.With("component", "batch"),
		journal:   journal,
	}
}

// SetObserver attaches a metrics observer.
func (r *Runner) SetObserver(o Observer) {
	r.observer = o
}

// Run sends the template to every recipient using senders from pool. A batch
// ID is assigned when batchID is empty. progress may be nil.
func (r *Runner) Run(ctx context.Context, batchID string, pool *sender.Pool, tmpl template.Template, recipients []recipient.Recipient, progress ProgressFunc) *Result {
	if batchID == "" {
		batchID = uuid.New().String()
	}
	result := &Result{BatchID: batchID}
	start := time.Now()
	if r.observer != nil {
		r.observer.BatchStarted(pool.EligibleCount())
	}

	r.logger.Info("batch started",
		"batch_id", batchID,
		"recipients", len(recipients),
		"senders", len(pool.Identities()))

	cancelled := false
	for i, rcpt := range recipients {
		// Cancellation is only observed here, never mid-delivery.
		if cancelled || ctx.Err() != nil {
			cancelled = true
			r.recordFailure(batchID, nil, rcpt, "", errCancelled, result)
			r.report(progress, Progress{Index: i, Total: len(recipients), Recipient: rcpt, Err: errCancelled})
			continue
		}

		id, err := pool.Next()
		if err != nil {
			r.recordFailure(batchID, nil, rcpt, "", err, result)
			r.report(progress, Progress{Index: i, Total: len(recipients), Recipient: rcpt, Err: err})
			r.pause(ctx, i, len(recipients))
			continue
		}

		subject, body := tmpl.RenderFor(rcpt)
		err = r.transport.Send(ctx, id, rcpt, subject, body)
		if err != nil {
			r.recordFailure(batchID, id, rcpt, subject, err, result)
			r.report(progress, Progress{Index: i, Total: len(recipients), Recipient: rcpt, SenderEmail: id.Email, Err: err})
			r.pause(ctx, i, len(recipients))
			continue
		}

		// Quota is committed only after a confirmed delivery.
		pool.Commit(id)
		result.TotalSent++
		r.journalEntry(&sendlog.Entry{
			BatchID:        batchID,
			SenderID:       id.ID,
			SenderEmail:    id.Email,
			RecipientEmail: rcpt.Email,
			RecipientName:  rcpt.CreatorName,
			Subject:        subject,
			Status:         sendlog.StatusSent,
		})
		if r.observer != nil {
			r.observer.EmailSent(id.Email)
		}
		r.report(progress, Progress{Index: i, Total: len(recipients), Recipient: rcpt, SenderEmail: id.Email, Sent: true})
		r.pause(ctx, i, len(recipients))
	}

	if r.observer != nil {
		r.observer.BatchFinished(time.Since(start), result.TotalSent, result.TotalFailed)
	}
	r.logger.Info("batch finished",
		"batch_id", batchID,
		"sent", result.TotalSent,
		"failed", result.TotalFailed,
		"duration", time.Since(start))
	return result
}

func (r *Runner) recordFailure(batchID string, id *sender.Identity, rcpt recipient.Recipient, subject string, err error, result *Result) {
	result.TotalFailed++
	result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", rcpt.Email, err.Error()))

	entry := &sendlog.Entry{
		BatchID:        batchID,
		RecipientEmail: rcpt.Email,
		RecipientName:  rcpt.CreatorName,
		Subject:        subject,
		Status:         sendlog.StatusFailed,
		ErrorMessage:   err.Error(),
	}
	senderEmail := ""
	if id != nil {
		entry.SenderID = id.ID
		entry.SenderEmail = id.Email
		senderEmail = id.Email
	}
	kind := failureKind(err)
	entry.ErrorKind = kind
	if r.observer != nil {
		r.observer.EmailFailed(senderEmail, kind)
	}
	r.journalEntry(entry)

	r.logger.Warn("delivery failed",
		"batch_id", batchID,
		"recipient", rcpt.Email,
		"sender", senderEmail,
		"error", err)
}

func (r *Runner) journalEntry(e *sendlog.Entry) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Create(e); err != nil {
		r.logger.Error("failed to write send log entry", "recipient", e.RecipientEmail, "error", err)
	}
}

func (r *Runner) report(fn ProgressFunc, p Progress) {
	if fn != nil {
		fn(p)
	}
}

// pause waits the pacing interval after recipient i. No pause after the last
// recipient. A cancellation wakes the pause early; the loop boundary decides
// what to do with it.
func (r *Runner) pause(ctx context.Context, i, total int) {
	if i == total-1 {
		return
	}
	t := time.NewTimer(r.pace)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
