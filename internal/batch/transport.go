// Package batch runs bulk outreach sends: one message per recipient,
// rotating across the sender pool with pacing between deliveries.
package batch

import (
	"context"

	"github.com/mailflock/mailflock/internal/mail"
	"github.com/mailflock/mailflock/internal/recipient"
	"github.com/mailflock/mailflock/internal/sender"
	"github.com/mailflock/mailflock/internal/smtp"
)

// Transport delivers one rendered message from an identity to a recipient.
// The production transport speaks SMTP; tests substitute a fake.
type Transport interface {
	Send(ctx context.Context, id *sender.Identity, rcpt recipient.Recipient, subject, body string) error
}

// Signer signs an outgoing message, returning the signed bytes.
type Signer interface {
	Sign(message []byte) ([]byte, error)
}

// SMTPTransport builds RFC 5322 messages and delivers them over SMTP using
// the identity's own submission server and credentials.
type SMTPTransport struct {
	client *smtp.Client
	signer Signer // optional DKIM signer
}

// NewSMTPTransport creates the production transport. signer may be nil.
func NewSMTPTransport(client *smtp.Client, signer Signer) *SMTPTransport {
	return &SMTPTransport{client: client, signer: signer}
}

// Send renders headers, optionally DKIM-signs, and performs one SMTP
// delivery attempt.
func (t *SMTPTransport) Send(ctx context.Context, id *sender.Identity, rcpt recipient.Recipient, subject, body string) error {
	from := mail.FormatAddress(id.Name, id.Email)
	to := mail.FormatAddress(rcpt.CreatorName, rcpt.Email)

	msg := mail.BuildMessage(from, to, subject, body)
	if t.signer != nil {
		signed, err := t.signer.Sign(msg)
		if err != nil {
			return err
		}
		msg = signed
	}

	auth := smtp.Auth{Username: id.Email, Password: id.Password}
	return t.client.Send(ctx, id.SMTPHost, id.SMTPPort, auth, id.Email, rcpt.Email, msg)
}
