// Package mail builds RFC 5322 messages for outreach sends.
package mail

import (
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FormatAddress formats a display name and email address as "Name <addr>".
// With an empty name the bare address is returned.
func FormatAddress(name, email string) string {
	if name == "" {
		return email
	}
	return name + " <" + email + ">"
}

// ExtractDomain extracts the domain part from an email address.
// Returns empty string if the address has no usable domain.
func ExtractDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// BuildMessage assembles a complete HTML email: From, To, Subject, Date,
// Message-ID, MIME-Version and Content-Type headers followed by the body.
// Lines are CRLF-terminated; non-ASCII subjects are RFC 2047 encoded.
// DATA-phase dot-stuffing is the transport's job, not done here.
func BuildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@mailflock>\r\n", uuid.New().String())
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(normalizeCRLF(htmlBody))
	if !strings.HasSuffix(b.String(), "\r\n") {
		b.WriteString("\r\n")
	}

	return []byte(b.String())
}

// normalizeCRLF converts bare LF line endings to CRLF.
func normalizeCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
