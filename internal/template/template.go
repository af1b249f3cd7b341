// Package template renders outreach message templates.
//
// Templates use literal placeholder tokens rather than a template language:
// every occurrence of {Creator Name} and {Social Media Link} is substituted
// with the matching recipient field. Unknown tokens and stray braces are left
// verbatim, so rendering never fails.
package template

import (
	"fmt"
	"strings"

	"github.com/mailflock/mailflock/internal/recipient"
)

// Placeholder tokens recognized in subject and body.
const (
	PlaceholderCreatorName     = "{Creator Name}"
	PlaceholderSocialMediaLink = "{Social Media Link}"
)

// Template is an outreach message with placeholders. Body is HTML.
type Template struct {
	Subject string `json:"subject" yaml:"subject"`
	Body    string `json:"body" yaml:"body"`
}

// Validate checks that the template has content to send.
func (t Template) Validate() error {
	if t.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	if t.Body == "" {
		return fmt.Errorf("body is required")
	}
	return nil
}

// Render substitutes all placeholder occurrences in text with the
// recipient's fields. Pure function; text without placeholders is returned
// unchanged.
func Render(text string, r recipient.Recipient) string {
	text = strings.ReplaceAll(text, PlaceholderCreatorName, r.CreatorName)
	return strings.ReplaceAll(text, PlaceholderSocialMediaLink, r.SocialMediaLink)
}

// RenderFor renders subject and body independently for one recipient.
func (t Template) RenderFor(r recipient.Recipient) (subject, body string) {
	return Render(t.Subject, r), Render(t.Body, r)
}
