// Package recipient defines outreach targets and their CSV import format.
package recipient

import (
	"fmt"
	"strings"
)

// Recipient is a single outreach target. All fields are required.
type Recipient struct {
	Email           string `json:"email"`
	CreatorName     string `json:"creator_name"`
	SocialMediaLink string `json:"social_media_link"`
}

// Validate checks that all required fields are present and the email
// address has a plausible shape.
func (r Recipient) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("email is required")
	}
	at := strings.LastIndex(r.Email, "@")
	if at <= 0 || at == len(r.Email)-1 {
		return fmt.Errorf("invalid email address: %s", r.Email)
	}
	if r.CreatorName == "" {
		return fmt.Errorf("creator name is required")
	}
	if r.SocialMediaLink == "" {
		return fmt.Errorf("social media link is required")
	}
	return nil
}
