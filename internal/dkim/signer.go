// Package dkim signs outgoing outreach messages so bulk sends survive
// receiver spam filtering.
package dkim

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"fmt"

	"github.com/emersion/go-msgauth/dkim"
)

// Headers included in the signature. Signing only the stable headers keeps
// the signature valid if a relay appends trace headers.
var signedHeaders = []string{"From", "To", "Subject", "Date", "Message-ID", "MIME-Version", "Content-Type"}

// Signer signs outgoing messages with DKIM. Implements batch.Signer.
type Signer struct {
	key      *rsa.PrivateKey
	domain   string
	selector string
}

// New creates a signer from an in-memory key.
func New(key *rsa.PrivateKey, domain, selector string) *Signer {
	return &Signer{key: key, domain: domain, selector: selector}
}

// Open creates a signer by loading the PEM key at keyFile.
func Open(keyFile, domain, selector string) (*Signer, error) {
	key, err := LoadKey(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load DKIM key: %w", err)
	}
	return New(key, domain, selector), nil
}

// Sign prepends a DKIM-Signature header to message and returns the result.
func (s *Signer) Sign(message []byte) ([]byte, error) {
	opts := &dkim.SignOptions{
		Domain:                 s.domain,
		Selector:               s.selector,
		Signer:                 s.key,
		Hash:                   crypto.SHA256,
		HeaderCanonicalization: dkim.CanonicalizationRelaxed,
		BodyCanonicalization:   dkim.CanonicalizationRelaxed,
		HeaderKeys:             signedHeaders,
	}

	var signed bytes.Buffer
	if err := dkim.Sign(&signed, bytes.NewReader(message), opts); err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return signed.Bytes(), nil
}

// Domain returns the signing domain.
func (s *Signer) Domain() string {
	return s.domain
}

// Selector returns the key selector.
func (s *Signer) Selector() string {
	return s.selector
}
