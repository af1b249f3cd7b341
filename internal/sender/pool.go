package sender

import "errors"

// ErrNoEligibleSender is returned by Next when every identity is inactive,
// missing a credential, or out of daily quota.
var ErrNoEligibleSender = errors.New("no eligible sender")

// Pool selects senders round-robin across the eligible subset. The eligible
// subset is recomputed on every call because counters move during a batch:
// an identity can cross its daily limit between two selections.
//
// The pool does not commit usage itself; the orchestrator calls Commit only
// after a confirmed successful send.
type Pool struct {
	identities []*Identity
	cursor     int
}

// NewPool creates a rotation pool over the given identities. The slice is
// shared, not copied: counter updates are visible to the caller.
func NewPool(identities []*Identity) *Pool {
	return &Pool{identities: identities}
}

// Identities returns the underlying identity slice.
func (p *Pool) Identities() []*Identity {
	return p.identities
}

// EligibleCount returns how many identities could be selected right now.
func (p *Pool) EligibleCount() int {
	n := 0
	for _, id := range p.identities {
		if id.Eligible() {
			n++
		}
	}
	return n
}

// Next returns the next eligible sender and advances the rotation cursor.
func (p *Pool) Next() (*Identity, error) {
	var eligible []*Identity
	for _, id := range p.identities {
		if id.Eligible() {
			eligible = append(eligible, id)
		}
	}
	if len(eligible) == 0 {
		return nil, ErrNoEligibleSender
	}

	selected := eligible[p.cursor%len(eligible)]
	p.cursor++
	return selected, nil
}

// Commit records one successful send against the identity's daily counter.
func (p *Pool) Commit(id *Identity) {
	id.SentToday++
}
