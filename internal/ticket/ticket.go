package ticket

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalid = errors.New("ticket invalid")
	ErrExpired = errors.New("ticket expired")
	ErrInUse   = errors.New("ticket already bound to a live connection")
)

// Claim is what a redeemed ticket proves: the holder may bind to this
// session as this participant.
type Claim struct {
	SessionID     uint64
	ParticipantID string
	ExpiresAt     time.Time
}

type entry struct {
	claim Claim
	bound bool
}

// Issuer mints single-purpose capability tokens at session creation and
// validates them at connect time. A token stays redeemable after its
// first bind only once that bind is released, which is what lets a
// participant reconnect within the grace window.
type Issuer struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]*entry
	now    func() time.Time
}

func NewIssuer(ttl time.Duration) *Issuer {
	return &Issuer{
		ttl:    ttl,
		tokens: make(map[string]*entry),
		now:    time.Now,
	}
}

func (i *Issuer) Issue(sessionID uint64, participantID string) string {
	token := uuid.NewString()
	i.mu.Lock()
	i.tokens[token] = &entry{claim: Claim{
		SessionID:     sessionID,
		ParticipantID: participantID,
		ExpiresAt:     i.now().Add(i.ttl),
	}}
	i.mu.Unlock()
	return token
}

// Redeem validates a token and marks it bound. Callers must Release
// the token when the connection closes or the reconnect path stays
// blocked for that participant.
func (i *Issuer) Redeem(token string) (Claim, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, ok := i.tokens[token]
	if !ok {
		return Claim{}, ErrInvalid
	}
	if i.now().After(e.claim.ExpiresAt) {
		delete(i.tokens, token)
		return Claim{}, ErrExpired
	}
	if e.bound {
		return Claim{}, ErrInUse
	}
	e.bound = true
	return e.claim, nil
}

func (i *Issuer) Release(token string) {
	i.mu.Lock()
	if e, ok := i.tokens[token]; ok {
		e.bound = false
	}
	i.mu.Unlock()
}

// RevokeSession drops every outstanding token for a retired session.
func (i *Issuer) RevokeSession(sessionID uint64) {
	i.mu.Lock()
	for token, e := range i.tokens {
		if e.claim.SessionID == sessionID {
			delete(i.tokens, token)
		}
	}
	i.mu.Unlock()
}
