package ticket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndRedeem(t *testing.T) {
	issuer := NewIssuer(time.Minute)

	token := issuer.Issue(42, "p1")
	require.NotEmpty(t, token)

	claim, err := issuer.Redeem(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claim.SessionID)
	assert.Equal(t, "p1", claim.ParticipantID)
}

func TestRedeemUnknownToken(t *testing.T) {
	issuer := NewIssuer(time.Minute)

	_, err := issuer.Redeem("nope")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRedeemWhileBound(t *testing.T) {
	issuer := NewIssuer(time.Minute)
	token := issuer.Issue(1, "p1")

	_, err := issuer.Redeem(token)
	require.NoError(t, err)

	// A stale duplicate must not bind while the live connection holds
	// the ticket.
	_, err = issuer.Redeem(token)
	assert.ErrorIs(t, err, ErrInUse)

	// Releasing (disconnect) re-arms the token for reconnection.
	issuer.Release(token)
	_, err = issuer.Redeem(token)
	assert.NoError(t, err)
}

func TestRedeemExpired(t *testing.T) {
	issuer := NewIssuer(time.Minute)
	token := issuer.Issue(1, "p1")

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err := issuer.Redeem(token)
	assert.ErrorIs(t, err, ErrExpired)

	// Expired tokens are purged, not just rejected.
	_, err = issuer.Redeem(token)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRevokeSession(t *testing.T) {
	issuer := NewIssuer(time.Minute)
	t1 := issuer.Issue(1, "p1")
	t2 := issuer.Issue(1, "p2")
	other := issuer.Issue(2, "p3")

	issuer.RevokeSession(1)

	_, err := issuer.Redeem(t1)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = issuer.Redeem(t2)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = issuer.Redeem(other)
	assert.NoError(t, err, "other sessions' tickets survive")
}
