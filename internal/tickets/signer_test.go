package tickets_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ms-reservations/internal/tickets"
)

func TestSignerRoundTrip(t *testing.T) {
	signer := tickets.NewSigner("unit-test-secret")
	issued := time.Date(2026, 5, 10, 18, 30, 0, 0, time.UTC)

	token := signer.Sign(42, 7, "holder-123", "festival-verano-2026", issued)
	assert.True(t, strings.HasPrefix(token, "WT:"))

	claims, ok := signer.Verify(token)
	assert.True(t, ok)
	assert.Equal(t, int64(42), claims.ReservationUnitID)
	assert.Equal(t, int64(7), claims.UnitID)
	assert.Equal(t, "holder-123", claims.HolderID)
	assert.Equal(t, "festival-verano-2026", claims.EventSlug)
	assert.Equal(t, issued.Unix(), claims.IssuedAt.Unix())
}

func TestSignerRejectsTampering(t *testing.T) {
	signer := tickets.NewSigner("unit-test-secret")
	token := signer.Sign(42, 7, "holder-123", "festival-verano-2026", time.Now())

	// Flipping any single character must invalidate the token.
	for i := len("WT:"); i < len(token); i++ {
		mutated := []byte(token)
		if mutated[i] == 'x' {
			mutated[i] = 'y'
		} else {
			mutated[i] = 'x'
		}
		_, ok := signer.Verify(string(mutated))
		assert.False(t, ok, "mutation at index %d should fail verification", i)
	}
}

func TestSignerRejectsWrongSecret(t *testing.T) {
	token := tickets.NewSigner("secret-a").Sign(1, 1, "h", "evt", time.Now())
	_, ok := tickets.NewSigner("secret-b").Verify(token)
	assert.False(t, ok)
}

func TestSignerRejectsMalformedTokens(t *testing.T) {
	signer := tickets.NewSigner("unit-test-secret")

	cases := []string{
		"",
		"WT:",
		"not-a-token",
		"XX:1|2|h|evt|123|deadbeefdeadbeef",
		"WT:1|2|h|evt|123",
	}
	for _, raw := range cases {
		_, ok := signer.Verify(raw)
		assert.False(t, ok, "token %q should not verify", raw)
	}
}
