package tickets

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tokens look like WT:<ruID>|<unitID>|<holderID>|<eventSlug>|<issuedAt>|<sig>
// where sig is the first 16 hex chars of HMAC-SHA256 over everything
// between the prefix and the last separator. Holder ids and slugs never
// contain '|', so splitting the signature off the tail is unambiguous.
const tokenPrefix = "WT:"

const sigLen = 16

// TokenClaims is what a verified token asserts. IssuedAt lets callers
// distinguish a stale credential from the currently minted one.
type TokenClaims struct {
	ReservationUnitID int64
	UnitID            int64
	HolderID          string
	EventSlug         string
	IssuedAt          time.Time
}

type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) Sign(ruID, unitID int64, holderID, eventSlug string, issuedAt time.Time) string {
	payload := fmt.Sprintf("%d|%d|%s|%s|%d", ruID, unitID, holderID, eventSlug, issuedAt.Unix())
	return tokenPrefix + payload + "|" + s.signature(payload)
}

// Verify checks shape and signature. Any malformation, wrong prefix or
// signature mismatch yields ok=false; no partial claims escape.
func (s *Signer) Verify(token string) (*TokenClaims, bool) {
	body, found := strings.CutPrefix(token, tokenPrefix)
	if !found {
		return nil, false
	}
	sep := strings.LastIndex(body, "|")
	if sep < 0 {
		return nil, false
	}
	payload, sig := body[:sep], body[sep+1:]
	if !hmac.Equal([]byte(sig), []byte(s.signature(payload))) {
		return nil, false
	}

	parts := strings.Split(payload, "|")
	if len(parts) != 5 {
		return nil, false
	}
	ruID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, false
	}
	unitID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, false
	}
	issued, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return nil, false
	}
	return &TokenClaims{
		ReservationUnitID: ruID,
		UnitID:            unitID,
		HolderID:          parts[2],
		EventSlug:         parts[3],
		IssuedAt:          time.Unix(issued, 0),
	}, true
}

func (s *Signer) signature(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))[:sigLen]
}
