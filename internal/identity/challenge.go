// Package identity verifies dApp login challenges signed by on-chain
// identities. Verification recovers candidate public keys from a
// compact signature and accepts only when a recovered key's address is
// among the identity's authorized primary addresses.
package identity

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

const (
	// deepLinkScheme is the URI scheme of wallet login deep links.
	deepLinkScheme = "verus"

	// maxFutureSkew tolerates clock drift between signer and verifier.
	maxFutureSkew = 60 * time.Second

	// maxChallengeAge bounds the replay window.
	maxChallengeAge = 300 * time.Second
)

// LoginChallenge is a parsed deep-link login request.
type LoginChallenge struct {
	// Identity is the claimed signer ("user@" or i-address).
	Identity string

	// ChallengeID is the opaque challenge string that was signed.
	ChallengeID string

	// CreatedAt is the challenge creation time claimed by the signer.
	CreatedAt time.Time

	// Signature is the base64 signature blob.
	Signature string

	// Callback is the dApp's redirect target, if any.
	Callback string
}

// ParseLoginURI parses a wallet deep-link login challenge.
func ParseLoginURI(raw string) (*LoginChallenge, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.ErrValidation, "login uri")
	}
	if u.Scheme != deepLinkScheme {
		return nil, walleterr.Wrap(walleterr.ErrValidation, "unsupported scheme %q", u.Scheme)
	}

	q := u.Query()
	c := &LoginChallenge{
		Identity:    strings.TrimSpace(q.Get("identity")),
		ChallengeID: q.Get("challenge"),
		Signature:   q.Get("sig"),
		Callback:    q.Get("callback"),
	}
	if c.Identity == "" || c.ChallengeID == "" || c.Signature == "" {
		return nil, walleterr.Wrap(walleterr.ErrValidation, "login uri missing identity, challenge, or sig")
	}

	created := q.Get("created")
	if created == "" {
		return nil, walleterr.Wrap(walleterr.ErrValidation, "login uri missing creation timestamp")
	}
	unix, err := strconv.ParseInt(created, 10, 64)
	if err != nil || unix <= 0 {
		return nil, walleterr.Wrap(walleterr.ErrValidation, "malformed creation timestamp")
	}
	c.CreatedAt = time.Unix(unix, 0)

	return c, nil
}

// CheckTimestamp enforces the challenge freshness window: at most 60s
// in the future (clock skew) and at most 300s old (replay bound).
func (c *LoginChallenge) CheckTimestamp(now time.Time) error {
	if c.CreatedAt.IsZero() || c.CreatedAt.Unix() <= 0 {
		return walleterr.Wrap(walleterr.ErrValidation, "challenge has no valid timestamp")
	}
	if c.CreatedAt.After(now.Add(maxFutureSkew)) {
		return walleterr.Wrap(walleterr.ErrValidation, "challenge timestamp is in the future")
	}
	if now.Sub(c.CreatedAt) > maxChallengeAge {
		return walleterr.Wrap(walleterr.ErrValidation, "challenge expired")
	}
	return nil
}
