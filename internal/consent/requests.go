package consent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/verso-wallet/verso/internal/chain"
	"github.com/verso-wallet/verso/internal/identity"
	"github.com/verso-wallet/verso/internal/keychain"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

// Action names the operations a sender may request.
type Action string

const (
	ActionSubmitLogin Action = "submit_login"
	ActionSubmitSend  Action = "submit_send"
	ActionPing        Action = "ping"
)

// externalActions is the full surface available to origins outside the
// trusted set. Everything else is UI-only.
var externalActions = map[Action]struct{}{
	ActionSubmitLogin: {},
	ActionSubmitSend:  {},
	ActionPing:        {},
}

// Authorize checks whether origin may perform action. Trusted origins
// may do anything; external origins get the submit-and-ping surface
// only, so a web page can never approve its own request.
func (w *Wallet) Authorize(origin string, action Action) error {
	if _, ok := w.trusted[origin]; ok {
		return nil
	}
	if _, ok := externalActions[action]; ok {
		return nil
	}
	return walleterr.Wrap(walleterr.ErrAuthentication, "origin %s may not perform %s", origin, action)
}

func newRequestID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", walleterr.Wrap(err, "generating request id")
	}
	return hex.EncodeToString(buf[:]), nil
}

// SubmitLoginRequest registers a dApp login deep link for user
// consent. The signature is verified immediately and the verdict
// cached on the pending entry; approval later re-reads the cached
// verdict instead of re-running recovery.
func (w *Wallet) SubmitLoginRequest(ctx context.Context, origin, loginURI, callbackURL string) (string, error) {
	if err := w.Authorize(origin, ActionSubmitLogin); err != nil {
		return "", err
	}

	challenge, err := identity.ParseLoginURI(loginURI)
	if err != nil {
		return "", err
	}
	if err := challenge.CheckTimestamp(time.Now()); err != nil {
		return "", err
	}
	if callbackURL != "" {
		if err := ValidateCallbackURL(callbackURL, origin); err != nil {
			return "", err
		}
		challenge.Callback = callbackURL
	}

	id, err := newRequestID()
	if err != nil {
		return "", err
	}
	if err := w.pending.AddLogin(&PendingLogin{
		ID:        id,
		Origin:    origin,
		Challenge: challenge,
	}); err != nil {
		return "", err
	}

	verified := w.verifyLogin(ctx, challenge) == nil
	w.pending.SetLoginVerified(id, verified)
	return id, nil
}

// VerifyLoginChallenge resolves the claimed identity and checks the
// challenge signature against its authorized addresses, without
// registering anything for consent.
func (w *Wallet) VerifyLoginChallenge(ctx context.Context, challenge *identity.LoginChallenge) error {
	return w.verifyLogin(ctx, challenge)
}

// verifyLogin resolves the claimed identity and checks the challenge
// signature against its authorized addresses.
func (w *Wallet) verifyLogin(ctx context.Context, challenge *identity.LoginChallenge) error {
	result, err := w.idClient.GetIdentity(ctx, challenge.Identity)
	if err != nil {
		return err
	}
	return identity.Verify(w.params, challenge, result.Identity.IdentityAddress, result.Identity.PrimaryAddresses)
}

// LoginDecision is delivered to the dApp callback after the user acts
// on a login request.
type LoginDecision struct {
	RequestID string `json:"request_id"`
	Challenge string `json:"challenge"`
	Identity  string `json:"identity"`
	Approved  bool   `json:"approved"`
}

// ApproveLogin claims the pending login and, if its signature was
// verified, notifies the dApp. An unverified login cannot be approved;
// the claim still consumes the entry so it cannot be retried.
func (w *Wallet) ApproveLogin(ctx context.Context, origin, id string) error {
	if err := w.Authorize(origin, "approve_login"); err != nil {
		return err
	}

	entry, ok := w.pending.ClaimLogin(id)
	if !ok {
		return walleterr.Wrap(walleterr.ErrNotFound, "no pending login %s", id)
	}
	if entry.Verified == nil || !*entry.Verified {
		return walleterr.Wrap(walleterr.ErrSignatureUnverified, "login %s failed signature verification and cannot be approved", id)
	}

	return w.notifyLogin(ctx, entry, true)
}

// RejectLogin claims and discards a pending login. Closing the consent
// window goes through the same path as an explicit rejection.
func (w *Wallet) RejectLogin(ctx context.Context, origin, id string) error {
	if err := w.Authorize(origin, "reject_login"); err != nil {
		return err
	}

	entry, ok := w.pending.ClaimLogin(id)
	if !ok {
		return walleterr.Wrap(walleterr.ErrNotFound, "no pending login %s", id)
	}
	return w.notifyLogin(ctx, entry, false)
}

func (w *Wallet) notifyLogin(ctx context.Context, entry *PendingLogin, approved bool) error {
	if entry.Challenge.Callback == "" {
		return nil
	}
	return w.webhook.Send(ctx, entry.Challenge.Callback, entry.Origin, &LoginDecision{
		RequestID: entry.ID,
		Challenge: entry.Challenge.ChallengeID,
		Identity:  entry.Challenge.Identity,
		Approved:  approved,
	})
}

// SubmitSendRequest registers a dApp-initiated payment for user
// consent. Amount is a decimal string in the given currency; an empty
// currency means the native coin.
func (w *Wallet) SubmitSendRequest(origin, recipient, amount, currency string) (string, error) {
	if err := w.Authorize(origin, ActionSubmitSend); err != nil {
		return "", err
	}
	if err := keychain.ValidateAddress(w.params, recipient); err != nil {
		return "", err
	}

	entry := &PendingSend{
		Origin:    origin,
		Recipient: recipient,
		Currency:  currency,
	}
	if currency == "" {
		value, err := chain.ParseNativeAmount(amount)
		if err != nil {
			return "", err
		}
		entry.Amount = value
	} else {
		value, err := chain.ParseAmount(amount, chain.Decimals)
		if err != nil {
			return "", err
		}
		entry.AssetAmt = value
	}

	id, err := newRequestID()
	if err != nil {
		return "", err
	}
	entry.ID = id
	if err := w.pending.AddSend(entry); err != nil {
		return "", err
	}
	return id, nil
}

// ApproveSend claims the pending send and executes it through the
// normal spend path. Under concurrent approvals exactly one caller
// wins the claim and broadcasts; the rest see not-found.
func (w *Wallet) ApproveSend(ctx context.Context, origin, id string) (*SendResult, error) {
	if err := w.Authorize(origin, "approve_send"); err != nil {
		return nil, err
	}

	entry, ok := w.pending.ClaimSend(id)
	if !ok {
		return nil, walleterr.Wrap(walleterr.ErrNotFound, "no pending send %s", id)
	}

	if entry.Currency == "" {
		return w.Send(ctx, entry.Recipient, chain.FormatNativeAmount(entry.Amount))
	}
	return w.SendCurrency(ctx, entry.Currency, entry.Recipient, chain.FormatAmount(entry.AssetAmt, chain.Decimals))
}

// RejectSend claims and discards a pending send.
func (w *Wallet) RejectSend(origin, id string) error {
	if err := w.Authorize(origin, "reject_send"); err != nil {
		return err
	}

	if _, ok := w.pending.ClaimSend(id); !ok {
		return walleterr.Wrap(walleterr.ErrNotFound, "no pending send %s", id)
	}
	return nil
}

// PendingCounts reports live pending requests for the UI badge.
func (w *Wallet) PendingCounts(origin string) (logins, sends int, err error) {
	if err := w.Authorize(origin, "list_pending"); err != nil {
		return 0, 0, err
	}
	logins, sends = w.pending.Counts()
	return logins, sends, nil
}
