package consent

import (
	"math/big"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/verso-wallet/verso/internal/identity"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

const (
	// PendingTTL is how long a pending request stays claimable.
	PendingTTL = 300 * time.Second

	// OriginCooldown is the minimum spacing between requests from one
	// origin.
	OriginCooldown = 3 * time.Second

	// MaxPending caps concurrent pending requests of each kind.
	MaxPending = 10
)

// PendingLogin is a dApp login request awaiting user consent.
type PendingLogin struct {
	ID        string
	Origin    string
	Challenge *identity.LoginChallenge
	CreatedAt time.Time

	// Verified caches the signature verification result once computed,
	// so repeated reads do not re-run the recovery search. Only a
	// verified login may be approved.
	Verified *bool
}

// PendingSend is a dApp-initiated send awaiting user consent.
type PendingSend struct {
	ID        string
	Origin    string
	Recipient string
	Amount    int64
	Currency  string
	AssetAmt  *big.Int
	CreatedAt time.Time
}

// PendingStore holds both pending registries under one lock so that
// TTL purging sweeps them together. Expiry is enforced lazily on every
// read; there is no background timer.
type PendingStore struct {
	mu     sync.Mutex
	logins map[string]*PendingLogin
	sends  map[string]*PendingSend

	cooldowns map[string]*rate.Limiter
	now       func() time.Time
}

// NewPendingStore creates an empty store.
func NewPendingStore() *PendingStore {
	return &PendingStore{
		logins:    make(map[string]*PendingLogin),
		sends:     make(map[string]*PendingSend),
		cooldowns: make(map[string]*rate.Limiter),
		now:       time.Now,
	}
}

// purgeLocked drops entries older than the TTL from both registries.
// Callers hold p.mu.
func (p *PendingStore) purgeLocked() {
	cutoff := p.now().Add(-PendingTTL)
	for id, entry := range p.logins {
		if entry.CreatedAt.Before(cutoff) {
			delete(p.logins, id)
		}
	}
	for id, entry := range p.sends {
		if entry.CreatedAt.Before(cutoff) {
			delete(p.sends, id)
		}
	}
}

// originAllowedLocked enforces the per-origin cooldown shared by both
// request kinds.
func (p *PendingStore) originAllowedLocked(origin string) bool {
	limiter, ok := p.cooldowns[origin]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(OriginCooldown), 1)
		p.cooldowns[origin] = limiter
	}
	return limiter.AllowN(p.now(), 1)
}

// AddLogin registers a pending login request.
func (p *PendingStore) AddLogin(entry *PendingLogin) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purgeLocked()

	if !p.originAllowedLocked(entry.Origin) {
		return walleterr.Wrap(walleterr.ErrRateLimited, "origin %s is in cooldown", entry.Origin)
	}
	if len(p.logins) >= MaxPending {
		return walleterr.Wrap(walleterr.ErrRateLimited, "too many pending login requests")
	}
	if _, exists := p.logins[entry.ID]; exists {
		return walleterr.Wrap(walleterr.ErrValidation, "duplicate request id")
	}

	entry.CreatedAt = p.now()
	p.logins[entry.ID] = entry
	return nil
}

// AddSend registers a pending send request.
func (p *PendingStore) AddSend(entry *PendingSend) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purgeLocked()

	if !p.originAllowedLocked(entry.Origin) {
		return walleterr.Wrap(walleterr.ErrRateLimited, "origin %s is in cooldown", entry.Origin)
	}
	if len(p.sends) >= MaxPending {
		return walleterr.Wrap(walleterr.ErrRateLimited, "too many pending send requests")
	}
	if _, exists := p.sends[entry.ID]; exists {
		return walleterr.Wrap(walleterr.ErrValidation, "duplicate request id")
	}

	entry.CreatedAt = p.now()
	p.sends[entry.ID] = entry
	return nil
}

// GetLogin returns a pending login without claiming it.
func (p *PendingStore) GetLogin(id string) (*PendingLogin, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purgeLocked()

	entry, ok := p.logins[id]
	return entry, ok
}

// GetSend returns a pending send without claiming it.
func (p *PendingStore) GetSend(id string) (*PendingSend, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purgeLocked()

	entry, ok := p.sends[id]
	return entry, ok
}

// SetLoginVerified caches the verification verdict on a pending login.
func (p *PendingStore) SetLoginVerified(id string, verified bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purgeLocked()

	if entry, ok := p.logins[id]; ok {
		entry.Verified = &verified
	}
}

// ClaimLogin atomically removes and returns a pending login. Exactly
// one of two concurrent claims for the same id succeeds; the loser
// observes not-found. The claim happens before any asynchronous work
// the caller performs with the entry.
func (p *PendingStore) ClaimLogin(id string) (*PendingLogin, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purgeLocked()

	entry, ok := p.logins[id]
	if ok {
		delete(p.logins, id)
	}
	return entry, ok
}

// ClaimSend atomically removes and returns a pending send.
func (p *PendingStore) ClaimSend(id string) (*PendingSend, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purgeLocked()

	entry, ok := p.sends[id]
	if ok {
		delete(p.sends, id)
	}
	return entry, ok
}

// Counts returns the number of live pending entries of each kind.
func (p *PendingStore) Counts() (logins, sends int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purgeLocked()

	return len(p.logins), len(p.sends)
}
