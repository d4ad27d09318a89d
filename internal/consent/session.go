// Package consent orchestrates everything that requires user consent or
// an unlocked wallet: session lifecycle and auto-lock, the pending
// login/send request registries with their claim semantics, persistent
// unlock rate limiting, and webhook delivery of approval results.
package consent

import (
	"sync"
	"time"

	"github.com/verso-wallet/verso/internal/keychain"
	"github.com/verso-wallet/verso/internal/securemem"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

// DefaultAutoLock is how long a session survives without privileged
// activity.
const DefaultAutoLock = 5 * time.Minute

// Account is a derived account visible in an unlocked session.
type Account struct {
	Index   uint32 `json:"index"`
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Session holds the unlocked wallet state: the seed in locked memory,
// the derived account list, and the auto-lock timer. All methods are
// safe for concurrent use.
type Session struct {
	mu          sync.Mutex
	seed        *securemem.SecureBytes
	accounts    []Account
	activeIndex uint32
	params      keychain.Params

	autoLock time.Duration
	timer    *time.Timer
	onLock   func()
}

// NewSession creates an unlocked session owning the seed. The seed
// buffer is zeroed on lock; in-flight operations that already derived
// their own key material are unaffected.
func NewSession(seed *securemem.SecureBytes, params keychain.Params, accounts []Account, autoLock time.Duration, onLock func()) *Session {
	if autoLock <= 0 {
		autoLock = DefaultAutoLock
	}
	s := &Session{
		seed:     seed,
		accounts: accounts,
		params:   params,
		autoLock: autoLock,
		onLock:   onLock,
	}
	s.timer = time.AfterFunc(autoLock, s.Lock)
	return s
}

// Touch resets the auto-lock timer. Called on every privileged
// operation.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Reset(s.autoLock)
	}
}

// Lock zeroes the seed and stops the auto-lock timer. Idempotent.
func (s *Session) Lock() {
	s.mu.Lock()
	alreadyLocked := s.seed == nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.seed != nil {
		s.seed.Destroy()
		s.seed = nil
	}
	s.accounts = nil
	onLock := s.onLock
	s.onLock = nil
	s.mu.Unlock()

	if !alreadyLocked && onLock != nil {
		onLock()
	}
}

// IsLocked reports whether the seed has been destroyed.
func (s *Session) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seed == nil
}

// DeriveActiveKey derives the signing key of the active account. The
// caller owns the returned key and must Destroy it after use; the copy
// is what lets auto-lock fire without cancelling in-flight signing.
func (s *Session) DeriveActiveKey() (*keychain.DerivedKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seed == nil {
		return nil, walleterr.ErrWalletLocked
	}
	return keychain.DeriveAccount(s.seed.Bytes(), s.params, s.activeIndex)
}

// SeedCopy returns a caller-owned copy of the seed for operations that
// outlive the session lock, such as adding accounts or revealing the
// mnemonic.
func (s *Session) SeedCopy() (*securemem.SecureBytes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seed == nil {
		return nil, walleterr.ErrWalletLocked
	}
	return securemem.FromSlice(s.seed.Bytes())
}

// Accounts returns the derived account list.
func (s *Session) Accounts() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Account, len(s.accounts))
	copy(out, s.accounts)
	return out
}

// ActiveAccount returns the currently selected account.
func (s *Session) ActiveAccount() (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seed == nil {
		return Account{}, walleterr.ErrWalletLocked
	}
	for _, a := range s.accounts {
		if a.Index == s.activeIndex {
			return a, nil
		}
	}
	return Account{}, walleterr.Wrap(walleterr.ErrNotFound, "active account %d", s.activeIndex)
}

// AddAccount registers a newly derived account. Indexes are unique;
// re-adding an existing index is rejected.
func (s *Session) AddAccount(account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seed == nil {
		return walleterr.ErrWalletLocked
	}
	for _, a := range s.accounts {
		if a.Index == account.Index {
			return walleterr.Wrap(walleterr.ErrValidation, "account %d already exists", account.Index)
		}
	}
	s.accounts = append(s.accounts, account)
	return nil
}

// RenameAccount sets the display label of an account. Labels are
// session-only metadata and never enter key derivation.
func (s *Session) RenameAccount(index uint32, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seed == nil {
		return walleterr.ErrWalletLocked
	}
	for i := range s.accounts {
		if s.accounts[i].Index == index {
			s.accounts[i].Name = name
			return nil
		}
	}
	return walleterr.Wrap(walleterr.ErrNotFound, "account %d", index)
}

// SwitchAccount changes the active account index.
func (s *Session) SwitchAccount(index uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seed == nil {
		return walleterr.ErrWalletLocked
	}
	for _, a := range s.accounts {
		if a.Index == index {
			s.activeIndex = index
			return nil
		}
	}
	return walleterr.Wrap(walleterr.ErrNotFound, "account %d", index)
}
