package consent

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/verso-wallet/verso/internal/fileutil"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

const (
	// FreeFailures is how many consecutive bad passphrases may be
	// attempted without waiting. The lockout clock starts at the last
	// of them, so attempt FreeFailures+1 must wait out the base window.
	FreeFailures = 5

	// baseLockout is the lockout started by failure number
	// FreeFailures. It doubles with each further failure.
	baseLockout = 5 * time.Second

	// maxLockout caps the doubling.
	maxLockout = time.Hour

	limiterFilePermissions = 0o600
)

// unlockState is the persisted limiter record. The HMAC binds the
// counters to the key so that editing the file resets nothing.
type unlockState struct {
	Failures    int    `json:"failures"`
	LockedUntil int64  `json:"locked_until"`
	HMAC        string `json:"hmac"`
}

// UnlockLimiter throttles vault unlock attempts. State survives
// restarts; a corrupt or tampered state file is treated as locked for
// the maximum duration rather than as a clean slate.
type UnlockLimiter struct {
	path string
	key  []byte
	now  func() time.Time
}

// NewUnlockLimiter creates a limiter persisting to path. The key
// protects the state file from offline edits; it does not need to be
// secret from the wallet owner, only stable across runs.
func NewUnlockLimiter(path string, key []byte) *UnlockLimiter {
	return &UnlockLimiter{path: path, key: key, now: time.Now}
}

// Check returns an error while the limiter is in a lockout window.
func (l *UnlockLimiter) Check() error {
	state := l.load()
	until := time.Unix(state.LockedUntil, 0)
	if now := l.now(); now.Before(until) {
		remaining := until.Sub(now).Round(time.Second)
		return walleterr.WithDetails(
			walleterr.Wrap(walleterr.ErrRateLimited, "unlock locked out for %s", remaining),
			map[string]string{"retry_after_seconds": strconv.FormatInt(int64(remaining/time.Second), 10)},
		)
	}
	return nil
}

// RecordFailure registers a failed unlock attempt and starts or extends
// the lockout once the free allowance is spent.
func (l *UnlockLimiter) RecordFailure() error {
	state := l.load()
	state.Failures++

	if state.Failures >= FreeFailures {
		lockout := baseLockout
		for i := FreeFailures; i < state.Failures; i++ {
			lockout *= 2
			if lockout >= maxLockout {
				lockout = maxLockout
				break
			}
		}
		state.LockedUntil = l.now().Add(lockout).Unix()
	}

	return l.save(state)
}

// RecordSuccess clears all limiter state after a successful unlock.
func (l *UnlockLimiter) RecordSuccess() error {
	return l.save(&unlockState{})
}

// load reads the persisted state. Missing file means a clean slate;
// anything unreadable or failing the integrity check means maximum
// lockout, so deleting or editing the file cannot bypass throttling.
func (l *UnlockLimiter) load() *unlockState {
	if l.path == "" {
		return &unlockState{}
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &unlockState{}
		}
		return l.maxedState()
	}

	var state unlockState
	if err := json.Unmarshal(data, &state); err != nil {
		return l.maxedState()
	}
	if !l.verifyHMAC(&state) {
		return l.maxedState()
	}
	return &state
}

func (l *UnlockLimiter) maxedState() *unlockState {
	return &unlockState{
		Failures:    FreeFailures + 1,
		LockedUntil: l.now().Add(maxLockout).Unix(),
	}
}

func (l *UnlockLimiter) save(state *unlockState) error {
	if l.path == "" {
		return nil
	}

	state.HMAC = l.computeHMAC(state)
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return walleterr.Wrap(err, "marshaling unlock limiter state")
	}
	return fileutil.WriteAtomic(l.path, data, limiterFilePermissions)
}

func (l *UnlockLimiter) computeHMAC(state *unlockState) string {
	payload := fmt.Sprintf("%d:%d", state.Failures, state.LockedUntil)
	mac := hmac.New(sha256.New, l.key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (l *UnlockLimiter) verifyHMAC(state *unlockState) bool {
	expected := l.computeHMAC(state)
	return hmac.Equal([]byte(expected), []byte(state.HMAC))
}
