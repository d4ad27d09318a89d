package consent

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

// fakeClock lets tests advance pending-store time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore() (*PendingStore, *fakeClock) {
	store := NewPendingStore()
	clock := newFakeClock()
	store.now = clock.Now
	return store, clock
}

func TestPendingStoreClaimIsExclusive(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore()
	require.NoError(t, store.AddSend(&PendingSend{ID: "req-1", Origin: "dapp.example"}))

	const claimers = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(claimers)
	for i := 0; i < claimers; i++ {
		go func() {
			defer wg.Done()
			if _, ok := store.ClaimSend("req-1"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one claimer must win")

	_, ok := store.GetSend("req-1")
	assert.False(t, ok)
}

func TestPendingStoreTTLSweepsBothRegistries(t *testing.T) {
	t.Parallel()

	store, clock := newTestStore()
	require.NoError(t, store.AddLogin(&PendingLogin{ID: "login-1", Origin: "a.example"}))
	require.NoError(t, store.AddSend(&PendingSend{ID: "send-1", Origin: "b.example"}))

	clock.Advance(PendingTTL - time.Second)
	logins, sends := store.Counts()
	assert.Equal(t, 1, logins)
	assert.Equal(t, 1, sends)

	clock.Advance(2 * time.Second)

	// Reading one registry purges the other too.
	_, ok := store.GetLogin("login-1")
	assert.False(t, ok)
	logins, sends = store.Counts()
	assert.Zero(t, logins)
	assert.Zero(t, sends)
}

func TestPendingStoreOriginCooldown(t *testing.T) {
	t.Parallel()

	store, clock := newTestStore()
	require.NoError(t, store.AddLogin(&PendingLogin{ID: "l1", Origin: "dapp.example"}))

	err := store.AddLogin(&PendingLogin{ID: "l2", Origin: "dapp.example"})
	require.ErrorIs(t, err, walleterr.ErrRateLimited)

	// The cooldown applies across request kinds for the same origin.
	err = store.AddSend(&PendingSend{ID: "s1", Origin: "dapp.example"})
	require.ErrorIs(t, err, walleterr.ErrRateLimited)

	// A different origin is unaffected.
	require.NoError(t, store.AddSend(&PendingSend{ID: "s2", Origin: "other.example"}))

	clock.Advance(OriginCooldown + time.Millisecond)
	require.NoError(t, store.AddLogin(&PendingLogin{ID: "l2", Origin: "dapp.example"}))
}

func TestPendingStoreCapacity(t *testing.T) {
	t.Parallel()

	store, clock := newTestStore()
	for i := 0; i < MaxPending; i++ {
		require.NoError(t, store.AddSend(&PendingSend{
			ID:     string(rune('a' + i)),
			Origin: string(rune('a'+i)) + ".example",
		}))
		clock.Advance(time.Millisecond)
	}

	err := store.AddSend(&PendingSend{ID: "overflow", Origin: "z.example"})
	require.ErrorIs(t, err, walleterr.ErrRateLimited)

	// Capacity is per kind; logins still have room.
	require.NoError(t, store.AddLogin(&PendingLogin{ID: "l1", Origin: "y.example"}))
}

func TestPendingStoreDuplicateID(t *testing.T) {
	t.Parallel()

	store, clock := newTestStore()
	require.NoError(t, store.AddLogin(&PendingLogin{ID: "dup", Origin: "a.example"}))
	clock.Advance(OriginCooldown + time.Millisecond)

	err := store.AddLogin(&PendingLogin{ID: "dup", Origin: "b.example"})
	require.ErrorIs(t, err, walleterr.ErrValidation)
}

func TestPendingStoreVerifiedCache(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore()
	require.NoError(t, store.AddLogin(&PendingLogin{ID: "l1", Origin: "a.example"}))

	entry, ok := store.GetLogin("l1")
	require.True(t, ok)
	assert.Nil(t, entry.Verified)

	store.SetLoginVerified("l1", true)
	entry, ok = store.GetLogin("l1")
	require.True(t, ok)
	require.NotNil(t, entry.Verified)
	assert.True(t, *entry.Verified)
}
