// Package cache provides in-memory caching of balances and transaction
// details, used as a fallback when the network is unreachable and to
// avoid re-fetching immutable confirmed transactions.
package cache

import (
	"math/big"
	"sync"
	"time"

	"github.com/verso-wallet/verso/internal/chain"
)

// BalanceEntry is a single cached balance. Native balances use the
// Balance field; currency-keyed entries carry the arbitrary-precision
// Reserve amount instead.
type BalanceEntry struct {
	Address   string        `json:"address"`
	Currency  string        `json:"currency,omitempty"`
	Balance   chain.Balance `json:"balance"`
	Reserve   *big.Int      `json:"reserve,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// BalanceCache stores cached balances keyed by address and optional
// currency. Entries are advisory: callers always try the network first
// and fall back to the cache on failure.
type BalanceCache struct {
	mu      sync.RWMutex
	entries map[string]BalanceEntry
}

// NewBalanceCache creates a new empty balance cache.
func NewBalanceCache() *BalanceCache {
	return &BalanceCache{
		entries: make(map[string]BalanceEntry),
	}
}

func balanceKey(address, currency string) string {
	if currency != "" {
		return address + ":" + currency
	}
	return address
}

// Get retrieves a cached balance entry.
// Returns the entry, whether it exists, and its age.
func (c *BalanceCache) Get(address, currency string) (*BalanceEntry, bool, time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[balanceKey(address, currency)]
	if !exists {
		return nil, false, 0
	}
	return &entry, true, time.Since(entry.UpdatedAt)
}

// Set stores a balance entry.
func (c *BalanceCache) Set(entry BalanceEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.UpdatedAt = time.Now()
	c.entries[balanceKey(entry.Address, entry.Currency)] = entry
}

// CurrencyEntries returns all currency-keyed entries cached for an
// address, in no particular order.
func (c *BalanceCache) CurrencyEntries(address string) []BalanceEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []BalanceEntry
	for _, entry := range c.entries {
		if entry.Address == address && entry.Currency != "" {
			out = append(out, entry)
		}
	}
	return out
}

// Delete removes a balance entry.
func (c *BalanceCache) Delete(address, currency string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, balanceKey(address, currency))
}

// Clear removes all balance entries.
func (c *BalanceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]BalanceEntry)
}

// Size returns the number of cached balances.
func (c *BalanceCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// TxDetailCache stores decoded transactions keyed by address and txid.
// A cached entry is only reusable while its confirmation state has not
// flipped; a reorg that un-confirms a transaction must invalidate it.
type TxDetailCache struct {
	mu      sync.RWMutex
	entries map[string]txDetailEntry
}

type txDetailEntry struct {
	detail    chain.TxDetail
	confirmed bool
}

// NewTxDetailCache creates a new empty transaction detail cache.
func NewTxDetailCache() *TxDetailCache {
	return &TxDetailCache{
		entries: make(map[string]txDetailEntry),
	}
}

func txKey(address, txid string) string {
	return address + ":" + txid
}

// Get returns a cached transaction detail if its confirmation state
// matches what the caller currently observes. A state flip in either
// direction is treated as a miss and evicts the entry.
func (c *TxDetailCache) Get(address, txid string, nowConfirmed bool) (*chain.TxDetail, bool) {
	c.mu.RLock()
	entry, exists := c.entries[txKey(address, txid)]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if entry.confirmed != nowConfirmed {
		c.mu.Lock()
		delete(c.entries, txKey(address, txid))
		c.mu.Unlock()
		return nil, false
	}
	detail := entry.detail
	return &detail, true
}

// Set stores a transaction detail with its confirmation state.
func (c *TxDetailCache) Set(address string, detail chain.TxDetail) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[txKey(address, detail.TxID)] = txDetailEntry{
		detail:    detail,
		confirmed: detail.Confirmations > 0,
	}
}

// Clear removes all transaction entries.
func (c *TxDetailCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]txDetailEntry)
}

// Size returns the number of cached transactions.
func (c *TxDetailCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
