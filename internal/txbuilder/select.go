package txbuilder

import (
	"fmt"
	"sort"

	"github.com/verso-wallet/verso/internal/chain"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

// SelectUTXOs greedily picks UTXOs largest-first until their cumulative
// value covers the target. Largest-first trades coin-selection
// optimality for predictability and a small input count.
func SelectUTXOs(utxos []chain.UTXO, target int64) (selected []chain.UTXO, total int64, err error) {
	if target <= 0 {
		return nil, 0, walleterr.ErrInvalidAmount
	}
	if len(utxos) == 0 {
		return nil, 0, walleterr.ErrNoUTXOs
	}

	sorted := make([]chain.UTXO, len(utxos))
	copy(sorted, utxos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})

	for _, u := range sorted {
		selected = append(selected, u)
		total += u.Value
		if total >= target {
			return selected, total, nil
		}
	}

	return nil, 0, walleterr.WithDetails(walleterr.ErrInsufficientFunds, map[string]string{
		"have": fmt.Sprintf("%d", total),
		"need": fmt.Sprintf("%d", target),
	})
}
