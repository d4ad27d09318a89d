package txbuilder

import (
	"github.com/verso-wallet/verso/internal/chain"
)

const (
	// MinFee is the network minimum transaction fee in smallest units.
	MinFee = 10_000

	// DustThreshold is the change value at or below which no change
	// output is created; the remainder is folded into the fee instead.
	DustThreshold = 1_000

	// ConversionFeeDirect is the flat protocol fee for a one-hop
	// conversion into a basket currency.
	ConversionFeeDirect = 10_000

	// ConversionFeeViaBasket is the flat protocol fee for a two-hop
	// conversion routed through a basket.
	ConversionFeeViaBasket = 20_000

	// maxFeeIterations caps the fee-fitting loop. The loop normally
	// reaches a fixed point in one or two passes; the cap bounds
	// latency on pathological UTXO sets.
	maxFeeIterations = 5
)

// Serialized size model constants.
const (
	// txOverheadSize covers header, group id, locktime, expiry, value
	// balance, the empty shielded section markers, and the in/out
	// count varints.
	txOverheadSize = 31

	// inputSize is a signed P2PKH input: outpoint, script length,
	// signature script (~107), sequence.
	inputSize = 148

	// p2pkhOutputSize is value plus the 25-byte script and its length.
	p2pkhOutputSize = 34

	// ccOutputOverhead is the per-output cost beyond the script bytes.
	ccOutputOverhead = 9
)

// SizeModel estimates the serialized byte size of a transaction shape
// from its input count. Output contribution is fixed per shape and
// baked in by the builder constructing the model.
type SizeModel func(numInputs int) int64

// PlainSizeModel models a plain transfer with numOutputs P2PKH outputs.
func PlainSizeModel(numOutputs int) SizeModel {
	return func(numInputs int) int64 {
		return txOverheadSize + int64(numInputs)*inputSize + int64(numOutputs)*p2pkhOutputSize
	}
}

// CCSizeModel models a transaction with one smart output of the exact
// given script length plus numPlainOutputs P2PKH outputs.
func CCSizeModel(ccScriptLen, numPlainOutputs int) SizeModel {
	return func(numInputs int) int64 {
		return txOverheadSize +
			int64(numInputs)*inputSize +
			ccOutputOverhead + int64(ccScriptLen) +
			int64(numPlainOutputs)*p2pkhOutputSize
	}
}

// FeeForSize converts a byte size to a fee at the given per-kilobyte
// rate, floored at the network minimum.
func FeeForSize(size, ratePerKB int64) int64 {
	fee := (size*ratePerKB + 999) / 1000
	if fee < MinFee {
		return MinFee
	}
	return fee
}

// FitFee runs the bounded fixed-point fee loop: select UTXOs for
// amount+fee, recompute the fee from the actual input count, reselect
// if the fee grew. The fee sequence is monotonic non-decreasing, and
// the loop stops at the first fixed point or after maxFeeIterations.
func FitFee(utxos []chain.UTXO, amount, ratePerKB int64, sizeFor SizeModel) (selected []chain.UTXO, total, fee int64, err error) {
	fee = MinFee
	for i := 0; i < maxFeeIterations; i++ {
		selected, total, err = SelectUTXOs(utxos, amount+fee)
		if err != nil {
			return nil, 0, 0, err
		}

		newFee := FeeForSize(sizeFor(len(selected)), ratePerKB)
		if newFee <= fee {
			return selected, total, fee, nil
		}
		fee = newFee
	}

	// Iteration cap reached; the last selection covered the previous
	// fee value. Reselect once at the final fee so the invariant
	// total >= amount+fee holds.
	selected, total, err = SelectUTXOs(utxos, amount+fee)
	if err != nil {
		return nil, 0, 0, err
	}
	return selected, total, fee, nil
}
