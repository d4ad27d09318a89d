// Package chain provides the shared types and plumbing used by the
// blockchain client adapters: UTXO and transaction records, amount
// parsing, upstream response validation, retry, and rate limiting.
package chain

import (
	"math/big"
	"regexp"

	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

// Decimals is the number of decimals of the native coin (satoshi-style).
const Decimals = 8

// txidRegex matches a 64-character lowercase/uppercase hex transaction id.
var txidRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// hexRegex matches any even-length hex string.
var hexRegex = regexp.MustCompile(`^(?:[0-9a-fA-F]{2})*$`)

// UTXO is an unspent transaction output. Fetched fresh per operation and
// never cached beyond a single selection pass.
type UTXO struct {
	// TxID is the 32-byte transaction hash, hex-encoded.
	TxID string

	// Vout is the output index.
	Vout uint32

	// Height is the confirmation block height; 0 means unconfirmed.
	Height int64

	// Value is the native value in the smallest unit.
	Value int64

	// Script is the output script, when the upstream provides it.
	Script []byte
}

// TxRef is a (txid, height) pair from an address history listing.
type TxRef struct {
	TxID   string
	Height int64
}

// Balance is a confirmed/unconfirmed balance pair in smallest units.
type Balance struct {
	Confirmed   int64
	Unconfirmed int64
}

// TxOutDetail is a decoded output of a verbose transaction.
type TxOutDetail struct {
	Value     int64
	Addresses []string

	// ReserveBalances carries per-currency amounts for smart outputs.
	ReserveBalances map[string]*big.Int

	// IsReserveTransfer marks protocol conversion-instruction outputs.
	IsReserveTransfer bool
}

// TxDetail is a verbose transaction record.
type TxDetail struct {
	TxID          string
	Confirmations int64
	Time          int64
	Outputs       []TxOutDetail
}

// ValidateTxID checks the shape of an upstream transaction id.
func ValidateTxID(txid string) error {
	if !txidRegex.MatchString(txid) {
		return walleterr.WithDetails(walleterr.ErrDecode, map[string]string{
			"field": "txid",
		})
	}
	return nil
}

// ValidateHex checks that s is even-length hex.
func ValidateHex(s string) error {
	if !hexRegex.MatchString(s) {
		return walleterr.WithDetails(walleterr.ErrDecode, map[string]string{
			"field": "hex",
		})
	}
	return nil
}

// ValidateNonNegative checks an upstream integer field.
func ValidateNonNegative(field string, v int64) error {
	if v < 0 {
		return walleterr.WithDetails(walleterr.ErrDecode, map[string]string{
			"field": field,
		})
	}
	return nil
}
