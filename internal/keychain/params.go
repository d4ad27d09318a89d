// Package keychain implements deterministic key derivation and the
// Verus address and script formats: BIP39 mnemonics, BIP44 derivation,
// base58check R-addresses, P2PKH output scripts, and the Electrum-style
// scripthash mapping used by the indexer protocol.
package keychain

// Params holds the network encoding constants.
type Params struct {
	// Name is the network identifier.
	Name string

	// P2PKHVersion is the base58check version byte for pay-to-public-key-hash
	// addresses (produces the leading 'R' on mainnet).
	P2PKHVersion byte

	// P2SHVersion is the base58check version byte for pay-to-script-hash
	// addresses.
	P2SHVersion byte

	// WIFVersion is the version byte for wallet-import-format private keys.
	WIFVersion byte

	// IDVersion is the base58check version byte for identity and currency
	// addresses (produces the leading 'i' on mainnet).
	IDVersion byte

	// CoinType is the SLIP-44 coin type used in the BIP44 derivation path.
	CoinType uint32
}

// MainNetParams are the Verus mainnet constants.
//
//nolint:gochecknoglobals // Network constants
var MainNetParams = Params{
	Name:         "mainnet",
	P2PKHVersion: 60,
	P2SHVersion:  85,
	WIFVersion:   188,
	IDVersion:    102,
	CoinType:     19167,
}

// TestNetParams are the Verus testnet constants. The address encoding is
// shared with mainnet; only the derivation namespace differs.
//
//nolint:gochecknoglobals // Network constants
var TestNetParams = Params{
	Name:         "testnet",
	P2PKHVersion: 60,
	P2SHVersion:  85,
	WIFVersion:   188,
	IDVersion:    102,
	CoinType:     1,
}
