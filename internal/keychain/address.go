package keychain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"

	// RIPEMD160 is deprecated but required by the address format:
	// P2PKH addresses use Hash160 = RIPEMD160(SHA256(pubkey)).
	//nolint:gosec,staticcheck // G507,SA1019: RIPEMD160 required by address format
	"golang.org/x/crypto/ripemd160"

	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

// MaxAddressLength bounds attacker-controlled address strings before any
// regex or base58 work, to bound CPU cost.
const MaxAddressLength = 100

// pubKeyHashLen is the length of a hash160 payload.
const pubKeyHashLen = 20

// Hash160 computes RIPEMD160(SHA256(data)), the standard P2PKH address
// hashing function.
//
//nolint:gosec // G406: RIPEMD160 usage required by address format
func Hash160(data []byte) []byte {
	sha := sha256.Sum256(data)
	ripemd := ripemd160.New()
	ripemd.Write(sha[:])
	return ripemd.Sum(nil)
}

// EncodeP2PKHAddress encodes a 20-byte public key hash as a base58check
// address under the network's P2PKH version byte.
func EncodeP2PKHAddress(params Params, pubKeyHash []byte) string {
	return base58.CheckEncode(pubKeyHash, params.P2PKHVersion)
}

// IsValidAddress reports whether s is a well-formed address for the
// network. Non-printable-ASCII input is rejected outright as a defense
// against homograph and encoding attacks.
func IsValidAddress(params Params, s string) bool {
	return ValidateAddress(params, s) == nil
}

// ValidateAddress validates an address with full checksum verification.
func ValidateAddress(params Params, s string) error {
	if s == "" || len(s) > MaxAddressLength {
		return walleterr.ErrInvalidAddress
	}

	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return walleterr.ErrInvalidAddress
		}
	}

	version, _, err := DecodeAddress(params, s)
	if err != nil {
		return err
	}

	if version != params.P2PKHVersion && version != params.P2SHVersion {
		return walleterr.WithDetails(walleterr.ErrInvalidAddress, map[string]string{
			"version": fmt.Sprintf("0x%02x", version),
		})
	}

	return nil
}

// DecodeAddress base58check-decodes an address, returning the version
// byte and the 20-byte hash payload.
func DecodeAddress(params Params, s string) (version byte, payload []byte, err error) {
	if s == "" || len(s) > MaxAddressLength {
		return 0, nil, walleterr.ErrInvalidAddress
	}

	payload, version, err = base58.CheckDecode(s)
	if err != nil {
		return 0, nil, walleterr.Wrap(walleterr.ErrInvalidAddress, "base58check decode")
	}

	if len(payload) != pubKeyHashLen {
		return 0, nil, walleterr.WithDetails(walleterr.ErrInvalidAddress, map[string]string{
			"payload_len": fmt.Sprintf("%d", len(payload)),
		})
	}

	return version, payload, nil
}

// PubKeyHashFromAddress returns the hash160 payload of a P2PKH address.
func PubKeyHashFromAddress(params Params, s string) ([]byte, error) {
	version, payload, err := DecodeAddress(params, s)
	if err != nil {
		return nil, err
	}
	if version != params.P2PKHVersion {
		return nil, walleterr.WithSuggestion(walleterr.ErrInvalidAddress,
			"expected a P2PKH address")
	}
	return payload, nil
}

// EncodeIDAddress encodes a 20-byte identity or currency hash as a
// base58check address under the network's identity version byte.
func EncodeIDAddress(params Params, idHash []byte) string {
	return base58.CheckEncode(idHash, params.IDVersion)
}

// DecodeIDAddress decodes an identity or currency address ('i'-prefixed
// on mainnet) to its 20-byte hash.
func DecodeIDAddress(params Params, s string) ([]byte, error) {
	version, payload, err := DecodeAddress(params, s)
	if err != nil {
		return nil, err
	}
	if version != params.IDVersion {
		return nil, walleterr.WithSuggestion(walleterr.ErrInvalidAddress,
			"expected an identity address")
	}
	return payload, nil
}

// AddressToScripthash maps an address to the Electrum-protocol
// scripthash: SHA-256 of the canonical output script, byte-reversed,
// hex-encoded. The byte order is a wire requirement of the downstream
// indexer protocol and must be reproduced bit-exact.
func AddressToScripthash(params Params, address string) (string, error) {
	script, err := PayToAddrScript(params, address)
	if err != nil {
		return "", err
	}

	digest := sha256.Sum256(script)
	for i, j := 0, len(digest)-1; i < j; i, j = i+1, j-1 {
		digest[i], digest[j] = digest[j], digest[i]
	}

	return hex.EncodeToString(digest[:]), nil
}
