package keychain

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/verso-wallet/verso/internal/securemem"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

// compressedFlag is appended to a WIF payload when the corresponding
// public key is compressed.
const compressedFlag = 0x01

// DecodeWIF decodes a wallet-import-format private key. The 32-byte key
// is returned in secure memory; the intermediate decode buffer is wiped.
func DecodeWIF(params Params, wif string) (*securemem.SecureBytes, error) {
	if wif == "" || len(wif) > MaxAddressLength {
		return nil, walleterr.ErrValidation
	}

	payload, version, err := base58.CheckDecode(wif)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.ErrValidation, "WIF decode")
	}
	defer securemem.Zero(payload)

	if version != params.WIFVersion {
		return nil, walleterr.WithDetails(walleterr.ErrValidation, map[string]string{
			"wif_version": fmt.Sprintf("0x%02x", version),
		})
	}

	switch len(payload) {
	case 32:
	case 33:
		if payload[32] != compressedFlag {
			return nil, walleterr.WithSuggestion(walleterr.ErrValidation,
				"malformed WIF compression flag")
		}
	default:
		return nil, walleterr.WithSuggestion(walleterr.ErrValidation,
			"malformed WIF payload length")
	}

	return securemem.FromSlice(payload[:32])
}

// EncodeWIF encodes a 32-byte private key in wallet-import-format with
// the compressed-key flag set.
func EncodeWIF(params Params, privKey []byte) (string, error) {
	if len(privKey) != 32 {
		return "", walleterr.ErrValidation
	}

	payload := make([]byte, 33)
	copy(payload, privKey)
	payload[32] = compressedFlag
	defer securemem.Zero(payload)

	return base58.CheckEncode(payload, params.WIFVersion), nil
}

// PubKeyForPrivKey returns the 33-byte compressed public key for a
// 32-byte private key.
func PubKeyForPrivKey(privKey []byte) ([]byte, error) {
	if len(privKey) != 32 {
		return nil, walleterr.ErrValidation
	}
	priv := secp256k1.PrivKeyFromBytes(privKey)
	defer priv.Zero()
	return priv.PubKey().SerializeCompressed(), nil
}
