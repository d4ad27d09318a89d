package keychain

import (
	"github.com/btcsuite/btcd/txscript"

	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

// PayToAddrScript builds the canonical output script for an address:
// the standard P2PKH template for P2PKH versions, the P2SH template for
// P2SH versions.
func PayToAddrScript(params Params, address string) ([]byte, error) {
	version, payload, err := DecodeAddress(params, address)
	if err != nil {
		return nil, err
	}

	switch version {
	case params.P2PKHVersion:
		return txscript.NewScriptBuilder().
			AddOp(txscript.OP_DUP).
			AddOp(txscript.OP_HASH160).
			AddData(payload).
			AddOp(txscript.OP_EQUALVERIFY).
			AddOp(txscript.OP_CHECKSIG).
			Script()
	case params.P2SHVersion:
		return txscript.NewScriptBuilder().
			AddOp(txscript.OP_HASH160).
			AddData(payload).
			AddOp(txscript.OP_EQUAL).
			Script()
	default:
		return nil, walleterr.ErrInvalidAddress
	}
}

// ScriptPubKeyForSigningKey builds the P2PKH prevout script for a
// compressed public key. This is the script supplied to the signer for
// legacy-style signature hashing.
func ScriptPubKeyForSigningKey(pubKey []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(Hash160(pubKey)).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// AddressFromScript decodes a standard P2PKH output script back to its
// address. Used by the post-build transaction self-check.
func AddressFromScript(params Params, script []byte) (string, error) {
	// OP_DUP OP_HASH160 <20-byte push> OP_EQUALVERIFY OP_CHECKSIG
	if len(script) != 25 ||
		script[0] != txscript.OP_DUP ||
		script[1] != txscript.OP_HASH160 ||
		script[2] != 0x14 ||
		script[23] != txscript.OP_EQUALVERIFY ||
		script[24] != txscript.OP_CHECKSIG {
		return "", walleterr.WithSuggestion(walleterr.ErrDecode,
			"script is not a standard P2PKH output")
	}

	return EncodeP2PKHAddress(params, script[3:23]), nil
}
