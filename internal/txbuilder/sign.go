package txbuilder

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

// Signer holds the key material and spend script of one signing key.
// The private key bytes are borrowed, not owned; callers wipe them.
type Signer struct {
	PrivKey []byte
	PubKey  []byte

	// SpendScript is the P2PKH script guarding the signer's outputs,
	// used as the script code of every signed input.
	SpendScript []byte
}

// SignInput signs input idx with SIGHASH_ALL under the input's own
// recorded value.
func (s *Signer) SignInput(tx *Tx, idx int) error {
	in := tx.TxIn[idx]
	scriptCode := in.PrevScript
	if len(scriptCode) == 0 {
		scriptCode = s.SpendScript
	}

	digest, err := SignatureHash(tx, idx, scriptCode, in.Value, SigHashAll, SaplingBranchID)
	if err != nil {
		return walleterr.Wrap(err, "computing signature hash for input %d", idx)
	}

	priv := secp256k1.PrivKeyFromBytes(s.PrivKey)
	defer priv.Zero()

	sig := ecdsa.Sign(priv, digest)
	sigWithType := append(sig.Serialize(), SigHashAll)

	sigScript, err := txscript.NewScriptBuilder().
		AddData(sigWithType).
		AddData(s.PubKey).
		Script()
	if err != nil {
		return walleterr.Wrap(err, "building signature script for input %d", idx)
	}

	in.SignatureScript = sigScript
	return nil
}

// SignAll signs every input of the transaction.
func (s *Signer) SignAll(tx *Tx) error {
	for i := range tx.TxIn {
		if err := s.SignInput(tx, i); err != nil {
			return err
		}
	}
	return nil
}
