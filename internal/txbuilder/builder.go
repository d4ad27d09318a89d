package txbuilder

import (
	"github.com/verso-wallet/verso/internal/chain"
	"github.com/verso-wallet/verso/internal/keychain"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

// BuiltTx is a fully signed, self-verified transaction ready for
// broadcast.
type BuiltTx struct {
	Raw    []byte
	Hex    string
	TxID   string
	Fee    int64
	Change int64
}

// PlainSendRequest describes a plain value transfer.
type PlainSendRequest struct {
	Params keychain.Params

	// UTXOs are the sender's spendable outputs, fetched fresh.
	UTXOs []chain.UTXO

	Recipient string
	Amount    int64

	// FeeRatePerKB is the dynamic estimator rate.
	FeeRatePerKB int64

	// CurrentHeight anchors the expiry window.
	CurrentHeight int64

	// Sender receives any change.
	Sender  string
	PrivKey []byte
	PubKey  []byte
}

// BuildPlainSend selects inputs, constructs, signs, and self-verifies a
// plain P2PKH transfer.
func BuildPlainSend(req *PlainSendRequest) (*BuiltTx, error) {
	if req.Amount <= 0 {
		return nil, walleterr.ErrInvalidAmount
	}
	if err := keychain.ValidateAddress(req.Params, req.Recipient); err != nil {
		return nil, err
	}
	if len(req.UTXOs) == 0 {
		return nil, walleterr.ErrNoUTXOs
	}

	spendScript, err := keychain.PayToAddrScript(req.Params, req.Sender)
	if err != nil {
		return nil, walleterr.Wrap(err, "sender script")
	}
	recipientScript, err := keychain.PayToAddrScript(req.Params, req.Recipient)
	if err != nil {
		return nil, walleterr.Wrap(err, "recipient script")
	}

	selected, total, fee, err := FitFee(req.UTXOs, req.Amount, req.FeeRatePerKB, PlainSizeModel(2))
	if err != nil {
		return nil, err
	}

	change := total - req.Amount - fee
	if change <= DustThreshold {
		fee += change
		change = 0
	}

	tx := NewTx(req.CurrentHeight)
	for _, u := range selected {
		if err := tx.AddInput(u.TxID, u.Vout, u.Value, spendScript); err != nil {
			return nil, err
		}
	}
	tx.AddOutput(req.Amount, recipientScript)
	if change > 0 {
		tx.AddOutput(change, spendScript)
	}

	signer := &Signer{PrivKey: req.PrivKey, PubKey: req.PubKey, SpendScript: spendScript}
	if err := signer.SignAll(tx); err != nil {
		return nil, err
	}

	raw, err := tx.Serialize()
	if err != nil {
		return nil, err
	}
	if err := verifyPlainSend(req, raw, change); err != nil {
		return nil, err
	}

	return finishBuild(tx, raw, fee, change)
}

// verifyPlainSend re-decodes the serialized bytes and checks that the
// first output pays the requested recipient the requested amount. The
// re-decode guards against a builder defect silently paying the wrong
// party.
func verifyPlainSend(req *PlainSendRequest, raw []byte, change int64) error {
	decoded, err := Deserialize(raw)
	if err != nil {
		return walleterr.Wrap(walleterr.ErrTxVerification, "re-decode: %v", err)
	}

	wantOutputs := 1
	if change > 0 {
		wantOutputs = 2
	}
	if len(decoded.TxOut) != wantOutputs {
		return walleterr.WithDetails(walleterr.ErrTxVerification, map[string]string{
			"check": "output count",
		})
	}

	addr, err := keychain.AddressFromScript(req.Params, decoded.TxOut[0].PkScript)
	if err != nil || addr != req.Recipient {
		return walleterr.WithDetails(walleterr.ErrTxVerification, map[string]string{
			"check": "recipient",
		})
	}
	if decoded.TxOut[0].Value != req.Amount {
		return walleterr.WithDetails(walleterr.ErrTxVerification, map[string]string{
			"check": "amount",
		})
	}
	if change > 0 {
		changeAddr, err := keychain.AddressFromScript(req.Params, decoded.TxOut[1].PkScript)
		if err != nil || changeAddr != req.Sender {
			return walleterr.WithDetails(walleterr.ErrTxVerification, map[string]string{
				"check": "change address",
			})
		}
	}
	return nil
}

func finishBuild(tx *Tx, raw []byte, fee, change int64) (*BuiltTx, error) {
	txHex, err := tx.Hex()
	if err != nil {
		return nil, err
	}
	txid, err := tx.TxID()
	if err != nil {
		return nil, err
	}
	return &BuiltTx{
		Raw:    raw,
		Hex:    txHex,
		TxID:   txid,
		Fee:    fee,
		Change: change,
	}, nil
}
