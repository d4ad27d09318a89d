package txbuilder

import (
	"github.com/verso-wallet/verso/internal/chain"
	"github.com/verso-wallet/verso/internal/keychain"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

// ConvertRequest describes a reserve-currency conversion. The built
// transaction carries a single protocol instruction output; the network
// executes the conversion and delivers the result, so no counterparty
// output exists.
type ConvertRequest struct {
	Params keychain.Params

	UTXOs []chain.UTXO

	// SourceCurrency is converted into DestCurrency. A two-hop
	// conversion routes through ViaCurrency (a basket holding both).
	SourceCurrency string
	DestCurrency   string
	ViaCurrency    string

	Amount int64

	FeeRatePerKB  int64
	CurrentHeight int64

	Sender  string
	PrivKey []byte
	PubKey  []byte
}

// BuildConvert constructs, signs, and self-verifies a conversion
// transaction. The conversion fee is protocol-flat per hop count and
// independent of the dynamic mining-fee estimator.
func BuildConvert(req *ConvertRequest) (*BuiltTx, error) {
	if req.Amount <= 0 {
		return nil, walleterr.ErrInvalidAmount
	}
	if len(req.UTXOs) == 0 {
		return nil, walleterr.ErrNoUTXOs
	}

	refundHash, err := keychain.PubKeyHashFromAddress(req.Params, req.Sender)
	if err != nil {
		return nil, walleterr.Wrap(err, "sender address")
	}
	spendScript, err := keychain.PayToAddrScript(req.Params, req.Sender)
	if err != nil {
		return nil, walleterr.Wrap(err, "sender script")
	}

	transferFee := int64(ConversionFeeDirect)
	if req.ViaCurrency != "" {
		transferFee = ConversionFeeViaBasket
	}

	rt := &ReserveTransfer{
		SourceCurrency:   req.SourceCurrency,
		DestCurrency:     req.DestCurrency,
		ViaCurrency:      req.ViaCurrency,
		Amount:           req.Amount,
		TransferFee:      transferFee,
		RefundPubKeyHash: refundHash,
	}
	ccScript, err := ReserveTransferScript(req.Params, rt)
	if err != nil {
		return nil, err
	}

	// The instruction output's value is the converted amount plus the
	// protocol fee; the mining fee comes on top of that.
	outputValue := req.Amount + transferFee
	selected, total, miningFee, err := FitFee(req.UTXOs, outputValue, req.FeeRatePerKB, CCSizeModel(len(ccScript), 1))
	if err != nil {
		return nil, err
	}

	change := total - outputValue - miningFee
	if change <= DustThreshold {
		miningFee += change
		change = 0
	}

	tx := NewTx(req.CurrentHeight)
	for _, u := range selected {
		if err := tx.AddInput(u.TxID, u.Vout, u.Value, spendScript); err != nil {
			return nil, err
		}
	}
	tx.AddOutput(outputValue, ccScript)
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
	if err := verifyConvert(req, raw, outputValue, change); err != nil {
		return nil, err
	}

	return finishBuild(tx, raw, miningFee, change)
}

func verifyConvert(req *ConvertRequest, raw []byte, outputValue, change int64) error {
	decoded, err := Deserialize(raw)
	if err != nil {
		return walleterr.Wrap(walleterr.ErrTxVerification, "re-decode: %v", err)
	}
	if len(decoded.TxOut) == 0 {
		return walleterr.WithDetails(walleterr.ErrTxVerification, map[string]string{
			"check": "output count",
		})
	}

	parsed := ParseOutputScript(req.Params, decoded.TxOut[0].PkScript)
	if parsed.Kind != OutputReserveTransfer {
		return walleterr.WithDetails(walleterr.ErrTxVerification, map[string]string{
			"check": "instruction output kind",
		})
	}
	if decoded.TxOut[0].Value != outputValue ||
		parsed.Reserve.Amount != req.Amount ||
		parsed.Reserve.SourceCurrency != req.SourceCurrency ||
		parsed.Reserve.DestCurrency != req.DestCurrency {
		return walleterr.WithDetails(walleterr.ErrTxVerification, map[string]string{
			"check": "instruction output value",
		})
	}
	if change > 0 {
		if len(decoded.TxOut) != 2 {
			return walleterr.WithDetails(walleterr.ErrTxVerification, map[string]string{
				"check": "change output",
			})
		}
		changeAddr, err := keychain.AddressFromScript(req.Params, decoded.TxOut[1].PkScript)
		if err != nil || changeAddr != req.Sender {
			return walleterr.WithDetails(walleterr.ErrTxVerification, map[string]string{
				"check": "change address",
			})
		}
	}
	return nil
}
