package txbuilder

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/verso-wallet/verso/internal/chain"
	"github.com/verso-wallet/verso/internal/keychain"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

// AssetSendRequest describes a transfer of a non-native currency.
type AssetSendRequest struct {
	Params keychain.Params

	// UTXOs must carry their output scripts; asset balances live in
	// the script, not the output value.
	UTXOs []chain.UTXO

	// Currency is the asset's identity address.
	Currency string
	Amount   *big.Int

	Recipient string

	FeeRatePerKB  int64
	CurrentHeight int64

	Sender  string
	PrivKey []byte
	PubKey  []byte
}

// assetUTXO pairs a UTXO with its decoded script.
type assetUTXO struct {
	utxo   chain.UTXO
	parsed *ParsedOutput
}

// BuildAssetSend constructs, signs, and self-verifies a multi-asset
// transfer. Asset-bearing UTXOs are selected first for the requested
// currency; plain native UTXOs are added only if the selected set does
// not incidentally carry enough native value for the mining fee.
func BuildAssetSend(req *AssetSendRequest) (*BuiltTx, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, walleterr.ErrInvalidAmount
	}
	if err := keychain.ValidateAddress(req.Params, req.Recipient); err != nil {
		return nil, err
	}
	if len(req.UTXOs) == 0 {
		return nil, walleterr.ErrNoUTXOs
	}

	senderHash, err := keychain.PubKeyHashFromAddress(req.Params, req.Sender)
	if err != nil {
		return nil, walleterr.Wrap(err, "sender address")
	}
	recipientHash, err := keychain.PubKeyHashFromAddress(req.Params, req.Recipient)
	if err != nil {
		return nil, walleterr.Wrap(err, "recipient address")
	}
	spendScript, err := keychain.PayToAddrScript(req.Params, req.Sender)
	if err != nil {
		return nil, walleterr.Wrap(err, "sender script")
	}

	assetBearing, plainNative := partitionUTXOs(req, senderHash)
	selectedAssets, assetTotal, err := selectAssetUTXOs(assetBearing, req.Currency, req.Amount)
	if err != nil {
		return nil, err
	}

	// Native value the asset inputs carry incidentally.
	var assetNative int64
	for _, au := range selectedAssets {
		assetNative += au.utxo.Value
	}

	recipientScript, err := AssetOutputScript(req.Params, recipientHash, map[string]*big.Int{
		req.Currency: req.Amount,
	})
	if err != nil {
		return nil, err
	}

	changeAssets := residualAssets(selectedAssets, req.Currency, req.Amount, assetTotal)
	var changeAssetScript []byte
	if len(changeAssets) > 0 {
		if changeAssetScript, err = AssetOutputScript(req.Params, senderHash, changeAssets); err != nil {
			return nil, err
		}
	}

	selectedNative, nativeTotal, fee, err := fitAssetFee(
		plainNative, assetNative, len(selectedAssets), req.FeeRatePerKB,
		len(recipientScript), len(changeAssetScript),
	)
	if err != nil {
		return nil, err
	}

	nativeChange := nativeTotal - fee
	if nativeChange <= DustThreshold {
		fee += nativeChange
		nativeChange = 0
	}

	tx := NewTx(req.CurrentHeight)
	for _, au := range selectedAssets {
		if err := tx.AddInput(au.utxo.TxID, au.utxo.Vout, au.utxo.Value, au.utxo.Script); err != nil {
			return nil, err
		}
	}
	for _, u := range selectedNative {
		if err := tx.AddInput(u.TxID, u.Vout, u.Value, spendScript); err != nil {
			return nil, err
		}
	}

	tx.AddOutput(0, recipientScript)
	if changeAssetScript != nil {
		tx.AddOutput(0, changeAssetScript)
	}
	if nativeChange > 0 {
		tx.AddOutput(nativeChange, spendScript)
	}

	signer := &Signer{PrivKey: req.PrivKey, PubKey: req.PubKey, SpendScript: spendScript}
	if err := signer.SignAll(tx); err != nil {
		return nil, err
	}

	raw, err := tx.Serialize()
	if err != nil {
		return nil, err
	}
	if err := verifyAssetSend(req, raw, recipientHash); err != nil {
		return nil, err
	}

	return finishBuild(tx, raw, fee, nativeChange)
}

// partitionUTXOs splits candidates into asset-bearing outputs guarded
// by the sender's key and plain native outputs. Undecodable scripts are
// skipped entirely.
func partitionUTXOs(req *AssetSendRequest, senderHash []byte) (assetBearing []assetUTXO, plainNative []chain.UTXO) {
	for _, u := range req.UTXOs {
		parsed := ParseOutputScript(req.Params, u.Script)
		switch parsed.Kind {
		case OutputAsset:
			if bytes.Equal(parsed.PubKeyHash, senderHash) && parsed.Assets[req.Currency] != nil {
				assetBearing = append(assetBearing, assetUTXO{utxo: u, parsed: parsed})
			}
		case OutputPlain:
			plainNative = append(plainNative, u)
		case OutputUnknown, OutputReserveTransfer:
			// not spendable by this wallet
		}
	}
	return assetBearing, plainNative
}

// selectAssetUTXOs accumulates asset-bearing UTXOs largest-first by
// their carried amount of the target currency.
func selectAssetUTXOs(candidates []assetUTXO, currency string, target *big.Int) ([]assetUTXO, *big.Int, error) {
	sorted := make([]assetUTXO, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].parsed.Assets[currency].Cmp(sorted[j].parsed.Assets[currency]) > 0
	})

	total := new(big.Int)
	var selected []assetUTXO
	for _, au := range sorted {
		selected = append(selected, au)
		total.Add(total, au.parsed.Assets[currency])
		if total.Cmp(target) >= 0 {
			return selected, total, nil
		}
	}

	return nil, nil, walleterr.WithDetails(walleterr.ErrInsufficientFunds, map[string]string{
		"currency": currency,
		"have":     total.String(),
		"need":     target.String(),
	})
}

// residualAssets computes the change currency map: the remainder of the
// target currency plus every other currency the selected inputs carry.
func residualAssets(selected []assetUTXO, currency string, amount, total *big.Int) map[string]*big.Int {
	change := make(map[string]*big.Int)
	if remainder := new(big.Int).Sub(total, amount); remainder.Sign() > 0 {
		change[currency] = remainder
	}
	for _, au := range selected {
		for cur, v := range au.parsed.Assets {
			if cur == currency {
				continue
			}
			if existing, ok := change[cur]; ok {
				existing.Add(existing, v)
			} else {
				change[cur] = new(big.Int).Set(v)
			}
		}
	}
	return change
}

// fitAssetFee runs the fee loop over the plain-native candidates to
// cover whatever the asset inputs' incidental native value does not.
func fitAssetFee(plainNative []chain.UTXO, assetNative int64, numAssetInputs int, ratePerKB int64, recipientLen, changeLen int) (selected []chain.UTXO, nativeTotal, fee int64, err error) {
	sizeFor := func(numNativeInputs int) int64 {
		size := txOverheadSize +
			int64(numAssetInputs+numNativeInputs)*inputSize +
			ccOutputOverhead + int64(recipientLen) +
			p2pkhOutputSize
		if changeLen > 0 {
			size += ccOutputOverhead + int64(changeLen)
		}
		return size
	}

	fee = FeeForSize(sizeFor(0), ratePerKB)
	for i := 0; i < maxFeeIterations; i++ {
		selected = nil
		nativeTotal = assetNative
		if shortfall := fee - assetNative; shortfall > 0 {
			var sum int64
			selected, sum, err = SelectUTXOs(plainNative, shortfall)
			if err != nil {
				return nil, 0, 0, walleterr.Wrap(err, "native fee shortfall of %d", shortfall)
			}
			nativeTotal += sum
		}

		newFee := FeeForSize(sizeFor(len(selected)), ratePerKB)
		if newFee <= fee {
			return selected, nativeTotal, fee, nil
		}
		fee = newFee
	}

	// Iteration cap reached; the last selection covered the previous
	// fee value. Reselect once at the final fee so the invariant
	// nativeTotal >= fee holds.
	selected = nil
	nativeTotal = assetNative
	if shortfall := fee - assetNative; shortfall > 0 {
		var sum int64
		selected, sum, err = SelectUTXOs(plainNative, shortfall)
		if err != nil {
			return nil, 0, 0, walleterr.Wrap(err, "native fee shortfall of %d", shortfall)
		}
		nativeTotal += sum
	}
	return selected, nativeTotal, fee, nil
}

// verifyAssetSend re-decodes the serialized transaction and checks the
// recipient output carries exactly the requested asset amount to the
// requested key hash.
func verifyAssetSend(req *AssetSendRequest, raw []byte, recipientHash []byte) error {
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
	if parsed.Kind != OutputAsset || !bytes.Equal(parsed.PubKeyHash, recipientHash) {
		return walleterr.WithDetails(walleterr.ErrTxVerification, map[string]string{
			"check": "recipient output",
		})
	}
	if got := parsed.Assets[req.Currency]; got == nil || got.Cmp(req.Amount) != 0 {
		return walleterr.WithDetails(walleterr.ErrTxVerification, map[string]string{
			"check": "asset amount",
		})
	}
	return nil
}
