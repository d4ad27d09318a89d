package txbuilder

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verso-wallet/verso/internal/chain"
	"github.com/verso-wallet/verso/internal/keychain"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

var testParams = keychain.MainNetParams

// testKey returns a deterministic signing key and its address.
func testKey(t *testing.T, seed byte) (priv, pub []byte, address string) {
	t.Helper()
	priv = make([]byte, 32)
	for i := range priv {
		priv[i] = seed + byte(i)
	}
	pub, err := keychain.PubKeyForPrivKey(priv)
	require.NoError(t, err)
	address = keychain.EncodeP2PKHAddress(testParams, keychain.Hash160(pub))
	return priv, pub, address
}

func testCurrency(seed byte) string {
	id := make([]byte, 20)
	for i := range id {
		id[i] = seed + byte(i)
	}
	return keychain.EncodeIDAddress(testParams, id)
}

func testTxID(c byte) string {
	return strings.Repeat(string([]byte{c}), 64)
}

func TestSelectUTXOs(t *testing.T) {
	t.Parallel()

	t.Run("largest first sufficiency", func(t *testing.T) {
		t.Parallel()

		utxos := []chain.UTXO{
			{TxID: testTxID('a'), Vout: 0, Value: 3_000_000},
			{TxID: testTxID('b'), Vout: 1, Value: 50_000_000},
		}

		selected, total, err := SelectUTXOs(utxos, 10_000_000)
		require.NoError(t, err)
		require.Len(t, selected, 1)
		assert.Equal(t, int64(50_000_000), selected[0].Value)
		assert.Equal(t, int64(50_000_000), total)
	})

	t.Run("accumulates until covered", func(t *testing.T) {
		t.Parallel()

		utxos := []chain.UTXO{
			{TxID: testTxID('a'), Value: 30},
			{TxID: testTxID('b'), Value: 20},
			{TxID: testTxID('c'), Value: 10},
		}

		selected, total, err := SelectUTXOs(utxos, 45)
		require.NoError(t, err)
		assert.Len(t, selected, 2)
		assert.Equal(t, int64(50), total)
	})

	t.Run("insufficient funds carries have and need", func(t *testing.T) {
		t.Parallel()

		utxos := []chain.UTXO{{TxID: testTxID('a'), Value: 100}}

		_, _, err := SelectUTXOs(utxos, 200)
		require.Error(t, err)
		assert.ErrorIs(t, err, walleterr.ErrInsufficientFunds)

		var we *walleterr.WalletError
		require.True(t, walleterr.As(err, &we))
		assert.Equal(t, "100", we.Details["have"])
		assert.Equal(t, "200", we.Details["need"])
	})

	t.Run("empty set", func(t *testing.T) {
		t.Parallel()

		_, _, err := SelectUTXOs(nil, 100)
		assert.ErrorIs(t, err, walleterr.ErrNoUTXOs)
	})

	t.Run("non-positive target", func(t *testing.T) {
		t.Parallel()

		_, _, err := SelectUTXOs([]chain.UTXO{{Value: 100}}, 0)
		assert.ErrorIs(t, err, walleterr.ErrInvalidAmount)
	})
}

func TestFeeForSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(MinFee), FeeForSize(225, 10_000), "below minimum floors")
	assert.Equal(t, int64(22_500), FeeForSize(225, 100_000))
	assert.Equal(t, int64(112_500), FeeForSize(1125, 100_000))
	assert.Equal(t, int64(100_100), FeeForSize(1001, 100_000), "rounds up per byte")
}

func TestFitFee(t *testing.T) {
	t.Parallel()

	t.Run("fixed point at minimum fee", func(t *testing.T) {
		t.Parallel()

		utxos := []chain.UTXO{{TxID: testTxID('a'), Value: 50_000_000}}

		selected, total, fee, err := FitFee(utxos, 10_000_000, 10_000, PlainSizeModel(2))
		require.NoError(t, err)
		assert.Len(t, selected, 1)
		assert.Equal(t, int64(50_000_000), total)
		assert.Equal(t, int64(MinFee), fee)
	})

	t.Run("fee grows monotonically with input count", func(t *testing.T) {
		t.Parallel()

		// Many small UTXOs force a large input count at a high rate.
		var utxos []chain.UTXO
		for i := 0; i < 50; i++ {
			utxos = append(utxos, chain.UTXO{TxID: testTxID('a'), Vout: uint32(i), Value: 1_000_000})
		}

		selected, total, fee, err := FitFee(utxos, 30_000_000, 2_000_000, PlainSizeModel(2))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, fee, int64(MinFee))
		assert.GreaterOrEqual(t, total, 30_000_000+fee)
		assert.NotEmpty(t, selected)
	})

	t.Run("insufficient for amount plus fee", func(t *testing.T) {
		t.Parallel()

		utxos := []chain.UTXO{{TxID: testTxID('a'), Value: 10_000_000}}

		_, _, _, err := FitFee(utxos, 9_995_000, 10_000, PlainSizeModel(2))
		require.Error(t, err)
		assert.ErrorIs(t, err, walleterr.ErrInsufficientFunds)
	})
}

func TestFitAssetFeeCapReselects(t *testing.T) {
	t.Parallel()

	// Values below the marginal per-input fee keep the loop growing
	// until the iteration cap. The final selection must still cover
	// the capped fee instead of failing with the stale input set.
	var utxos []chain.UTXO
	for i := 0; i < 200; i++ {
		utxos = append(utxos, chain.UTXO{TxID: testTxID('b'), Vout: uint32(i), Value: 100_000})
	}

	selected, nativeTotal, fee, err := fitAssetFee(utxos, 0, 1, 1_000_000, 40, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, selected)
	assert.GreaterOrEqual(t, nativeTotal, fee)
}

func TestTxSerializeRoundTrip(t *testing.T) {
	t.Parallel()

	tx := NewTx(2_500_000)
	require.NoError(t, tx.AddInput(testTxID('a'), 3, 1_000_000, nil))
	tx.AddOutput(900_000, []byte{0x76, 0xa9})

	raw, err := tx.Serialize()
	require.NoError(t, err)

	decoded, err := Deserialize(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(VersionSapling), decoded.Version)
	assert.Equal(t, uint32(2_500_000+expiryOffset), decoded.ExpiryHeight)
	require.Len(t, decoded.TxIn, 1)
	assert.Equal(t, uint32(3), decoded.TxIn[0].PreviousOutPoint.Index)
	require.Len(t, decoded.TxOut, 1)
	assert.Equal(t, int64(900_000), decoded.TxOut[0].Value)
}

func TestDeserialize_RejectsNonSapling(t *testing.T) {
	t.Parallel()

	// Legacy version 1 header without the overwinter flag.
	_, err := Deserialize([]byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
	require.Error(t, err)
	assert.ErrorIs(t, err, walleterr.ErrDecode)
}

func TestAssetScriptRoundTrip(t *testing.T) {
	t.Parallel()

	hash := make([]byte, 20)
	for i := range hash {
		hash[i] = byte(i)
	}
	currency := testCurrency(0x40)
	amount := new(big.Int)
	amount.SetString("123456789012345678901234567890", 10)

	script, err := AssetOutputScript(testParams, hash, map[string]*big.Int{currency: amount})
	require.NoError(t, err)

	parsed := ParseOutputScript(testParams, script)
	require.Equal(t, OutputAsset, parsed.Kind)
	assert.Equal(t, hash, parsed.PubKeyHash)
	require.Len(t, parsed.Assets, 1)
	assert.Zero(t, parsed.Assets[currency].Cmp(amount))
}

func TestReserveTransferScriptRoundTrip(t *testing.T) {
	t.Parallel()

	refund := make([]byte, 20)
	rt := &ReserveTransfer{
		SourceCurrency:   testCurrency(0x10),
		DestCurrency:     testCurrency(0x20),
		ViaCurrency:      testCurrency(0x30),
		Amount:           5_000_000,
		TransferFee:      ConversionFeeViaBasket,
		RefundPubKeyHash: refund,
	}

	script, err := ReserveTransferScript(testParams, rt)
	require.NoError(t, err)

	parsed := ParseOutputScript(testParams, script)
	require.Equal(t, OutputReserveTransfer, parsed.Kind)
	assert.Equal(t, rt.SourceCurrency, parsed.Reserve.SourceCurrency)
	assert.Equal(t, rt.DestCurrency, parsed.Reserve.DestCurrency)
	assert.Equal(t, rt.ViaCurrency, parsed.Reserve.ViaCurrency)
	assert.Equal(t, int64(5_000_000), parsed.Reserve.Amount)
	assert.Equal(t, int64(ConversionFeeViaBasket), parsed.Reserve.TransferFee)
}

func TestParseOutputScript_Unknown(t *testing.T) {
	t.Parallel()

	for name, script := range map[string][]byte{
		"empty":        nil,
		"op_return":    {0x6a, 0x01, 0x00},
		"truncated cc": {0x05, 0x01, 0x02, 0xcc},
		"bad tag":      {0x02, 0x7f, 0x00, 0xcc},
		"p2sh":         {0xa9, 0x14, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 0x87},
	} {
		script := script
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, OutputUnknown, ParseOutputScript(testParams, script).Kind)
		})
	}
}

func TestBuildPlainSend(t *testing.T) {
	t.Parallel()

	priv, pub, sender := testKey(t, 1)
	_, _, recipient := testKey(t, 50)

	t.Run("end to end with change", func(t *testing.T) {
		t.Parallel()

		req := &PlainSendRequest{
			Params: testParams,
			UTXOs: []chain.UTXO{
				{TxID: testTxID('a'), Vout: 0, Value: 50_000_000},
				{TxID: testTxID('b'), Vout: 1, Value: 3_000_000},
			},
			Recipient:     recipient,
			Amount:        10_000_000,
			FeeRatePerKB:  10_000,
			CurrentHeight: 2_500_000,
			Sender:        sender,
			PrivKey:       priv,
			PubKey:        pub,
		}

		built, err := BuildPlainSend(req)
		require.NoError(t, err)
		assert.Equal(t, int64(MinFee), built.Fee)
		assert.Equal(t, int64(50_000_000-10_000_000-MinFee), built.Change)

		decoded, err := Deserialize(built.Raw)
		require.NoError(t, err)
		require.Len(t, decoded.TxIn, 1, "largest UTXO alone suffices")
		require.Len(t, decoded.TxOut, 2)

		addr, err := keychain.AddressFromScript(testParams, decoded.TxOut[0].PkScript)
		require.NoError(t, err)
		assert.Equal(t, recipient, addr)
		assert.Equal(t, int64(10_000_000), decoded.TxOut[0].Value)

		changeAddr, err := keychain.AddressFromScript(testParams, decoded.TxOut[1].PkScript)
		require.NoError(t, err)
		assert.Equal(t, sender, changeAddr)

		for _, in := range decoded.TxIn {
			assert.NotEmpty(t, in.SignatureScript)
		}
	})

	t.Run("dust change folds into fee and drops the output", func(t *testing.T) {
		t.Parallel()

		// total - amount - minfee = 500, below the dust threshold
		req := &PlainSendRequest{
			Params:        testParams,
			UTXOs:         []chain.UTXO{{TxID: testTxID('a'), Value: 10_000_000 + MinFee + 500}},
			Recipient:     recipient,
			Amount:        10_000_000,
			FeeRatePerKB:  10_000,
			CurrentHeight: 2_500_000,
			Sender:        sender,
			PrivKey:       priv,
			PubKey:        pub,
		}

		built, err := BuildPlainSend(req)
		require.NoError(t, err)
		assert.Equal(t, int64(MinFee+500), built.Fee)
		assert.Zero(t, built.Change)

		decoded, err := Deserialize(built.Raw)
		require.NoError(t, err)
		assert.Len(t, decoded.TxOut, 1)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		t.Parallel()

		_, err := BuildPlainSend(&PlainSendRequest{
			Params: testParams, Recipient: recipient, Amount: 0,
			UTXOs: []chain.UTXO{{Value: 1}}, Sender: sender, PrivKey: priv, PubKey: pub,
		})
		assert.ErrorIs(t, err, walleterr.ErrInvalidAmount)
	})

	t.Run("rejects bad recipient", func(t *testing.T) {
		t.Parallel()

		_, err := BuildPlainSend(&PlainSendRequest{
			Params: testParams, Recipient: "garbage", Amount: 1,
			UTXOs: []chain.UTXO{{Value: 1}}, Sender: sender, PrivKey: priv, PubKey: pub,
		})
		assert.ErrorIs(t, err, walleterr.ErrInvalidAddress)
	})

	t.Run("no utxos", func(t *testing.T) {
		t.Parallel()

		_, err := BuildPlainSend(&PlainSendRequest{
			Params: testParams, Recipient: recipient, Amount: 1,
			Sender: sender, PrivKey: priv, PubKey: pub,
		})
		assert.ErrorIs(t, err, walleterr.ErrNoUTXOs)
	})
}

func TestBuildConvert(t *testing.T) {
	t.Parallel()

	priv, pub, sender := testKey(t, 7)

	t.Run("direct conversion", func(t *testing.T) {
		t.Parallel()

		req := &ConvertRequest{
			Params:         testParams,
			UTXOs:          []chain.UTXO{{TxID: testTxID('c'), Value: 100_000_000}},
			SourceCurrency: testCurrency(0x10),
			DestCurrency:   testCurrency(0x20),
			Amount:         5_000_000,
			FeeRatePerKB:   10_000,
			CurrentHeight:  2_500_000,
			Sender:         sender,
			PrivKey:        priv,
			PubKey:         pub,
		}

		built, err := BuildConvert(req)
		require.NoError(t, err)

		decoded, err := Deserialize(built.Raw)
		require.NoError(t, err)
		require.NotEmpty(t, decoded.TxOut)

		parsed := ParseOutputScript(testParams, decoded.TxOut[0].PkScript)
		require.Equal(t, OutputReserveTransfer, parsed.Kind)
		assert.Equal(t, int64(5_000_000+ConversionFeeDirect), decoded.TxOut[0].Value,
			"instruction output value is amount plus flat fee")
		assert.Equal(t, int64(ConversionFeeDirect), parsed.Reserve.TransferFee)
		assert.Empty(t, parsed.Reserve.ViaCurrency)
	})

	t.Run("two hop via basket doubles the flat fee", func(t *testing.T) {
		t.Parallel()

		req := &ConvertRequest{
			Params:         testParams,
			UTXOs:          []chain.UTXO{{TxID: testTxID('d'), Value: 100_000_000}},
			SourceCurrency: testCurrency(0x10),
			DestCurrency:   testCurrency(0x20),
			ViaCurrency:    testCurrency(0x30),
			Amount:         5_000_000,
			FeeRatePerKB:   10_000,
			CurrentHeight:  2_500_000,
			Sender:         sender,
			PrivKey:        priv,
			PubKey:         pub,
		}

		built, err := BuildConvert(req)
		require.NoError(t, err)

		decoded, err := Deserialize(built.Raw)
		require.NoError(t, err)
		parsed := ParseOutputScript(testParams, decoded.TxOut[0].PkScript)
		require.Equal(t, OutputReserveTransfer, parsed.Kind)
		assert.Equal(t, int64(5_000_000+ConversionFeeViaBasket), decoded.TxOut[0].Value)
		assert.Equal(t, testCurrency(0x30), parsed.Reserve.ViaCurrency)
	})
}

func TestBuildAssetSend(t *testing.T) {
	t.Parallel()

	priv, pub, sender := testKey(t, 9)
	_, _, recipient := testKey(t, 90)
	senderHash := keychain.Hash160(pub)
	currency := testCurrency(0x55)

	assetScript := func(t *testing.T, amount int64) []byte {
		t.Helper()
		script, err := AssetOutputScript(testParams, senderHash, map[string]*big.Int{
			currency: big.NewInt(amount),
		})
		require.NoError(t, err)
		return script
	}
	nativeScript, err := keychain.PayToAddrScript(testParams, sender)
	require.NoError(t, err)

	t.Run("exact asset amount needs a native fee utxo", func(t *testing.T) {
		t.Parallel()

		req := &AssetSendRequest{
			Params: testParams,
			UTXOs: []chain.UTXO{
				// Asset UTXO carries no native value at all.
				{TxID: testTxID('a'), Vout: 0, Value: 0, Script: assetScript(t, 1_000_000)},
				{TxID: testTxID('b'), Vout: 1, Value: 40_000_000, Script: nativeScript},
			},
			Currency:      currency,
			Amount:        big.NewInt(1_000_000),
			Recipient:     recipient,
			FeeRatePerKB:  10_000,
			CurrentHeight: 2_500_000,
			Sender:        sender,
			PrivKey:       priv,
			PubKey:        pub,
		}

		built, err := BuildAssetSend(req)
		require.NoError(t, err)

		decoded, err := Deserialize(built.Raw)
		require.NoError(t, err)
		require.Len(t, decoded.TxIn, 2, "asset input plus native fee input")

		// Exact amount: recipient asset output and native change only.
		require.Len(t, decoded.TxOut, 2)
		parsed := ParseOutputScript(testParams, decoded.TxOut[0].PkScript)
		require.Equal(t, OutputAsset, parsed.Kind)
		assert.Zero(t, parsed.Assets[currency].Cmp(big.NewInt(1_000_000)))

		changeAddr, err := keychain.AddressFromScript(testParams, decoded.TxOut[1].PkScript)
		require.NoError(t, err)
		assert.Equal(t, sender, changeAddr)
	})

	t.Run("asset remainder produces asset change to sender", func(t *testing.T) {
		t.Parallel()

		req := &AssetSendRequest{
			Params: testParams,
			UTXOs: []chain.UTXO{
				{TxID: testTxID('a'), Vout: 0, Value: 50_000, Script: assetScript(t, 3_000_000)},
				{TxID: testTxID('b'), Vout: 1, Value: 40_000_000, Script: nativeScript},
			},
			Currency:      currency,
			Amount:        big.NewInt(1_000_000),
			Recipient:     recipient,
			FeeRatePerKB:  10_000,
			CurrentHeight: 2_500_000,
			Sender:        sender,
			PrivKey:       priv,
			PubKey:        pub,
		}

		built, err := BuildAssetSend(req)
		require.NoError(t, err)

		decoded, err := Deserialize(built.Raw)
		require.NoError(t, err)
		require.Len(t, decoded.TxOut, 3, "recipient, asset change, native change")

		change := ParseOutputScript(testParams, decoded.TxOut[1].PkScript)
		require.Equal(t, OutputAsset, change.Kind)
		assert.Equal(t, senderHash, change.PubKeyHash)
		assert.Zero(t, change.Assets[currency].Cmp(big.NewInt(2_000_000)))
	})

	t.Run("insufficient asset balance names the currency", func(t *testing.T) {
		t.Parallel()

		req := &AssetSendRequest{
			Params: testParams,
			UTXOs: []chain.UTXO{
				{TxID: testTxID('a'), Vout: 0, Value: 0, Script: assetScript(t, 100)},
			},
			Currency:      currency,
			Amount:        big.NewInt(1_000_000),
			Recipient:     recipient,
			FeeRatePerKB:  10_000,
			CurrentHeight: 2_500_000,
			Sender:        sender,
			PrivKey:       priv,
			PubKey:        pub,
		}

		_, err := BuildAssetSend(req)
		require.Error(t, err)
		assert.ErrorIs(t, err, walleterr.ErrInsufficientFunds)

		var we *walleterr.WalletError
		require.True(t, walleterr.As(err, &we))
		assert.Equal(t, currency, we.Details["currency"])
	})

	t.Run("no native value anywhere fails the fee", func(t *testing.T) {
		t.Parallel()

		req := &AssetSendRequest{
			Params: testParams,
			UTXOs: []chain.UTXO{
				{TxID: testTxID('a'), Vout: 0, Value: 0, Script: assetScript(t, 2_000_000)},
			},
			Currency:      currency,
			Amount:        big.NewInt(1_000_000),
			Recipient:     recipient,
			FeeRatePerKB:  10_000,
			CurrentHeight: 2_500_000,
			Sender:        sender,
			PrivKey:       priv,
			PubKey:        pub,
		}

		_, err := BuildAssetSend(req)
		require.Error(t, err)
	})
}

func TestSignatureHash_Deterministic(t *testing.T) {
	t.Parallel()

	tx := NewTx(2_500_000)
	require.NoError(t, tx.AddInput(testTxID('a'), 0, 1_000_000, nil))
	tx.AddOutput(900_000, []byte{0x76, 0xa9, 0x14})

	script := []byte{0x76, 0xa9, 0x14}
	h1, err := SignatureHash(tx, 0, script, 1_000_000, SigHashAll, SaplingBranchID)
	require.NoError(t, err)
	h2, err := SignatureHash(tx, 0, script, 1_000_000, SigHashAll, SaplingBranchID)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 32)

	// The digest commits to the spent value.
	h3, err := SignatureHash(tx, 0, script, 2_000_000, SigHashAll, SaplingBranchID)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
