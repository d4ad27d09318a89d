package txbuilder

import (
	"bytes"
	"encoding/binary"
	"math/big"
	"sort"

	"github.com/verso-wallet/verso/internal/keychain"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

// opCheckCryptoCondition terminates every smart output script. The
// preceding data push carries the typed payload.
const opCheckCryptoCondition = 0xcc

// Payload tags.
const (
	tagAssetOutput     = 0x01
	tagReserveTransfer = 0x02
)

// currencyIDLen is the length of a currency identity hash.
const currencyIDLen = 20

// maxAssetEntries bounds the currency map of a single output.
const maxAssetEntries = 64

// OutputKind discriminates decoded output scripts.
type OutputKind int

// Output kinds.
const (
	// OutputUnknown is any script the wallet cannot decode. Unknown
	// outputs are never selected for spending.
	OutputUnknown OutputKind = iota

	// OutputPlain is a standard P2PKH output.
	OutputPlain

	// OutputAsset is a smart output carrying a currency→amount map,
	// guarded by a single key hash.
	OutputAsset

	// OutputReserveTransfer is a protocol conversion-instruction output.
	OutputReserveTransfer
)

// ReserveTransfer is the decoded payload of a conversion-instruction
// output.
type ReserveTransfer struct {
	// SourceCurrency and DestCurrency are currency identity addresses.
	SourceCurrency string
	DestCurrency   string

	// ViaCurrency is the intermediate basket of a two-hop conversion,
	// empty for a direct conversion.
	ViaCurrency string

	// Amount is the converted native value in smallest units.
	Amount int64

	// TransferFee is the flat protocol conversion fee.
	TransferFee int64

	// RefundPubKeyHash receives the funds if the conversion fails.
	RefundPubKeyHash []byte
}

// ParsedOutput is the result of decoding an output script.
type ParsedOutput struct {
	Kind OutputKind

	// PubKeyHash is the guard key hash for plain and asset outputs.
	PubKeyHash []byte

	// Assets maps currency identity addresses to amounts for asset
	// outputs. Amounts are arbitrary precision; asset supplies are not
	// bounded by native-coin integer ranges.
	Assets map[string]*big.Int

	// Reserve is set for reserve-transfer outputs.
	Reserve *ReserveTransfer
}

// AssetOutputScript builds a smart output script carrying the given
// currency amounts, spendable by the holder of pubKeyHash. Currencies
// are serialized in sorted order so equal maps produce equal scripts.
func AssetOutputScript(params keychain.Params, pubKeyHash []byte, assets map[string]*big.Int) ([]byte, error) {
	if len(pubKeyHash) != currencyIDLen {
		return nil, walleterr.Wrap(walleterr.ErrValidation, "pubkey hash length %d", len(pubKeyHash))
	}
	if len(assets) == 0 || len(assets) > maxAssetEntries {
		return nil, walleterr.Wrap(walleterr.ErrValidation, "asset entry count %d", len(assets))
	}

	currencies := make([]string, 0, len(assets))
	for currency := range assets {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)

	payload := new(bytes.Buffer)
	payload.WriteByte(tagAssetOutput)
	payload.Write(pubKeyHash)
	payload.WriteByte(byte(len(currencies)))
	for _, currency := range currencies {
		id, err := keychain.DecodeIDAddress(params, currency)
		if err != nil {
			return nil, walleterr.Wrap(err, "currency %s", currency)
		}
		amount := assets[currency]
		if amount == nil || amount.Sign() <= 0 {
			return nil, walleterr.Wrap(walleterr.ErrInvalidAmount, "currency %s", currency)
		}
		amountBytes := amount.Bytes()
		if len(amountBytes) > 0xff {
			return nil, walleterr.Wrap(walleterr.ErrInvalidAmount, "amount too large for %s", currency)
		}
		payload.Write(id)
		payload.WriteByte(byte(len(amountBytes)))
		payload.Write(amountBytes)
	}

	return appendCCScript(payload.Bytes()), nil
}

// ReserveTransferScript builds a conversion-instruction output script.
func ReserveTransferScript(params keychain.Params, rt *ReserveTransfer) ([]byte, error) {
	if len(rt.RefundPubKeyHash) != currencyIDLen {
		return nil, walleterr.Wrap(walleterr.ErrValidation, "refund hash length %d", len(rt.RefundPubKeyHash))
	}

	sourceID, err := keychain.DecodeIDAddress(params, rt.SourceCurrency)
	if err != nil {
		return nil, walleterr.Wrap(err, "source currency")
	}
	destID, err := keychain.DecodeIDAddress(params, rt.DestCurrency)
	if err != nil {
		return nil, walleterr.Wrap(err, "destination currency")
	}

	var flags byte
	var viaID []byte
	if rt.ViaCurrency != "" {
		flags |= 0x01
		if viaID, err = keychain.DecodeIDAddress(params, rt.ViaCurrency); err != nil {
			return nil, walleterr.Wrap(err, "via currency")
		}
	}

	payload := new(bytes.Buffer)
	payload.WriteByte(tagReserveTransfer)
	payload.WriteByte(0x01) // payload version
	payload.WriteByte(flags)
	payload.Write(sourceID)
	_ = binary.Write(payload, binary.LittleEndian, rt.Amount)
	payload.Write(destID)
	if viaID != nil {
		payload.Write(viaID)
	}
	_ = binary.Write(payload, binary.LittleEndian, rt.TransferFee)
	payload.Write(rt.RefundPubKeyHash)

	return appendCCScript(payload.Bytes()), nil
}

// ParseOutputScript decodes an output script into its typed form.
// Scripts that are neither standard P2PKH nor a recognizable smart
// output come back as OutputUnknown rather than an error; callers skip
// them during selection.
func ParseOutputScript(params keychain.Params, script []byte) *ParsedOutput {
	if hash, ok := parseP2PKHScript(script); ok {
		return &ParsedOutput{Kind: OutputPlain, PubKeyHash: hash}
	}

	payload, ok := extractCCPayload(script)
	if !ok || len(payload) < 1 {
		return &ParsedOutput{Kind: OutputUnknown}
	}

	switch payload[0] {
	case tagAssetOutput:
		return parseAssetPayload(params, payload[1:])
	case tagReserveTransfer:
		return parseReservePayload(params, payload[1:])
	default:
		return &ParsedOutput{Kind: OutputUnknown}
	}
}

func parseAssetPayload(params keychain.Params, body []byte) *ParsedOutput {
	r := bytes.NewReader(body)

	pubKeyHash := make([]byte, currencyIDLen)
	if _, err := r.Read(pubKeyHash); err != nil {
		return &ParsedOutput{Kind: OutputUnknown}
	}
	count, err := r.ReadByte()
	if err != nil || count == 0 || int(count) > maxAssetEntries {
		return &ParsedOutput{Kind: OutputUnknown}
	}

	assets := make(map[string]*big.Int, count)
	for i := 0; i < int(count); i++ {
		id := make([]byte, currencyIDLen)
		if n, _ := r.Read(id); n != currencyIDLen {
			return &ParsedOutput{Kind: OutputUnknown}
		}
		amountLen, err := r.ReadByte()
		if err != nil || amountLen == 0 {
			return &ParsedOutput{Kind: OutputUnknown}
		}
		amountBytes := make([]byte, amountLen)
		if n, _ := r.Read(amountBytes); n != int(amountLen) {
			return &ParsedOutput{Kind: OutputUnknown}
		}
		assets[keychain.EncodeIDAddress(params, id)] = new(big.Int).SetBytes(amountBytes)
	}
	if r.Len() != 0 {
		return &ParsedOutput{Kind: OutputUnknown}
	}

	return &ParsedOutput{Kind: OutputAsset, PubKeyHash: pubKeyHash, Assets: assets}
}

func parseReservePayload(params keychain.Params, body []byte) *ParsedOutput {
	r := bytes.NewReader(body)

	version, err := r.ReadByte()
	if err != nil || version != 0x01 {
		return &ParsedOutput{Kind: OutputUnknown}
	}
	flags, err := r.ReadByte()
	if err != nil {
		return &ParsedOutput{Kind: OutputUnknown}
	}

	readID := func() (string, bool) {
		id := make([]byte, currencyIDLen)
		if n, _ := r.Read(id); n != currencyIDLen {
			return "", false
		}
		return keychain.EncodeIDAddress(params, id), true
	}

	rt := &ReserveTransfer{}
	var ok bool
	if rt.SourceCurrency, ok = readID(); !ok {
		return &ParsedOutput{Kind: OutputUnknown}
	}
	if err := binary.Read(r, binary.LittleEndian, &rt.Amount); err != nil {
		return &ParsedOutput{Kind: OutputUnknown}
	}
	if rt.DestCurrency, ok = readID(); !ok {
		return &ParsedOutput{Kind: OutputUnknown}
	}
	if flags&0x01 != 0 {
		if rt.ViaCurrency, ok = readID(); !ok {
			return &ParsedOutput{Kind: OutputUnknown}
		}
	}
	if err := binary.Read(r, binary.LittleEndian, &rt.TransferFee); err != nil {
		return &ParsedOutput{Kind: OutputUnknown}
	}
	rt.RefundPubKeyHash = make([]byte, currencyIDLen)
	if n, _ := r.Read(rt.RefundPubKeyHash); n != currencyIDLen {
		return &ParsedOutput{Kind: OutputUnknown}
	}
	if r.Len() != 0 {
		return &ParsedOutput{Kind: OutputUnknown}
	}

	return &ParsedOutput{Kind: OutputReserveTransfer, Reserve: rt}
}

// parseP2PKHScript matches the strict 25-byte P2PKH template.
func parseP2PKHScript(script []byte) ([]byte, bool) {
	if len(script) != 25 ||
		script[0] != 0x76 || // OP_DUP
		script[1] != 0xa9 || // OP_HASH160
		script[2] != 0x14 ||
		script[23] != 0x88 || // OP_EQUALVERIFY
		script[24] != 0xac { // OP_CHECKSIG
		return nil, false
	}
	return script[3:23], true
}

// appendCCScript wraps a payload in a data push followed by the
// crypto-condition opcode.
func appendCCScript(payload []byte) []byte {
	script := make([]byte, 0, len(payload)+4)
	switch {
	case len(payload) < 0x4c:
		script = append(script, byte(len(payload)))
	case len(payload) <= 0xff:
		script = append(script, 0x4c, byte(len(payload))) // OP_PUSHDATA1
	default:
		script = append(script, 0x4d, byte(len(payload)), byte(len(payload)>>8)) // OP_PUSHDATA2
	}
	script = append(script, payload...)
	return append(script, opCheckCryptoCondition)
}

// extractCCPayload undoes appendCCScript.
func extractCCPayload(script []byte) ([]byte, bool) {
	if len(script) < 3 || script[len(script)-1] != opCheckCryptoCondition {
		return nil, false
	}
	body := script[:len(script)-1]

	var payload []byte
	switch {
	case body[0] < 0x4c:
		if int(body[0]) != len(body)-1 {
			return nil, false
		}
		payload = body[1:]
	case body[0] == 0x4c:
		if len(body) < 2 || int(body[1]) != len(body)-2 {
			return nil, false
		}
		payload = body[2:]
	case body[0] == 0x4d:
		if len(body) < 3 || int(body[1])|int(body[2])<<8 != len(body)-3 {
			return nil, false
		}
		payload = body[3:]
	default:
		return nil, false
	}
	return payload, true
}
