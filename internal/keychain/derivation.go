package keychain

import (
	"fmt"

	"github.com/decred/dcrd/hdkeychain/v3"

	"github.com/verso-wallet/verso/internal/securemem"
)

// hdNetParams satisfies hdkeychain.NetworkParams for BIP32 key derivation.
// Uses standard Bitcoin mainnet HD version bytes (xprv/xpub), which is
// what the Verus chain inherits.
type hdNetParams struct{}

func (hdNetParams) HDPrivKeyVersion() [4]byte { return [4]byte{0x04, 0x88, 0xAD, 0xE4} }
func (hdNetParams) HDPubKeyVersion() [4]byte  { return [4]byte{0x04, 0x88, 0xB2, 0x1E} }

// Account is a derived wallet account.
type Account struct {
	// Index is the address index within the derivation path.
	Index uint32 `json:"index"`

	// Address is the base58check R-address.
	Address string `json:"address"`
}

// DerivedKey bundles a derived account with its signing key. The key is
// held in secure memory; callers must Destroy it when done.
type DerivedKey struct {
	Account Account

	// PrivKey is the 32-byte secp256k1 private key.
	PrivKey *securemem.SecureBytes

	// PubKey is the 33-byte compressed public key.
	PubKey []byte
}

// Destroy wipes the private key material.
func (d *DerivedKey) Destroy() {
	if d.PrivKey != nil {
		d.PrivKey.Destroy()
	}
}

// DerivationPath returns the full BIP44 path for an address index.
func DerivationPath(params Params, index uint32) string {
	return fmt.Sprintf("m/44'/%d'/0'/0/%d", params.CoinType, index)
}

// DeriveAccount derives the account at the given index from a BIP39 seed.
// For a fixed seed the result is pure and stable: the same (seed, index)
// always yields the same address. Intermediate key material is zeroed
// before returning.
func DeriveAccount(seed []byte, params Params, index uint32) (*DerivedKey, error) {
	masterKey, err := hdkeychain.NewMaster(seed, hdNetParams{})
	if err != nil {
		return nil, fmt.Errorf("creating master key: %w", err)
	}
	defer masterKey.Zero()

	key, err := deriveBIP44Key(masterKey, params.CoinType, index)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	serialized, err := key.SerializedPrivKey()
	if err != nil {
		return nil, fmt.Errorf("serializing private key: %w", err)
	}

	privKey, err := securemem.FromSlice(serialized)
	if err != nil {
		return nil, err
	}

	pubKey := key.SerializedPubKey()
	address := EncodeP2PKHAddress(params, Hash160(pubKey))

	return &DerivedKey{
		Account: Account{
			Index:   index,
			Address: address,
		},
		PrivKey: privKey,
		PubKey:  append([]byte(nil), pubKey...),
	}, nil
}

// deriveBIP44Key derives a key following BIP44 path structure.
// Path: m / 44' / coin_type' / 0' / 0 / address_index
func deriveBIP44Key(masterKey *hdkeychain.ExtendedKey, coinType, index uint32) (*hdkeychain.ExtendedKey, error) {
	purposeKey, err := masterKey.ChildBIP32Std(hdkeychain.HardenedKeyStart + 44)
	if err != nil {
		return nil, fmt.Errorf("deriving purpose key: %w", err)
	}
	defer purposeKey.Zero()

	coinTypeKey, err := purposeKey.ChildBIP32Std(hdkeychain.HardenedKeyStart + coinType)
	if err != nil {
		return nil, fmt.Errorf("deriving coin type key: %w", err)
	}
	defer coinTypeKey.Zero()

	accountKey, err := coinTypeKey.ChildBIP32Std(hdkeychain.HardenedKeyStart)
	if err != nil {
		return nil, fmt.Errorf("deriving account key: %w", err)
	}
	defer accountKey.Zero()

	changeKey, err := accountKey.ChildBIP32Std(0)
	if err != nil {
		return nil, fmt.Errorf("deriving change key: %w", err)
	}
	defer changeKey.Zero()

	indexKey, err := changeKey.ChildBIP32Std(index)
	if err != nil {
		return nil, fmt.Errorf("deriving index key: %w", err)
	}

	return indexKey, nil
}
