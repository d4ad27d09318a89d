package keychain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPubKeyHash is a fixed hash160 payload for address tests.
var testPubKeyHash = bytes.Repeat([]byte{0x7f}, 20)

func TestEncodeP2PKHAddress_RoundTrip(t *testing.T) {
	t.Parallel()

	addr := EncodeP2PKHAddress(MainNetParams, testPubKeyHash)
	require.NoError(t, ValidateAddress(MainNetParams, addr))

	version, payload, err := DecodeAddress(MainNetParams, addr)
	require.NoError(t, err)
	assert.Equal(t, MainNetParams.P2PKHVersion, version)
	assert.Equal(t, testPubKeyHash, payload)
}

func TestValidateAddress_Rejections(t *testing.T) {
	t.Parallel()

	valid := EncodeP2PKHAddress(MainNetParams, testPubKeyHash)

	tests := []struct {
		name string
		addr string
	}{
		{"empty", ""},
		{"overlong", strings.Repeat("R", MaxAddressLength+1)},
		{"non-ascii", "RAbcсdef"}, // Cyrillic homograph
		{"control char", "RAbc\x01def"},
		{"corrupted checksum", valid[:len(valid)-1] + "x"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Error(t, ValidateAddress(MainNetParams, tt.addr))
		})
	}
}

func TestPubKeyHashFromAddress(t *testing.T) {
	t.Parallel()

	addr := EncodeP2PKHAddress(MainNetParams, testPubKeyHash)
	payload, err := PubKeyHashFromAddress(MainNetParams, addr)
	require.NoError(t, err)
	assert.Equal(t, testPubKeyHash, payload)
}

func TestAddressToScripthash_ByteOrder(t *testing.T) {
	t.Parallel()

	addr := EncodeP2PKHAddress(MainNetParams, testPubKeyHash)

	got, err := AddressToScripthash(MainNetParams, addr)
	require.NoError(t, err)
	assert.Len(t, got, 64)

	// Recompute by hand: SHA-256 of the output script, reversed, hex.
	script, err := PayToAddrScript(MainNetParams, addr)
	require.NoError(t, err)

	digest := sha256.Sum256(script)
	reversed := make([]byte, len(digest))
	for i := range digest {
		reversed[len(digest)-1-i] = digest[i]
	}
	assert.Equal(t, hex.EncodeToString(reversed), got)
}

func TestAddressFromScript_RoundTrip(t *testing.T) {
	t.Parallel()

	addr := EncodeP2PKHAddress(MainNetParams, testPubKeyHash)
	script, err := PayToAddrScript(MainNetParams, addr)
	require.NoError(t, err)
	require.Len(t, script, 25)

	decoded, err := AddressFromScript(MainNetParams, script)
	require.NoError(t, err)
	assert.Equal(t, addr, decoded)
}

func TestAddressFromScript_NonP2PKH(t *testing.T) {
	t.Parallel()

	_, err := AddressFromScript(MainNetParams, []byte{0x6a, 0x01, 0x00})
	require.Error(t, err)
}

func TestHash160_Length(t *testing.T) {
	t.Parallel()

	assert.Len(t, Hash160([]byte("pubkey bytes")), 20)
}
