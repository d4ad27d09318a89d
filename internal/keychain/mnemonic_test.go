package keychain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMnemonic_WordCounts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		strength int
		words    int
	}{
		{128, 12},
		{256, 24},
	}

	for _, tt := range tests {
		mnemonic, err := GenerateMnemonic(tt.strength)
		require.NoError(t, err)
		assert.Len(t, strings.Fields(mnemonic), tt.words)
		require.NoError(t, ValidateMnemonic(mnemonic))
	}
}

func TestGenerateMnemonic_InvalidStrength(t *testing.T) {
	t.Parallel()

	_, err := GenerateMnemonic(192)
	require.Error(t, err)
}

func TestValidateMnemonic_Invalid(t *testing.T) {
	t.Parallel()

	tests := []string{
		"",
		"abandon abandon abandon",
		"notaword " + strings.Repeat("abandon ", 10) + "about",
	}

	for _, mnemonic := range tests {
		assert.Error(t, ValidateMnemonic(mnemonic), mnemonic)
	}
}

func TestNormalizeMnemonicInput(t *testing.T) {
	t.Parallel()

	input := "1. Abandon\n2. ability\n3) able"
	assert.Equal(t, "abandon ability able", NormalizeMnemonicInput(input))
}

func TestMnemonicEntropyRoundTrip(t *testing.T) {
	t.Parallel()

	mnemonic, err := GenerateMnemonic(256)
	require.NoError(t, err)

	entropy, err := MnemonicToEntropy(mnemonic)
	require.NoError(t, err)
	assert.Len(t, entropy, 32)

	regenerated, err := EntropyToMnemonic(entropy)
	require.NoError(t, err)
	assert.Equal(t, mnemonic, regenerated)
}

func TestMnemonicToSeed_Deterministic(t *testing.T) {
	t.Parallel()

	mnemonic, err := GenerateMnemonic(128)
	require.NoError(t, err)

	seed1, err := MnemonicToSeed(mnemonic)
	require.NoError(t, err)
	seed2, err := MnemonicToSeed(mnemonic)
	require.NoError(t, err)

	assert.Len(t, seed1, 64)
	assert.Equal(t, seed1, seed2)
}

func TestSuggestWord(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abandon", SuggestWord("abandonn"))
	assert.Equal(t, "abandon", SuggestWord("abandon"))
	assert.Empty(t, SuggestWord("zzzzzzzzzz"))
}

func TestDetectTypos(t *testing.T) {
	t.Parallel()

	typos := DetectTypos("abandon abilty able")
	require.Len(t, typos, 1)
	assert.Equal(t, 1, typos[0].Index)
	assert.Equal(t, "abilty", typos[0].Word)
	assert.Equal(t, "ability", typos[0].Suggestion)
}
