package keychain

import (
	"math"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/tyler-smith/go-bip39"

	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

var (
	// whitespaceRegex matches one or more whitespace characters.
	whitespaceRegex = regexp.MustCompile(`\s+`)

	// numberedListRegex matches numbered list prefixes like "1." "2)" "3:"
	numberedListRegex = regexp.MustCompile(`(?m)^\s*\d+[\.\)\:]\s*`)

	// bulletListRegex matches bullet prefixes like "- " "* " "• "
	bulletListRegex = regexp.MustCompile(`(?m)^\s*[-*•]\s*`)
)

// GenerateMnemonic creates a new BIP39 mnemonic phrase.
// strength must be 128 (12 words) or 256 (24 words) bits of entropy.
func GenerateMnemonic(strength int) (string, error) {
	if strength != 128 && strength != 256 {
		return "", walleterr.WithSuggestion(walleterr.ErrValidation,
			"mnemonic strength must be 128 or 256 bits")
	}

	entropy, err := bip39.NewEntropy(strength)
	if err != nil {
		return "", err
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", err
	}

	return mnemonic, nil
}

// ValidateMnemonic checks if a mnemonic phrase is valid according to BIP39.
// It verifies word count, word validity, and checksum.
func ValidateMnemonic(mnemonic string) error {
	if mnemonic == "" {
		return walleterr.ErrInvalidMnemonic
	}

	normalized := NormalizeMnemonicInput(mnemonic)

	// Fast word count check before expensive BIP39 validation.
	words := strings.Fields(normalized)
	if len(words) != 12 && len(words) != 24 {
		return walleterr.ErrInvalidMnemonic
	}

	// EntropyFromMnemonic validates word count, word validity, AND checksum
	if _, err := bip39.EntropyFromMnemonic(normalized); err != nil {
		return walleterr.ErrInvalidMnemonic
	}

	return nil
}

// NormalizeMnemonicInput cleans and normalizes mnemonic input by
// lowercasing, stripping list prefixes and bullets, replacing commas
// with spaces, and collapsing whitespace.
func NormalizeMnemonicInput(input string) string {
	input = strings.ToLower(input)
	input = numberedListRegex.ReplaceAllString(input, " ")
	input = bulletListRegex.ReplaceAllString(input, " ")
	input = strings.ReplaceAll(input, ",", " ")
	input = whitespaceRegex.ReplaceAllString(input, " ")
	return strings.TrimSpace(input)
}

// MnemonicToSeed converts a BIP39 mnemonic phrase to a 64-byte seed.
// The returned seed should be handled securely and zeroed after use.
func MnemonicToSeed(mnemonic string) ([]byte, error) {
	normalized := NormalizeMnemonicInput(mnemonic)

	if _, err := bip39.EntropyFromMnemonic(normalized); err != nil {
		return nil, walleterr.ErrInvalidMnemonic
	}

	return bip39.NewSeed(normalized, ""), nil
}

// MnemonicToEntropy extracts the raw entropy from a mnemonic. Only the
// entropy is persisted at rest; the word strings never are.
func MnemonicToEntropy(mnemonic string) ([]byte, error) {
	normalized := NormalizeMnemonicInput(mnemonic)

	entropy, err := bip39.EntropyFromMnemonic(normalized)
	if err != nil {
		return nil, walleterr.ErrInvalidMnemonic
	}
	return entropy, nil
}

// EntropyToMnemonic regenerates the mnemonic phrase from stored entropy.
func EntropyToMnemonic(entropy []byte) (string, error) {
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", walleterr.Wrap(err, "regenerating mnemonic from entropy")
	}
	return mnemonic, nil
}

// IsValidWord checks if a word is in the BIP39 word list.
func IsValidWord(word string) bool {
	word = strings.ToLower(word)
	for _, w := range bip39.GetWordList() {
		if w == word {
			return true
		}
	}
	return false
}

// MaxTypoDistance is the maximum Levenshtein distance to consider a suggestion.
// Words with distance > 2 are considered too different to suggest.
const MaxTypoDistance = 2

// TypoInfo contains information about a detected typo and its suggestion.
type TypoInfo struct {
	// Index is the word position in the mnemonic (0-based).
	Index int
	// Word is the original (possibly misspelled) word.
	Word string
	// Suggestion is the closest BIP39 word, or empty if none found.
	Suggestion string
	// Distance is the Levenshtein distance to the suggestion.
	Distance int
}

// SuggestWord finds the closest BIP39 word to the input using Levenshtein distance.
// Returns empty string if no word is close enough (distance > MaxTypoDistance).
func SuggestWord(input string) string {
	input = strings.ToLower(input)

	minDist := math.MaxInt
	var suggestion string

	for _, word := range bip39.GetWordList() {
		dist := levenshtein.ComputeDistance(input, word)
		if dist < minDist {
			minDist = dist
			suggestion = word
		}
		// Early exit for exact match
		if dist == 0 {
			return word
		}
	}

	if minDist <= MaxTypoDistance {
		return suggestion
	}
	return ""
}

// DetectTypos scans a mnemonic phrase and returns information about detected typos.
// It identifies words that are not in the BIP39 word list and suggests corrections.
func DetectTypos(mnemonic string) []TypoInfo {
	if mnemonic == "" {
		return nil
	}

	normalized := NormalizeMnemonicInput(mnemonic)
	words := strings.Fields(normalized)
	var typos []TypoInfo

	for i, word := range words {
		if !IsValidWord(word) {
			suggestion := SuggestWord(word)
			distance := 0
			if suggestion != "" {
				distance = levenshtein.ComputeDistance(word, suggestion)
			}
			typos = append(typos, TypoInfo{
				Index:      i,
				Word:       word,
				Suggestion: suggestion,
				Distance:   distance,
			})
		}
	}

	return typos
}
