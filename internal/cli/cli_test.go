package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

func TestPrintMnemonicGrid(t *testing.T) {
	t.Parallel()

	words := make([]string, 24)
	for i := range words {
		words[i] = "abandon"
	}

	var buf bytes.Buffer
	printMnemonic(&buf, strings.Join(words, " "))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[0], " 1. abandon")
	assert.Contains(t, lines[0], " 4. abandon")
	assert.Contains(t, lines[5], "24. abandon")
}

func TestPrintMnemonicPartialRow(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printMnemonic(&buf, "alpha beta gamma delta epsilon")

	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
}

func TestParseIndex(t *testing.T) {
	t.Parallel()

	index, err := parseIndex("7")
	require.NoError(t, err)
	assert.Equal(t, uint32(7), index)

	_, err = parseIndex("-1")
	assert.ErrorIs(t, err, walleterr.ErrValidation)

	_, err = parseIndex("savings")
	assert.ErrorIs(t, err, walleterr.ErrValidation)

	_, err = parseIndex("4294967296")
	assert.ErrorIs(t, err, walleterr.ErrValidation)
}

func TestPrintTypoHints(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printTypoHints(&buf, "abandon abandoj ability zzzzzzzz")

	assert.Contains(t, buf.String(), `Word 2 "abandoj" is not a recovery word; did you mean "abandon"?`)
	assert.Contains(t, buf.String(), `Word 4 "zzzzzzzz" is not a recovery word.`)
	assert.NotContains(t, buf.String(), `"ability"`)
}

func TestPrintErrorIncludesSuggestion(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printError(&buf, walleterr.WithSuggestion(walleterr.ErrWalletLocked, "run 'verso unlock' first"))

	assert.Contains(t, buf.String(), "Error:")
	assert.Contains(t, buf.String(), "Hint: run 'verso unlock' first")
}

func TestExitCodeMapping(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ExitCode(nil))
	assert.NotEqual(t, 0, ExitCode(walleterr.ErrIncorrectPassword))
}
