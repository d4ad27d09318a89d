package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

func TestParseNativeAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"whole number", "1", 100_000_000},
		{"with decimals", "1.5", 150_000_000},
		{"all decimals", "0.00000001", 1},
		{"leading dot", ".5", 50_000_000},
		{"zero", "0", 0},
		{"max precision", "0.12345678", 12_345_678},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseNativeAmount(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNativeAmountRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"negative", "-1"},
		{"two dots", "1.2.3"},
		{"letters", "abc"},
		{"letters in decimals", "1.2a"},
		{"too many decimals", "0.123456789"},
		{"scientific notation", "1e8"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseNativeAmount(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, walleterr.ErrInvalidAmount)
		})
	}
}

func TestFormatAmountRoundTrip(t *testing.T) {
	t.Parallel()

	for _, v := range []int64{0, 1, 100_000_000, 150_000_000, 12_345_678, 9_999_999_999_999} {
		s := FormatNativeAmount(v)
		back, err := ParseNativeAmount(s)
		require.NoError(t, err, "formatted %q", s)
		assert.Equal(t, v, back)
	}
}

func TestFormatAmountTrimsZeros(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1.5", FormatNativeAmount(150_000_000))
	assert.Equal(t, "1", FormatNativeAmount(100_000_000))
	assert.Equal(t, "0.00000001", FormatNativeAmount(1))
	assert.Equal(t, "-2.5", FormatAmount(big.NewInt(-250_000_000), Decimals))
}

func TestValidateTxID(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateTxID("aa11bb22cc33dd44ee55ff667788990011223344556677889900aabbccddeeff"))
	require.Error(t, ValidateTxID("short"))
	require.Error(t, ValidateTxID(""))
	require.Error(t, ValidateTxID("zz11bb22cc33dd44ee55ff667788990011223344556677889900aabbccddeeff"))
}
