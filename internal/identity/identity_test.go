package identity

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verso-wallet/verso/internal/keychain"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

var testParams = keychain.MainNetParams

func testIdentityID(t *testing.T) (string, []byte) {
	t.Helper()
	id := make([]byte, 20)
	for i := range id {
		id[i] = byte(0x11 + i)
	}
	return keychain.EncodeIDAddress(testParams, id), id
}

// signChallenge produces a signature blob the way a signing wallet
// would: compact-sign the challenge hash and wrap it in the versioned
// buffer layout.
func signChallenge(t *testing.T, priv *secp256k1.PrivateKey, version byte, height uint32, identityID []byte, challengeID string) string {
	t.Helper()

	digest, err := challengeHash(version, height, identityID, challengeID)
	require.NoError(t, err)

	compact := ecdsa.SignCompact(priv, digest, true)
	require.Len(t, compact, compactSigLen)

	blob := []byte{version}
	if version == sigVersionCurrent {
		blob = append(blob, 0x01) // hash type
	}
	blob = binary.LittleEndian.AppendUint32(blob, height)
	blob = append(blob, 0x01) // signature count
	blob = append(blob, compactSigLen)
	blob = append(blob, compact...)

	return base64.StdEncoding.EncodeToString(blob)
}

func TestParseLoginURI(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		c, err := ParseLoginURI("verus://x-callback-url/login?identity=alice@&challenge=ch-123&created=1700000000&sig=c2ln&callback=https://dapp.example.com/cb")
		require.NoError(t, err)
		assert.Equal(t, "alice@", c.Identity)
		assert.Equal(t, "ch-123", c.ChallengeID)
		assert.Equal(t, int64(1700000000), c.CreatedAt.Unix())
		assert.Equal(t, "https://dapp.example.com/cb", c.Callback)
	})

	tests := []struct {
		name string
		uri  string
	}{
		{"wrong scheme", "https://x/login?identity=a@&challenge=c&created=1&sig=s"},
		{"missing identity", "verus://x/login?challenge=c&created=1&sig=s"},
		{"missing challenge", "verus://x/login?identity=a@&created=1&sig=s"},
		{"missing sig", "verus://x/login?identity=a@&challenge=c&created=1"},
		{"missing created", "verus://x/login?identity=a@&challenge=c&sig=s"},
		{"zero created", "verus://x/login?identity=a@&challenge=c&created=0&sig=s"},
		{"non-numeric created", "verus://x/login?identity=a@&challenge=c&created=abc&sig=s"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseLoginURI(tt.uri)
			require.Error(t, err)
			assert.ErrorIs(t, err, walleterr.ErrValidation)
		})
	}
}

func TestCheckTimestamp(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tests := []struct {
		name    string
		created time.Time
		wantErr bool
	}{
		{"fresh", now.Add(-10 * time.Second), false},
		{"at age bound", now.Add(-299 * time.Second), false},
		{"too old", now.Add(-301 * time.Second), true},
		{"slight future skew tolerated", now.Add(30 * time.Second), false},
		{"too far in future", now.Add(90 * time.Second), true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := &LoginChallenge{CreatedAt: tt.created}
			err := c.CheckTimestamp(now)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, walleterr.ErrValidation)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseSignatureBuffer(t *testing.T) {
	t.Parallel()

	t.Run("version 1 has no hash type byte", func(t *testing.T) {
		t.Parallel()

		blob := []byte{sigVersionLegacy}
		blob = binary.LittleEndian.AppendUint32(blob, 12345)
		blob = append(blob, 1, compactSigLen)
		blob = append(blob, make([]byte, compactSigLen)...)

		buf, err := parseSignatureBuffer(base64.StdEncoding.EncodeToString(blob))
		require.NoError(t, err)
		assert.Equal(t, byte(sigVersionLegacy), buf.Version)
		assert.Equal(t, uint32(12345), buf.Height)
	})

	tests := []struct {
		name string
		blob []byte
	}{
		{"empty", nil},
		{"bad version", []byte{9, 0, 0, 0, 0, 1, 65}},
		{"truncated height", []byte{1, 0, 0}},
		{"zero signatures", append(binary.LittleEndian.AppendUint32([]byte{1}, 1), 0)},
		{"wrong length prefix", append(binary.LittleEndian.AppendUint32([]byte{1}, 1), 1, 64)},
		{"truncated signature", append(append(binary.LittleEndian.AppendUint32([]byte{1}, 1), 1, 65), make([]byte, 10)...)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := parseSignatureBuffer(base64.StdEncoding.EncodeToString(tt.blob))
			require.Error(t, err)
			assert.ErrorIs(t, err, walleterr.ErrDecode)
		})
	}

	t.Run("not base64", func(t *testing.T) {
		t.Parallel()

		_, err := parseSignatureBuffer("!!!not-base64!!!")
		require.Error(t, err)
	})
}

func TestDecodeRecoveryFlag(t *testing.T) {
	t.Parallel()

	for flag := byte(27); flag <= 30; flag++ {
		bit, compressed, err := decodeRecoveryFlag(flag)
		require.NoError(t, err)
		assert.Equal(t, flag-27, bit)
		assert.False(t, compressed)
	}
	for flag := byte(31); flag <= 34; flag++ {
		bit, compressed, err := decodeRecoveryFlag(flag)
		require.NoError(t, err)
		assert.Equal(t, flag-31, bit)
		assert.True(t, compressed)
	}
	for _, flag := range []byte{0, 26, 35, 255} {
		_, _, err := decodeRecoveryFlag(flag)
		require.Error(t, err, "flag %d", flag)
	}
}

func TestChallengeHashVersionsDiffer(t *testing.T) {
	t.Parallel()

	_, id := testIdentityID(t)

	h1, err := challengeHash(sigVersionLegacy, 100, id, "challenge")
	require.NoError(t, err)
	h2, err := challengeHash(sigVersionCurrent, 100, id, "challenge")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	// Height is part of the preimage.
	h3, err := challengeHash(sigVersionLegacy, 101, id, "challenge")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestVerify(t *testing.T) {
	t.Parallel()

	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	signerAddr := keychain.EncodeP2PKHAddress(testParams, keychain.Hash160(priv.PubKey().SerializeCompressed()))

	identityAddr, identityID := testIdentityID(t)

	newChallenge := func(sig string) *LoginChallenge {
		return &LoginChallenge{
			Identity:    "alice@",
			ChallengeID: "challenge-xyz",
			CreatedAt:   time.Now(),
			Signature:   sig,
		}
	}

	t.Run("exact height and declared version", func(t *testing.T) {
		t.Parallel()

		sig := signChallenge(t, priv, sigVersionCurrent, 2_500_000, identityID, "challenge-xyz")
		err := Verify(testParams, newChallenge(sig), identityAddr, []string{"RUnrelated", signerAddr})
		require.NoError(t, err)
	})

	t.Run("height drift within the search radius", func(t *testing.T) {
		t.Parallel()

		for _, drift := range []uint32{2_499_995, 2_500_005} {
			// Signed at drifted height, blob claims 2_500_000.
			digest, err := challengeHash(sigVersionCurrent, drift, identityID, "challenge-xyz")
			require.NoError(t, err)
			compact := ecdsa.SignCompact(priv, digest, true)

			blob := []byte{sigVersionCurrent, 0x01}
			blob = binary.LittleEndian.AppendUint32(blob, 2_500_000)
			blob = append(blob, 1, compactSigLen)
			blob = append(blob, compact...)
			sig := base64.StdEncoding.EncodeToString(blob)

			err = Verify(testParams, newChallenge(sig), identityAddr, []string{signerAddr})
			require.NoError(t, err, "drift to %d", drift)
		}
	})

	t.Run("declared version wrong but other version matches", func(t *testing.T) {
		t.Parallel()

		// Hash computed with the legacy algorithm, blob declares v2.
		digest, err := challengeHash(sigVersionLegacy, 2_500_000, identityID, "challenge-xyz")
		require.NoError(t, err)
		compact := ecdsa.SignCompact(priv, digest, true)

		blob := []byte{sigVersionCurrent, 0x01}
		blob = binary.LittleEndian.AppendUint32(blob, 2_500_000)
		blob = append(blob, 1, compactSigLen)
		blob = append(blob, compact...)
		sig := base64.StdEncoding.EncodeToString(blob)

		err = Verify(testParams, newChallenge(sig), identityAddr, []string{signerAddr})
		require.NoError(t, err)
	})

	t.Run("drift beyond the radius fails hard", func(t *testing.T) {
		t.Parallel()

		digest, err := challengeHash(sigVersionCurrent, 2_500_010, identityID, "challenge-xyz")
		require.NoError(t, err)
		compact := ecdsa.SignCompact(priv, digest, true)

		blob := []byte{sigVersionCurrent, 0x01}
		blob = binary.LittleEndian.AppendUint32(blob, 2_500_000)
		blob = append(blob, 1, compactSigLen)
		blob = append(blob, compact...)
		sig := base64.StdEncoding.EncodeToString(blob)

		err = Verify(testParams, newChallenge(sig), identityAddr, []string{signerAddr})
		require.Error(t, err)
		assert.ErrorIs(t, err, walleterr.ErrSignatureUnverified)
	})

	t.Run("signer not in authorized list fails", func(t *testing.T) {
		t.Parallel()

		sig := signChallenge(t, priv, sigVersionCurrent, 2_500_000, identityID, "challenge-xyz")
		err := Verify(testParams, newChallenge(sig), identityAddr, []string{"RSomeoneElse"})
		require.Error(t, err)
		assert.ErrorIs(t, err, walleterr.ErrSignatureUnverified)
	})

	t.Run("wrong challenge string fails", func(t *testing.T) {
		t.Parallel()

		sig := signChallenge(t, priv, sigVersionCurrent, 2_500_000, identityID, "another-challenge")
		err := Verify(testParams, newChallenge(sig), identityAddr, []string{signerAddr})
		require.Error(t, err)
		assert.ErrorIs(t, err, walleterr.ErrSignatureUnverified)
	})

	t.Run("empty authorized list fails", func(t *testing.T) {
		t.Parallel()

		sig := signChallenge(t, priv, sigVersionCurrent, 2_500_000, identityID, "challenge-xyz")
		err := Verify(testParams, newChallenge(sig), identityAddr, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, walleterr.ErrSignatureUnverified)
	})
}

func TestVerify_MalformedSignatureBuffer(t *testing.T) {
	t.Parallel()

	identityAddr, _ := testIdentityID(t)

	c := &LoginChallenge{
		Identity:    "alice@",
		ChallengeID: "x",
		CreatedAt:   time.Now(),
		Signature:   base64.StdEncoding.EncodeToString([]byte{0x07}),
	}
	err := Verify(testParams, c, identityAddr, []string{fmt.Sprintf("R%039d", 1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, walleterr.ErrDecode)
}
