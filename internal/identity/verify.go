package identity

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"

	"github.com/dchest/blake2b"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/verso-wallet/verso/internal/keychain"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

// Signature buffer versions. Version 2 adds an explicit hash-type byte.
const (
	sigVersionLegacy  = 1
	sigVersionCurrent = 2
)

// compactSigLen is a recovery-flag header plus r plus s.
const compactSigLen = 65

// heightSearchRadius bounds the signing-height neighborhood. The height
// embedded in the signature can drift a few blocks from the height the
// hash was actually computed at.
const heightSearchRadius = 5

// signedDataPrefix domain-separates identity challenge hashes from
// transaction digests.
const signedDataPrefix = "Verus signed data:\n"

// hashPersonalization is the BLAKE2b personalization of version 2
// challenge hashes.
const hashPersonalization = "VerusIDHash\x00\x00\x00\x00\x00"

// signatureBuffer is the decoded byte layout of a signature blob.
type signatureBuffer struct {
	Version  byte
	HashType byte
	Height   uint32
	Compact  []byte
}

// parseSignatureBuffer decodes the base64 blob by its explicit layout:
// version, optional hash type, little-endian height, signature count,
// then the first signature with a mandatory 65-byte length prefix.
func parseSignatureBuffer(blob string) (*signatureBuffer, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "signature is not base64")
	}

	buf := &signatureBuffer{}
	pos := 0

	next := func(n int) ([]byte, bool) {
		if pos+n > len(raw) {
			return nil, false
		}
		b := raw[pos : pos+n]
		pos += n
		return b, true
	}

	b, ok := next(1)
	if !ok {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "signature buffer truncated at version")
	}
	buf.Version = b[0]
	if buf.Version != sigVersionLegacy && buf.Version != sigVersionCurrent {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "unsupported signature version %d", buf.Version)
	}

	if buf.Version == sigVersionCurrent {
		if b, ok = next(1); !ok {
			return nil, walleterr.Wrap(walleterr.ErrDecode, "signature buffer truncated at hash type")
		}
		buf.HashType = b[0]
	}

	if b, ok = next(4); !ok {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "signature buffer truncated at height")
	}
	buf.Height = binary.LittleEndian.Uint32(b)

	if b, ok = next(1); !ok || b[0] == 0 {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "signature buffer has no signatures")
	}

	if b, ok = next(1); !ok {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "signature buffer truncated at length prefix")
	}
	if b[0] != compactSigLen {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "signature length %d, want %d", b[0], compactSigLen)
	}
	if buf.Compact, ok = next(compactSigLen); !ok {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "signature buffer truncated at signature")
	}

	return buf, nil
}

// decodeRecoveryFlag validates the compact-signature header byte:
// 27-30 for uncompressed keys, 31-34 for compressed, anything else
// invalid.
func decodeRecoveryFlag(flag byte) (recoveryBit byte, compressed bool, err error) {
	switch {
	case flag >= 27 && flag <= 30:
		return flag - 27, false, nil
	case flag >= 31 && flag <= 34:
		return flag - 31, true, nil
	default:
		return 0, false, walleterr.Wrap(walleterr.ErrDecode, "invalid recovery flag %d", flag)
	}
}

// challengeHash computes the signed digest for a (height, version)
// hypothesis. Version 1 is the historical SHA-256 construction;
// version 2 is personalized BLAKE2b over the same preimage.
func challengeHash(version byte, height uint32, identityID []byte, challenge string) ([]byte, error) {
	preimage := make([]byte, 0, len(signedDataPrefix)+4+len(identityID)+len(challenge))
	preimage = append(preimage, signedDataPrefix...)
	preimage = binary.LittleEndian.AppendUint32(preimage, height)
	preimage = append(preimage, identityID...)
	preimage = append(preimage, challenge...)

	switch version {
	case sigVersionLegacy:
		digest := sha256.Sum256(preimage)
		return digest[:], nil
	case sigVersionCurrent:
		h, err := blake2b.New(&blake2b.Config{Size: 32, Person: []byte(hashPersonalization)})
		if err != nil {
			return nil, err
		}
		if _, err := h.Write(preimage); err != nil {
			return nil, err
		}
		return h.Sum(nil), nil
	default:
		return nil, walleterr.Wrap(walleterr.ErrDecode, "unknown hash version %d", version)
	}
}

// Verify checks the challenge signature against the identity's
// authorized addresses. The signing height and hash version are not
// bound tightly enough by the blob alone, so the search covers heights
// within ±5 of the embedded height crossed with both hash versions, and
// accepts the first (height, version) hypothesis that recovers a key
// whose address is authorized. Exhausting the space without a match is
// a hard verification failure, never an "unknown" result.
func Verify(params keychain.Params, challenge *LoginChallenge, identityAddress string, authorizedAddresses []string) error {
	if len(authorizedAddresses) == 0 {
		return walleterr.Wrap(walleterr.ErrSignatureUnverified, "identity has no authorized addresses")
	}

	identityID, err := keychain.DecodeIDAddress(params, identityAddress)
	if err != nil {
		return walleterr.Wrap(err, "identity address")
	}

	buf, err := parseSignatureBuffer(challenge.Signature)
	if err != nil {
		return err
	}
	_, compressed, err := decodeRecoveryFlag(buf.Compact[0])
	if err != nil {
		return err
	}

	authorized := make(map[string]struct{}, len(authorizedAddresses))
	for _, addr := range authorizedAddresses {
		authorized[addr] = struct{}{}
	}

	versions := []byte{buf.Version, otherVersion(buf.Version)}
	for offset := int64(0); offset <= heightSearchRadius; offset++ {
		for _, sign := range []int64{1, -1} {
			if offset == 0 && sign < 0 {
				continue
			}
			height := int64(buf.Height) + sign*offset
			if height < 0 {
				continue
			}
			for _, version := range versions {
				if matchesAuthorized(params, buf.Compact, version, uint32(height), identityID, challenge.ChallengeID, compressed, authorized) {
					return nil
				}
			}
		}
	}

	return walleterr.WithDetails(walleterr.ErrSignatureUnverified, map[string]string{
		"identity": challenge.Identity,
	})
}

func matchesAuthorized(params keychain.Params, compact []byte, version byte, height uint32, identityID []byte, challengeID string, compressed bool, authorized map[string]struct{}) bool {
	digest, err := challengeHash(version, height, identityID, challengeID)
	if err != nil {
		return false
	}

	pubKey, wasCompressed, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil || wasCompressed != compressed {
		return false
	}

	var serialized []byte
	if compressed {
		serialized = pubKey.SerializeCompressed()
	} else {
		serialized = pubKey.SerializeUncompressed()
	}
	addr := keychain.EncodeP2PKHAddress(params, keychain.Hash160(serialized))

	_, ok := authorized[addr]
	return ok
}

func otherVersion(v byte) byte {
	if v == sigVersionLegacy {
		return sigVersionCurrent
	}
	return sigVersionLegacy
}
