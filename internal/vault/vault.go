// Package vault implements password-based authenticated encryption of
// the wallet's root secret material. Only entropy (from which the
// mnemonic can be regenerated) and the seed (to skip expensive
// reseeding) are stored, both encrypted; mnemonic word strings are
// never persisted.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"golang.org/x/crypto/pbkdf2"

	"github.com/verso-wallet/verso/internal/securemem"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

const (
	// saltLen is the length of the random KDF salt.
	saltLen = 16

	// nonceLen is the length of the AES-GCM nonce.
	nonceLen = 12

	// keyLen is the derived AES-256 key length.
	keyLen = 32

	// DefaultIterations is the PBKDF2-SHA256 iteration count for newly
	// created vaults. The count is stored alongside the blob so it can
	// be bumped forward without breaking old vaults.
	DefaultIterations = 900_000
)

// Payload is the decrypted vault content.
type Payload struct {
	// Entropy is the BIP39 entropy; the mnemonic is regenerated from it
	// on demand.
	Entropy []byte `json:"entropy"`

	// Seed is the 64-byte BIP39 seed.
	Seed []byte `json:"seed"`

	// Address is the primary (index 0) account address, kept for
	// display without decryption of anything else.
	Address string `json:"address"`
}

// Destroy wipes the secret fields.
func (p *Payload) Destroy() {
	securemem.Zero(p.Entropy)
	securemem.Zero(p.Seed)
}

// Vault is the persisted entity.
type Vault struct {
	// Version is the vault format version.
	Version int `json:"version"`

	// Blob is the base64-encoded salt‖nonce‖ciphertext.
	Blob string `json:"blob"`

	// CreatedAt is the unix creation timestamp.
	CreatedAt int64 `json:"created_at"`

	// Iterations is the PBKDF2 iteration count the blob was sealed
	// under.
	Iterations int `json:"iterations"`
}

// deriveKey runs PBKDF2-SHA256 over the password with the given salt.
func deriveKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New)
}

// Encrypt seals plaintext under a password. The output blob is
// base64(salt ‖ nonce ‖ ciphertext) with the key derived via
// PBKDF2-SHA256 at DefaultIterations.
func Encrypt(plaintext []byte, password string) (string, error) {
	return encryptWithIterations(plaintext, password, DefaultIterations)
}

func encryptWithIterations(plaintext []byte, password string, iterations int) (string, error) {
	salt, err := securemem.RandomBytes(saltLen)
	if err != nil {
		return "", walleterr.Wrap(err, "generating salt")
	}

	nonce, err := securemem.RandomBytes(nonceLen)
	if err != nil {
		return "", walleterr.Wrap(err, "generating nonce")
	}

	key := deriveKey(password, salt, iterations)
	defer securemem.Zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", walleterr.Wrap(err, "initializing cipher")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", walleterr.Wrap(err, "initializing GCM")
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	blob := make([]byte, 0, saltLen+nonceLen+len(ciphertext))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a blob produced by Encrypt. A wrong password manifests
// as an authentication-tag failure and is returned as
// ErrIncorrectPassword, never as corrupted plaintext.
func Decrypt(blob, password string, iterations int) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "vault blob base64")
	}

	if len(raw) < saltLen+nonceLen+1 {
		return nil, walleterr.WithSuggestion(walleterr.ErrDecode, "vault blob truncated")
	}

	salt := raw[:saltLen]
	nonce := raw[saltLen : saltLen+nonceLen]
	ciphertext := raw[saltLen+nonceLen:]

	key := deriveKey(password, salt, iterations)
	defer securemem.Zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, walleterr.Wrap(err, "initializing cipher")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, walleterr.Wrap(err, "initializing GCM")
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, walleterr.ErrIncorrectPassword
	}

	return plaintext, nil
}

// Seal encrypts a payload into a persistable Vault.
func Seal(payload *Payload, password string, createdAt int64) (*Vault, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, walleterr.Wrap(err, "marshaling vault payload")
	}
	defer securemem.Zero(plaintext)

	blob, err := Encrypt(plaintext, password)
	if err != nil {
		return nil, err
	}

	return &Vault{
		Version:    1,
		Blob:       blob,
		CreatedAt:  createdAt,
		Iterations: DefaultIterations,
	}, nil
}

// Open decrypts a persisted Vault back into its payload. The caller
// must Destroy the payload when done.
func Open(v *Vault, password string) (*Payload, error) {
	plaintext, err := Decrypt(v.Blob, password, v.Iterations)
	if err != nil {
		return nil, err
	}
	defer securemem.Zero(plaintext)

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "vault payload")
	}

	return &payload, nil
}
