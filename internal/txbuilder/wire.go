// Package txbuilder constructs, signs, and self-verifies transparent
// transactions in the Sapling v4 wire format: plain value transfers,
// reserve-currency conversions, and multi-asset token transfers.
// All builders are pure functions over supplied UTXOs, fee rate, and
// amount; nothing here touches the network.
package txbuilder

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

const (
	// VersionSapling is the transaction version of the Sapling format.
	VersionSapling = 4

	// saplingGroupID is the nVersionGroupId of Sapling transactions.
	saplingGroupID = 0x892f2085

	// SaplingBranchID is the consensus branch used in the signature hash
	// personalization.
	SaplingBranchID = 0x76b809bb

	// defaultSequence disables per-input relative locktime.
	defaultSequence = 0xffffffff

	// expiryOffset is how many blocks past the current tip a built
	// transaction stays valid before the network drops it.
	expiryOffset = 20
)

// OutPoint references an output of a previous transaction.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// TxIn is a transaction input. Value and PrevScript are carried for
// signing (the Sapling digest commits to the spent amount) and are not
// serialized.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Sequence         uint32

	Value      int64
	PrevScript []byte
}

// TxOut is a transaction output.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// Tx is a Sapling v4 transaction with no shielded components.
type Tx struct {
	Version      uint32
	TxIn         []*TxIn
	TxOut        []*TxOut
	LockTime     uint32
	ExpiryHeight uint32
}

// NewTx returns an empty Sapling transaction expiring shortly after the
// given tip height.
func NewTx(currentHeight int64) *Tx {
	return &Tx{
		Version:      VersionSapling,
		ExpiryHeight: uint32(currentHeight) + expiryOffset,
	}
}

// AddInput appends an input spending the given outpoint. The txid is
// the display (reversed-hex) form as reported by the indexers.
func (tx *Tx) AddInput(txid string, vout uint32, value int64, prevScript []byte) error {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return walleterr.Wrap(walleterr.ErrDecode, "input txid")
	}
	tx.TxIn = append(tx.TxIn, &TxIn{
		PreviousOutPoint: OutPoint{Hash: *hash, Index: vout},
		Sequence:         defaultSequence,
		Value:            value,
		PrevScript:       prevScript,
	})
	return nil
}

// AddOutput appends an output.
func (tx *Tx) AddOutput(value int64, pkScript []byte) {
	tx.TxOut = append(tx.TxOut, &TxOut{Value: value, PkScript: pkScript})
}

// Serialize encodes the transaction. The trailing Sapling sections
// (value balance, shielded spend/output and joinsplit vectors) are
// present but empty; no binding signature is emitted for a transaction
// without shielded components.
func (tx *Tx) Serialize() ([]byte, error) {
	b := new(bytes.Buffer)

	// header: version with the overwintered flag set
	writeUint32(b, tx.Version|(1<<31))
	writeUint32(b, saplingGroupID)

	if err := wire.WriteVarInt(b, 0, uint64(len(tx.TxIn))); err != nil {
		return nil, err
	}
	for _, in := range tx.TxIn {
		b.Write(in.PreviousOutPoint.Hash[:])
		writeUint32(b, in.PreviousOutPoint.Index)
		if err := wire.WriteVarBytes(b, 0, in.SignatureScript); err != nil {
			return nil, err
		}
		writeUint32(b, in.Sequence)
	}

	if err := wire.WriteVarInt(b, 0, uint64(len(tx.TxOut))); err != nil {
		return nil, err
	}
	for _, out := range tx.TxOut {
		if err := writeTxOut(b, out); err != nil {
			return nil, err
		}
	}

	writeUint32(b, tx.LockTime)
	writeUint32(b, tx.ExpiryHeight)

	// valueBalance
	writeUint64(b, 0)
	// vShieldedSpend, vShieldedOutput, vJoinSplit
	for i := 0; i < 3; i++ {
		if err := wire.WriteVarInt(b, 0, 0); err != nil {
			return nil, err
		}
	}

	return b.Bytes(), nil
}

// Deserialize decodes a serialized transaction produced by Serialize.
// Used by the post-build self-checks to re-read what was actually
// constructed rather than trusting in-memory state.
func Deserialize(raw []byte) (*Tx, error) {
	r := bytes.NewReader(raw)
	tx := &Tx{}

	header, err := readUint32(r)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "tx header")
	}
	if header&(1<<31) == 0 {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "missing overwinter flag")
	}
	tx.Version = header &^ (1 << 31)
	if tx.Version != VersionSapling {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "unsupported tx version %d", tx.Version)
	}

	groupID, err := readUint32(r)
	if err != nil || groupID != saplingGroupID {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "version group id")
	}

	inCount, err := wire.ReadVarInt(r, 0)
	if err != nil || inCount > 10_000 {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "input count")
	}
	for i := uint64(0); i < inCount; i++ {
		in := &TxIn{}
		if _, err := io.ReadFull(r, in.PreviousOutPoint.Hash[:]); err != nil {
			return nil, walleterr.Wrap(walleterr.ErrDecode, "prevout hash")
		}
		if in.PreviousOutPoint.Index, err = readUint32(r); err != nil {
			return nil, walleterr.Wrap(walleterr.ErrDecode, "prevout index")
		}
		if in.SignatureScript, err = wire.ReadVarBytes(r, 0, wire.MaxMessagePayload, "sigScript"); err != nil {
			return nil, walleterr.Wrap(walleterr.ErrDecode, "signature script")
		}
		if in.Sequence, err = readUint32(r); err != nil {
			return nil, walleterr.Wrap(walleterr.ErrDecode, "sequence")
		}
		tx.TxIn = append(tx.TxIn, in)
	}

	outCount, err := wire.ReadVarInt(r, 0)
	if err != nil || outCount > 10_000 {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "output count")
	}
	for i := uint64(0); i < outCount; i++ {
		out := &TxOut{}
		v, err := readUint64(r)
		if err != nil {
			return nil, walleterr.Wrap(walleterr.ErrDecode, "output value")
		}
		out.Value = int64(v)
		if out.PkScript, err = wire.ReadVarBytes(r, 0, wire.MaxMessagePayload, "pkScript"); err != nil {
			return nil, walleterr.Wrap(walleterr.ErrDecode, "output script")
		}
		tx.TxOut = append(tx.TxOut, out)
	}

	if tx.LockTime, err = readUint32(r); err != nil {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "locktime")
	}
	if tx.ExpiryHeight, err = readUint32(r); err != nil {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "expiry height")
	}

	return tx, nil
}

// TxID returns the display txid (double-SHA256, reversed hex) of the
// serialized transaction.
func (tx *Tx) TxID() (string, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return "", err
	}
	return chainhash.DoubleHashH(raw).String(), nil
}

// Hex returns the serialized transaction as a hex string ready for
// broadcast.
func (tx *Tx) Hex() (string, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func writeTxOut(w io.Writer, out *TxOut) error {
	if out.Value < 0 {
		return fmt.Errorf("negative output value %d", out.Value)
	}
	writeUint64(w, uint64(out.Value))
	return wire.WriteVarBytes(w, 0, out.PkScript)
}

func writeUint32(w io.Writer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, _ = w.Write(b[:])
}

func writeUint64(w io.Writer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, _ = w.Write(b[:])
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
