package txbuilder

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/dchest/blake2b"
)

// SigHashAll commits the signature to all inputs and outputs.
const SigHashAll = 0x01

// BLAKE2b personalization keys of the transparent signature digest
// (ZIP-243 lineage, shared by the Sapling format this chain uses).
const (
	sigHashPersonalization  = "ZcashSigHash"
	prevoutsPersonalization = "ZcashPrevoutHash"
	sequencePersonalization = "ZcashSequencHash"
	outputsPersonalization  = "ZcashOutputsHash"
)

var zeroHash [32]byte

// blake2bHash is a 256-bit BLAKE2b hash with the given personalization
// key.
func blake2bHash(data, personalization []byte) ([]byte, error) {
	h, err := blake2b.New(&blake2b.Config{Size: 32, Person: personalization})
	if err != nil {
		return nil, err
	}
	if _, err := h.Write(data); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func hashPrevouts(tx *Tx) ([]byte, error) {
	var b bytes.Buffer
	for _, in := range tx.TxIn {
		b.Write(in.PreviousOutPoint.Hash[:])
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], in.PreviousOutPoint.Index)
		b.Write(buf[:])
	}
	return blake2bHash(b.Bytes(), []byte(prevoutsPersonalization))
}

func hashSequence(tx *Tx) ([]byte, error) {
	var b bytes.Buffer
	for _, in := range tx.TxIn {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], in.Sequence)
		b.Write(buf[:])
	}
	return blake2bHash(b.Bytes(), []byte(sequencePersonalization))
}

func hashOutputs(tx *Tx) ([]byte, error) {
	var b bytes.Buffer
	for _, out := range tx.TxOut {
		if err := writeTxOut(&b, out); err != nil {
			return nil, err
		}
	}
	return blake2bHash(b.Bytes(), []byte(outputsPersonalization))
}

// SignatureHash computes the digest signed for a transparent input.
// The digest commits to the spent amount; a signature made under the
// wrong prevout value is invalid, which is what lets the self-checks
// trust upstream-reported UTXO values at signing time.
func SignatureHash(tx *Tx, idx int, scriptCode []byte, amount int64, hashType byte, branchID uint32) ([]byte, error) {
	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, fmt.Errorf("input index %d out of range for %d inputs", idx, len(tx.TxIn))
	}
	if hashType != SigHashAll {
		return nil, fmt.Errorf("unsupported sighash type 0x%02x", hashType)
	}

	prevouts, err := hashPrevouts(tx)
	if err != nil {
		return nil, err
	}
	sequence, err := hashSequence(tx)
	if err != nil {
		return nil, err
	}
	outputs, err := hashOutputs(tx)
	if err != nil {
		return nil, err
	}

	b := new(bytes.Buffer)
	writeUint32(b, tx.Version|(1<<31))
	writeUint32(b, saplingGroupID)
	b.Write(prevouts)
	b.Write(sequence)
	b.Write(outputs)
	// hashJoinSplits, hashShieldedSpends, hashShieldedOutputs
	b.Write(zeroHash[:])
	b.Write(zeroHash[:])
	b.Write(zeroHash[:])
	writeUint32(b, tx.LockTime)
	writeUint32(b, tx.ExpiryHeight)
	// valueBalance
	writeUint64(b, 0)
	writeUint32(b, uint32(hashType))

	in := tx.TxIn[idx]
	b.Write(in.PreviousOutPoint.Hash[:])
	writeUint32(b, in.PreviousOutPoint.Index)
	if err := wire.WriteVarBytes(b, 0, scriptCode); err != nil {
		return nil, err
	}
	writeUint64(b, uint64(amount))
	writeUint32(b, in.Sequence)

	person := make([]byte, 0, 16)
	person = append(person, sigHashPersonalization...)
	person = binary.LittleEndian.AppendUint32(person, branchID)

	return blake2bHash(b.Bytes(), person)
}
