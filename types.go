// Package esplora is a client library for Esplora-compatible blockchain index
// REST APIs. It exposes one query surface over two interchangeable transports,
// a blocking one and a concurrent context-driven one, which share a single
// decode and retry path.
package esplora

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// OutPoint identifies a spendable transaction output.
type OutPoint struct {
	TxID chainhash.Hash
	Vout uint32
}

// TxStatus describes the confirmation state of a transaction. When Confirmed
// is true, BlockHeight, BlockHash and BlockTime are all set; when false, all
// three are zero. The decoder rejects payloads that break this pairing.
type TxStatus struct {
	Confirmed   bool
	BlockHeight uint32
	BlockHash   chainhash.Hash
	BlockTime   uint32
}

// TxInput is a single transaction input as reported by the index.
type TxInput struct {
	PrevOut    OutPoint
	ScriptSig  []byte
	Sequence   uint32
	Witness    [][]byte
	IsCoinbase bool
	// Prevout is the output being spent, when the server includes it.
	Prevout *TxOutput
}

// TxOutput is a single transaction output.
type TxOutput struct {
	Value        uint64
	ScriptPubKey []byte
}

// Transaction is the index's view of a transaction, including its
// confirmation status.
type Transaction struct {
	TxID     chainhash.Hash
	Version  int32
	Locktime uint32
	Size     uint32
	Weight   uint32
	Fee      uint64
	Inputs   []TxInput
	Outputs  []TxOutput
	Status   TxStatus
}

// UTXO is an unspent output attributed to a script or address.
type UTXO struct {
	OutPoint OutPoint
	Value    uint64
	Status   TxStatus
}

// BlockHeader is the JSON block object served at /block/:hash. Immutable once
// decoded.
type BlockHeader struct {
	Hash              chainhash.Hash
	Height            uint32
	Version           int32
	Timestamp         uint32
	MerkleRoot        chainhash.Hash
	PreviousBlockHash chainhash.Hash
	Nonce             uint32
	Bits              uint32
	Difficulty        float64
	TxCount           uint32
}

// BlockStatus reports where a block sits relative to the best chain.
type BlockStatus struct {
	InBestChain bool
	Height      uint32
	// NextBest is the hash of the next block in the best chain, when known.
	NextBest *chainhash.Hash
}

// MerkleProof proves inclusion of a transaction under a block's merkle root.
// Siblings are ordered leaf-to-root; Pos is the transaction's index in the
// block. Invariant, enforced at decode: Pos < 2^len(Siblings).
type MerkleProof struct {
	BlockHeight uint32
	Siblings    []chainhash.Hash
	Pos         uint32
}

// FeeEstimates maps a confirmation target in blocks to an estimated fee rate
// in sat/vB. Values keep the precision the server reported.
type FeeEstimates map[uint16]float64

// ActivityCounters aggregates funded/spent sums and transaction counts for
// one bucket (chain or mempool).
type ActivityCounters struct {
	FundedTxoCount uint32
	FundedTxoSum   uint64
	SpentTxoCount  uint32
	SpentTxoSum    uint64
	TxCount        uint32
}

// ScriptActivityStats is the per-script (or per-address) activity summary,
// split into confirmed and mempool buckets.
type ScriptActivityStats struct {
	Chain   ActivityCounters
	Mempool ActivityCounters
}

// OutputStatus reports whether an output has been spent, and by what.
type OutputStatus struct {
	Spent  bool
	TxID   *chainhash.Hash
	Vin    *uint32
	Status *TxStatus
}

// ScriptHash derives the index key Esplora uses for script-based queries:
// a single SHA-256 over the scriptPubKey, rendered in forward byte order.
func ScriptHash(scriptPubKey []byte) [32]byte {
	return sha256.Sum256(scriptPubKey)
}
