package esplora

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/buger/jsonparser"
	"github.com/goodnatureofminers/esplora-go/pkg/safe"
)

// The decoder turns raw wire payloads into domain values with strict
// structural validation. It is transport-independent: both transport variants
// feed identical bytes through these functions, so they cannot diverge.
// Every failure here is a *DecodeError and is never retried.

func parseHashField(field, s string) (chainhash.Hash, error) {
	var zero chainhash.Hash
	if len(s) != chainhash.HashSize*2 {
		return zero, decodeErrorf(field, "want %d hex characters, got %d", chainhash.HashSize*2, len(s))
	}
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return zero, decodeErrorf(field, "invalid hash hex: %v", err)
	}
	return *h, nil
}

func parseHexField(field, s string) ([]byte, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, decodeErrorf(field, "invalid hex: %v", err)
	}
	return raw, nil
}

func parseUint32Field(field string, v int64) (uint32, error) {
	u, err := safe.Uint32(v)
	if err != nil {
		return 0, decodeErrorf(field, "%v", err)
	}
	return u, nil
}

func parseSatoshiField(field string, v int64) (uint64, error) {
	u, err := safe.Uint64(v)
	if err != nil {
		return 0, decodeErrorf(field, "%v", err)
	}
	if v > btcutil.MaxSatoshi {
		return 0, decodeErrorf(field, "value %d exceeds total supply bound", v)
	}
	return u, nil
}

type txStatusJSON struct {
	Confirmed   bool    `json:"confirmed"`
	BlockHeight *int64  `json:"block_height"`
	BlockHash   *string `json:"block_hash"`
	BlockTime   *int64  `json:"block_time"`
}

// domain enforces the presence/absence pairing: a confirmed status carries
// height, hash and time; an unconfirmed one carries none of them.
func (s txStatusJSON) domain(field string) (TxStatus, error) {
	if !s.Confirmed {
		if s.BlockHeight != nil || s.BlockHash != nil || s.BlockTime != nil {
			return TxStatus{}, decodeErrorf(field, "unconfirmed status carries block fields")
		}
		return TxStatus{}, nil
	}
	if s.BlockHeight == nil {
		return TxStatus{}, decodeErrorf(field+".block_height", "missing on confirmed status")
	}
	if s.BlockHash == nil {
		return TxStatus{}, decodeErrorf(field+".block_hash", "missing on confirmed status")
	}
	if s.BlockTime == nil {
		return TxStatus{}, decodeErrorf(field+".block_time", "missing on confirmed status")
	}
	height, err := parseUint32Field(field+".block_height", *s.BlockHeight)
	if err != nil {
		return TxStatus{}, err
	}
	hash, err := parseHashField(field+".block_hash", *s.BlockHash)
	if err != nil {
		return TxStatus{}, err
	}
	blockTime, err := parseUint32Field(field+".block_time", *s.BlockTime)
	if err != nil {
		return TxStatus{}, err
	}
	return TxStatus{
		Confirmed:   true,
		BlockHeight: height,
		BlockHash:   hash,
		BlockTime:   blockTime,
	}, nil
}

func decodeTxStatus(body []byte) (*TxStatus, error) {
	var raw txStatusJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, decodeErrorf("status", "invalid json: %v", err)
	}
	status, err := raw.domain("status")
	if err != nil {
		return nil, err
	}
	return &status, nil
}

type voutJSON struct {
	ScriptPubKey string `json:"scriptpubkey"`
	Value        int64  `json:"value"`
}

func (v voutJSON) domain(field string) (TxOutput, error) {
	value, err := parseSatoshiField(field+".value", v.Value)
	if err != nil {
		return TxOutput{}, err
	}
	script, err := parseHexField(field+".scriptpubkey", v.ScriptPubKey)
	if err != nil {
		return TxOutput{}, err
	}
	return TxOutput{Value: value, ScriptPubKey: script}, nil
}

type vinJSON struct {
	TxID       string    `json:"txid"`
	Vout       int64     `json:"vout"`
	Prevout    *voutJSON `json:"prevout"`
	ScriptSig  string    `json:"scriptsig"`
	Witness    []string  `json:"witness"`
	Sequence   int64     `json:"sequence"`
	IsCoinbase bool      `json:"is_coinbase"`
}

func (v vinJSON) domain(field string) (TxInput, error) {
	txid, err := parseHashField(field+".txid", v.TxID)
	if err != nil {
		return TxInput{}, err
	}
	vout, err := parseUint32Field(field+".vout", v.Vout)
	if err != nil {
		return TxInput{}, err
	}
	seq, err := parseUint32Field(field+".sequence", v.Sequence)
	if err != nil {
		return TxInput{}, err
	}
	scriptSig, err := parseHexField(field+".scriptsig", v.ScriptSig)
	if err != nil {
		return TxInput{}, err
	}
	var witness [][]byte
	for i, w := range v.Witness {
		item, err := parseHexField(fmt.Sprintf("%s.witness[%d]", field, i), w)
		if err != nil {
			return TxInput{}, err
		}
		witness = append(witness, item)
	}
	in := TxInput{
		PrevOut:    OutPoint{TxID: txid, Vout: vout},
		ScriptSig:  scriptSig,
		Sequence:   seq,
		Witness:    witness,
		IsCoinbase: v.IsCoinbase,
	}
	if v.Prevout != nil {
		prev, err := v.Prevout.domain(field + ".prevout")
		if err != nil {
			return TxInput{}, err
		}
		in.Prevout = &prev
	}
	return in, nil
}

type txJSON struct {
	TxID     string        `json:"txid"`
	Version  int64         `json:"version"`
	Locktime int64         `json:"locktime"`
	Size     int64         `json:"size"`
	Weight   int64         `json:"weight"`
	Fee      int64         `json:"fee"`
	Vin      []vinJSON     `json:"vin"`
	Vout     []voutJSON    `json:"vout"`
	Status   *txStatusJSON `json:"status"`
}

func (t txJSON) domain() (*Transaction, error) {
	txid, err := parseHashField("txid", t.TxID)
	if err != nil {
		return nil, err
	}
	if t.Version < math.MinInt32 || t.Version > math.MaxInt32 {
		return nil, decodeErrorf("version", "value %d out of int32 range", t.Version)
	}
	locktime, err := parseUint32Field("locktime", t.Locktime)
	if err != nil {
		return nil, err
	}
	size, err := parseUint32Field("size", t.Size)
	if err != nil {
		return nil, err
	}
	weight, err := parseUint32Field("weight", t.Weight)
	if err != nil {
		return nil, err
	}
	fee, err := parseSatoshiField("fee", t.Fee)
	if err != nil {
		return nil, err
	}
	if len(t.Vin) == 0 {
		return nil, decodeErrorf("vin", "transaction has no inputs")
	}

	tx := &Transaction{
		TxID:     txid,
		Version:  int32(t.Version),
		Locktime: locktime,
		Size:     size,
		Weight:   weight,
		Fee:      fee,
	}
	for i, in := range t.Vin {
		input, err := in.domain(fmt.Sprintf("vin[%d]", i))
		if err != nil {
			return nil, err
		}
		tx.Inputs = append(tx.Inputs, input)
	}
	for i, out := range t.Vout {
		output, err := out.domain(fmt.Sprintf("vout[%d]", i))
		if err != nil {
			return nil, err
		}
		tx.Outputs = append(tx.Outputs, output)
	}
	if t.Status != nil {
		status, err := t.Status.domain("status")
		if err != nil {
			return nil, err
		}
		tx.Status = status
	}
	return tx, nil
}

func decodeTransaction(body []byte) (*Transaction, error) {
	var raw txJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, decodeErrorf("tx", "invalid json: %v", err)
	}
	return raw.domain()
}

func decodeTransactions(body []byte) ([]Transaction, error) {
	var raw []txJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, decodeErrorf("txs", "invalid json: %v", err)
	}
	txs := make([]Transaction, 0, len(raw))
	for i, item := range raw {
		tx, err := item.domain()
		if err != nil {
			return nil, decodeErrorf(fmt.Sprintf("txs[%d]", i), "%v", err)
		}
		txs = append(txs, *tx)
	}
	return txs, nil
}

type blockJSON struct {
	ID                string  `json:"id"`
	Height            int64   `json:"height"`
	Version           int64   `json:"version"`
	Timestamp         int64   `json:"timestamp"`
	TxCount           int64   `json:"tx_count"`
	MerkleRoot        string  `json:"merkle_root"`
	PreviousBlockHash *string `json:"previousblockhash"`
	Nonce             int64   `json:"nonce"`
	Bits              int64   `json:"bits"`
	Difficulty        float64 `json:"difficulty"`
}

func (b blockJSON) domain() (*BlockHeader, error) {
	hash, err := parseHashField("id", b.ID)
	if err != nil {
		return nil, err
	}
	height, err := parseUint32Field("height", b.Height)
	if err != nil {
		return nil, err
	}
	if b.Version < math.MinInt32 || b.Version > math.MaxInt32 {
		return nil, decodeErrorf("version", "value %d out of int32 range", b.Version)
	}
	timestamp, err := parseUint32Field("timestamp", b.Timestamp)
	if err != nil {
		return nil, err
	}
	txCount, err := parseUint32Field("tx_count", b.TxCount)
	if err != nil {
		return nil, err
	}
	root, err := parseHashField("merkle_root", b.MerkleRoot)
	if err != nil {
		return nil, err
	}
	nonce, err := parseUint32Field("nonce", b.Nonce)
	if err != nil {
		return nil, err
	}
	bits, err := parseUint32Field("bits", b.Bits)
	if err != nil {
		return nil, err
	}
	if b.Difficulty < 0 {
		return nil, decodeErrorf("difficulty", "negative value %v", b.Difficulty)
	}

	header := &BlockHeader{
		Hash:       hash,
		Height:     height,
		Version:    int32(b.Version),
		Timestamp:  timestamp,
		MerkleRoot: root,
		Nonce:      nonce,
		Bits:       bits,
		Difficulty: b.Difficulty,
		TxCount:    txCount,
	}
	// The genesis block has no predecessor; everywhere else the field is
	// required.
	if b.PreviousBlockHash != nil {
		prev, err := parseHashField("previousblockhash", *b.PreviousBlockHash)
		if err != nil {
			return nil, err
		}
		header.PreviousBlockHash = prev
	} else if height != 0 {
		return nil, decodeErrorf("previousblockhash", "missing on non-genesis block")
	}
	return header, nil
}

func decodeBlockHeader(body []byte) (*BlockHeader, error) {
	var raw blockJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, decodeErrorf("block", "invalid json: %v", err)
	}
	return raw.domain()
}

func decodeBlockHeaders(body []byte) ([]BlockHeader, error) {
	var raw []blockJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, decodeErrorf("blocks", "invalid json: %v", err)
	}
	if len(raw) == 0 {
		return nil, decodeErrorf("blocks", "empty block list")
	}
	headers := make([]BlockHeader, 0, len(raw))
	for i, item := range raw {
		h, err := item.domain()
		if err != nil {
			return nil, decodeErrorf(fmt.Sprintf("blocks[%d]", i), "%v", err)
		}
		headers = append(headers, *h)
	}
	return headers, nil
}

type blockStatusJSON struct {
	InBestChain bool    `json:"in_best_chain"`
	Height      int64   `json:"height"`
	NextBest    *string `json:"next_best"`
}

func decodeBlockStatus(body []byte) (*BlockStatus, error) {
	var raw blockStatusJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, decodeErrorf("block_status", "invalid json: %v", err)
	}
	height, err := parseUint32Field("height", raw.Height)
	if err != nil {
		return nil, err
	}
	status := &BlockStatus{InBestChain: raw.InBestChain, Height: height}
	if raw.NextBest != nil {
		next, err := parseHashField("next_best", *raw.NextBest)
		if err != nil {
			return nil, err
		}
		status.NextBest = &next
	}
	return status, nil
}

type merkleProofJSON struct {
	BlockHeight int64    `json:"block_height"`
	Merkle      []string `json:"merkle"`
	Pos         int64    `json:"pos"`
}

func decodeMerkleProof(body []byte) (*MerkleProof, error) {
	var raw merkleProofJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, decodeErrorf("merkle_proof", "invalid json: %v", err)
	}
	height, err := parseUint32Field("block_height", raw.BlockHeight)
	if err != nil {
		return nil, err
	}
	pos, err := parseUint32Field("pos", raw.Pos)
	if err != nil {
		return nil, err
	}
	levels := len(raw.Merkle)
	if levels > 32 {
		return nil, decodeErrorf("merkle", "sibling count %d exceeds tree depth limit", levels)
	}
	if levels < 32 && uint64(pos) >= uint64(1)<<uint(levels) {
		return nil, decodeErrorf("pos", "position %d out of range for %d proof levels", pos, levels)
	}
	siblings := make([]chainhash.Hash, 0, levels)
	for i, s := range raw.Merkle {
		h, err := parseHashField(fmt.Sprintf("merkle[%d]", i), s)
		if err != nil {
			return nil, err
		}
		siblings = append(siblings, h)
	}
	return &MerkleProof{BlockHeight: height, Siblings: siblings, Pos: pos}, nil
}

type utxoJSON struct {
	TxID   string       `json:"txid"`
	Vout   int64        `json:"vout"`
	Value  int64        `json:"value"`
	Status txStatusJSON `json:"status"`
}

func decodeUTXOs(body []byte) ([]UTXO, error) {
	var raw []utxoJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, decodeErrorf("utxo", "invalid json: %v", err)
	}
	utxos := make([]UTXO, 0, len(raw))
	for i, item := range raw {
		field := fmt.Sprintf("utxo[%d]", i)
		txid, err := parseHashField(field+".txid", item.TxID)
		if err != nil {
			return nil, err
		}
		vout, err := parseUint32Field(field+".vout", item.Vout)
		if err != nil {
			return nil, err
		}
		value, err := parseSatoshiField(field+".value", item.Value)
		if err != nil {
			return nil, err
		}
		status, err := item.Status.domain(field + ".status")
		if err != nil {
			return nil, err
		}
		utxos = append(utxos, UTXO{
			OutPoint: OutPoint{TxID: txid, Vout: vout},
			Value:    value,
			Status:   status,
		})
	}
	return utxos, nil
}

type activityCountersJSON struct {
	FundedTxoCount int64 `json:"funded_txo_count"`
	FundedTxoSum   int64 `json:"funded_txo_sum"`
	SpentTxoCount  int64 `json:"spent_txo_count"`
	SpentTxoSum    int64 `json:"spent_txo_sum"`
	TxCount        int64 `json:"tx_count"`
}

func (c activityCountersJSON) domain(field string) (ActivityCounters, error) {
	fundedCount, err := parseUint32Field(field+".funded_txo_count", c.FundedTxoCount)
	if err != nil {
		return ActivityCounters{}, err
	}
	fundedSum, err := parseSatoshiField(field+".funded_txo_sum", c.FundedTxoSum)
	if err != nil {
		return ActivityCounters{}, err
	}
	spentCount, err := parseUint32Field(field+".spent_txo_count", c.SpentTxoCount)
	if err != nil {
		return ActivityCounters{}, err
	}
	spentSum, err := parseSatoshiField(field+".spent_txo_sum", c.SpentTxoSum)
	if err != nil {
		return ActivityCounters{}, err
	}
	txCount, err := parseUint32Field(field+".tx_count", c.TxCount)
	if err != nil {
		return ActivityCounters{}, err
	}
	return ActivityCounters{
		FundedTxoCount: fundedCount,
		FundedTxoSum:   fundedSum,
		SpentTxoCount:  spentCount,
		SpentTxoSum:    spentSum,
		TxCount:        txCount,
	}, nil
}

type activityStatsJSON struct {
	ChainStats   activityCountersJSON `json:"chain_stats"`
	MempoolStats activityCountersJSON `json:"mempool_stats"`
}

func decodeActivityStats(body []byte) (*ScriptActivityStats, error) {
	var raw activityStatsJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, decodeErrorf("stats", "invalid json: %v", err)
	}
	chain, err := raw.ChainStats.domain("chain_stats")
	if err != nil {
		return nil, err
	}
	mempool, err := raw.MempoolStats.domain("mempool_stats")
	if err != nil {
		return nil, err
	}
	return &ScriptActivityStats{Chain: chain, Mempool: mempool}, nil
}

type outputStatusJSON struct {
	Spent  bool          `json:"spent"`
	TxID   *string       `json:"txid"`
	Vin    *int64        `json:"vin"`
	Status *txStatusJSON `json:"status"`
}

func decodeOutputStatus(body []byte) (*OutputStatus, error) {
	var raw outputStatusJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, decodeErrorf("outspend", "invalid json: %v", err)
	}
	out := &OutputStatus{Spent: raw.Spent}
	if raw.TxID != nil {
		txid, err := parseHashField("outspend.txid", *raw.TxID)
		if err != nil {
			return nil, err
		}
		out.TxID = &txid
	}
	if raw.Vin != nil {
		vin, err := parseUint32Field("outspend.vin", *raw.Vin)
		if err != nil {
			return nil, err
		}
		out.Vin = &vin
	}
	if raw.Status != nil {
		status, err := raw.Status.domain("outspend.status")
		if err != nil {
			return nil, err
		}
		out.Status = &status
	}
	if raw.Spent && raw.TxID == nil {
		return nil, decodeErrorf("outspend.txid", "missing on spent output")
	}
	return out, nil
}

// decodeFeeEstimates parses the dynamic-key fee map. Keys are confirmation
// targets in blocks; values are sat/vB rates kept at server precision.
func decodeFeeEstimates(body []byte) (FeeEstimates, error) {
	estimates := make(FeeEstimates)
	var decErr error
	err := jsonparser.ObjectEach(body, func(key []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
		parsed, err := strconv.ParseInt(string(key), 10, 64)
		if err != nil {
			decErr = decodeErrorf("fee_estimates", "invalid confirmation target %q", string(key))
			return decErr
		}
		target, err := safe.Uint16(parsed)
		if err != nil || target == 0 {
			decErr = decodeErrorf("fee_estimates", "invalid confirmation target %q", string(key))
			return decErr
		}
		if dataType != jsonparser.Number {
			decErr = decodeErrorf(fmt.Sprintf("fee_estimates.%s", key), "non-numeric rate %q", string(value))
			return decErr
		}
		rate, err := strconv.ParseFloat(string(value), 64)
		if err != nil {
			decErr = decodeErrorf(fmt.Sprintf("fee_estimates.%s", key), "invalid rate %q: %v", string(value), err)
			return decErr
		}
		if rate < 0 {
			decErr = decodeErrorf(fmt.Sprintf("fee_estimates.%s", key), "negative rate %v", rate)
			return decErr
		}
		estimates[target] = rate
		return nil
	})
	if decErr != nil {
		return nil, decErr
	}
	if err != nil {
		return nil, decodeErrorf("fee_estimates", "invalid json: %v", err)
	}
	return estimates, nil
}

func decodeTextHash(field string, body []byte) (*chainhash.Hash, error) {
	s := strings.TrimSpace(string(body))
	if len(s) != chainhash.HashSize*2 {
		return nil, decodeErrorf(field, "want %d hex characters, got %d", chainhash.HashSize*2, len(s))
	}
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return nil, decodeErrorf(field, "invalid hash hex: %v", err)
	}
	return h, nil
}

func decodeTextHeight(body []byte) (uint32, error) {
	s := strings.TrimSpace(string(body))
	height, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, decodeErrorf("height", "invalid height %q: %v", s, err)
	}
	return uint32(height), nil
}

func decodeRawTransaction(body []byte) (*wire.MsgTx, error) {
	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(body)); err != nil {
		return nil, decodeErrorf("raw_tx", "consensus decode: %v", err)
	}
	return tx, nil
}

func decodeRawBlockHeader(body []byte) (*wire.BlockHeader, error) {
	s := strings.TrimSpace(string(body))
	raw, err := parseHexField("raw_header", s)
	if err != nil {
		return nil, err
	}
	if len(raw) != wire.MaxBlockHeaderPayload {
		return nil, decodeErrorf("raw_header", "want %d bytes, got %d", wire.MaxBlockHeaderPayload, len(raw))
	}
	header := &wire.BlockHeader{}
	if err := header.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, decodeErrorf("raw_header", "consensus decode: %v", err)
	}
	return header, nil
}
