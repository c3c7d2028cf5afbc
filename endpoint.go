package esplora

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/esplora-go/transport"
)

// The endpoint catalog maps each typed query onto a wire request descriptor.
// It is a pure mapping: no side effects, and every identifier is validated
// before the request can reach a transport.

// ParseHash validates a hex-encoded 32-byte hash identifier (txid or block
// hash in display order) supplied as a string.
func ParseHash(s string) (*chainhash.Hash, error) {
	if len(s) != chainhash.HashSize*2 {
		return nil, &InvalidIdentifierError{Input: s, Reason: fmt.Sprintf("want %d hex characters, got %d", chainhash.HashSize*2, len(s))}
	}
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return nil, &InvalidIdentifierError{Input: s, Reason: err.Error()}
	}
	return h, nil
}

// ParseScriptHash validates a hex-encoded SHA-256 script hash in forward
// byte order.
func ParseScriptHash(s string) ([32]byte, error) {
	var out [32]byte
	if len(s) != 64 {
		return out, &InvalidIdentifierError{Input: s, Reason: fmt.Sprintf("want 64 hex characters, got %d", len(s))}
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, &InvalidIdentifierError{Input: s, Reason: err.Error()}
	}
	copy(out[:], raw)
	return out, nil
}

func validateAddress(addr string) error {
	if addr == "" {
		return &InvalidIdentifierError{Input: addr, Reason: "empty address"}
	}
	return nil
}

func reqTx(txid chainhash.Hash) transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   "/tx/" + txid.String(),
		Kind:   transport.KindJSON,
	}
}

func reqTxStatus(txid chainhash.Hash) transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   "/tx/" + txid.String() + "/status",
		Kind:   transport.KindJSON,
	}
}

func reqRawTx(txid chainhash.Hash) transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   "/tx/" + txid.String() + "/raw",
		Kind:   transport.KindRawBytes,
	}
}

func reqMerkleProof(txid chainhash.Hash) transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   "/tx/" + txid.String() + "/merkle-proof",
		Kind:   transport.KindJSON,
	}
}

func reqOutputStatus(txid chainhash.Hash, vout uint32) transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/tx/%s/outspend/%d", txid, vout),
		Kind:   transport.KindJSON,
	}
}

func reqBlockHeader(hash chainhash.Hash) transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   "/block/" + hash.String(),
		Kind:   transport.KindJSON,
	}
}

func reqRawBlockHeader(hash chainhash.Hash) transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   "/block/" + hash.String() + "/header",
		Kind:   transport.KindHexText,
	}
}

func reqBlockStatus(hash chainhash.Hash) transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   "/block/" + hash.String() + "/status",
		Kind:   transport.KindJSON,
	}
}

func reqTxIDAtBlockIndex(hash chainhash.Hash, index uint32) transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/block/%s/txid/%d", hash, index),
		Kind:   transport.KindHexText,
	}
}

func reqBlockHashAtHeight(height uint32) transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/block-height/%d", height),
		Kind:   transport.KindHexText,
	}
}

func reqTipHash() transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   "/blocks/tip/hash",
		Kind:   transport.KindHexText,
	}
}

func reqTipHeight() transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   "/blocks/tip/height",
		Kind:   transport.KindHexText,
	}
}

func reqBlocks(startHeight *uint32) transport.Request {
	path := "/blocks"
	if startHeight != nil {
		path = fmt.Sprintf("/blocks/%d", *startHeight)
	}
	return transport.Request{
		Method: http.MethodGet,
		Path:   path,
		Kind:   transport.KindJSON,
	}
}

func reqFeeEstimates() transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   "/fee-estimates",
		Kind:   transport.KindJSON,
	}
}

func reqBroadcast(rawTxHex string) transport.Request {
	return transport.Request{
		Method: http.MethodPost,
		Path:   "/tx",
		Body:   []byte(rawTxHex),
		Kind:   transport.KindHexText,
	}
}

func reqAddressStats(addr string) transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   "/address/" + url.PathEscape(addr),
		Kind:   transport.KindJSON,
	}
}

func reqAddressUTXOs(addr string) transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   "/address/" + url.PathEscape(addr) + "/utxo",
		Kind:   transport.KindJSON,
	}
}

func reqAddressTxs(addr string, lastSeen *chainhash.Hash) transport.Request {
	path := "/address/" + url.PathEscape(addr) + "/txs"
	if lastSeen != nil {
		path = "/address/" + url.PathEscape(addr) + "/txs/chain/" + lastSeen.String()
	}
	return transport.Request{
		Method: http.MethodGet,
		Path:   path,
		Kind:   transport.KindJSON,
	}
}

func reqScriptHashStats(scriptHash [32]byte) transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   "/scripthash/" + hex.EncodeToString(scriptHash[:]),
		Kind:   transport.KindJSON,
	}
}

func reqScriptHashUTXOs(scriptHash [32]byte) transport.Request {
	return transport.Request{
		Method: http.MethodGet,
		Path:   "/scripthash/" + hex.EncodeToString(scriptHash[:]) + "/utxo",
		Kind:   transport.KindJSON,
	}
}

func reqScriptHashTxs(scriptHash [32]byte, lastSeen *chainhash.Hash) transport.Request {
	path := "/scripthash/" + hex.EncodeToString(scriptHash[:]) + "/txs"
	if lastSeen != nil {
		path += "/chain/" + lastSeen.String()
	}
	return transport.Request{
		Method: http.MethodGet,
		Path:   path,
		Kind:   transport.KindJSON,
	}
}
