package esplora

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/http"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/esplora-go/transport"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// Client queries an Esplora-compatible index. It is transport-agnostic: give
// it a blocking transport and every call runs to completion on the calling
// goroutine; give it the concurrent transport and calls are cancellable via
// context. Decoding and retry behavior are identical either way.
//
// A Client holds no chain state and no cross-call cache; every value it
// returns is decoded fresh from the wire.
type Client struct {
	transport transport.Transport
	retry     RetryPolicy
	logger    *zap.Logger
	limiter   ratelimit.Limiter
}

// Option customizes a Client.
type Option func(*Client)

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithLogger attaches a structured logger; retries are logged at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRateLimit caps outgoing requests at rps per second, smoothing load on
// public servers. Zero or negative disables the limiter.
func WithRateLimit(rps int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = ratelimit.New(rps)
		}
	}
}

// New builds a Client on top of an already-configured transport.
func New(t transport.Transport, opts ...Option) *Client {
	c := &Client{
		transport: t,
		retry:     DefaultRetryPolicy(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTP builds a Client with a default concurrent HTTP transport for
// baseURL.
func NewHTTP(baseURL string, opts ...Option) (*Client, error) {
	t, err := transport.NewConcurrent(transport.Config{BaseURL: baseURL})
	if err != nil {
		return nil, err
	}
	return New(t, opts...), nil
}

// do runs one request under the retry policy and maps a surviving non-2xx
// status onto the error taxonomy. When optional is true, a 404 becomes
// ErrNotFound so callers can distinguish "absent" from "broken".
func (c *Client) do(ctx context.Context, req transport.Request, optional bool) (*transport.Response, error) {
	if c.limiter != nil {
		c.limiter.Take()
	}
	resp, err := c.retry.execute(ctx, c.transport, req, c.logger)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	if optional && resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
}

// Transaction fetches the index's view of a transaction. Returns ErrNotFound
// if the server does not know the txid.
func (c *Client) Transaction(ctx context.Context, txid chainhash.Hash) (*Transaction, error) {
	resp, err := c.do(ctx, reqTx(txid), true)
	if err != nil {
		return nil, err
	}
	return decodeTransaction(resp.Body)
}

// TransactionStatus fetches the confirmation status of a transaction.
func (c *Client) TransactionStatus(ctx context.Context, txid chainhash.Hash) (*TxStatus, error) {
	resp, err := c.do(ctx, reqTxStatus(txid), false)
	if err != nil {
		return nil, err
	}
	return decodeTxStatus(resp.Body)
}

// RawTransaction fetches the consensus-serialized transaction bytes and
// decodes them with the wire codec. Returns ErrNotFound for unknown txids.
func (c *Client) RawTransaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
	resp, err := c.do(ctx, reqRawTx(txid), true)
	if err != nil {
		return nil, err
	}
	return decodeRawTransaction(resp.Body)
}

// TransactionMerkleProof fetches the inclusion proof for a confirmed
// transaction. Returns ErrNotFound for unknown or unconfirmed txids.
func (c *Client) TransactionMerkleProof(ctx context.Context, txid chainhash.Hash) (*MerkleProof, error) {
	resp, err := c.do(ctx, reqMerkleProof(txid), true)
	if err != nil {
		return nil, err
	}
	return decodeMerkleProof(resp.Body)
}

// OutputStatus reports whether output vout of txid has been spent.
func (c *Client) OutputStatus(ctx context.Context, txid chainhash.Hash, vout uint32) (*OutputStatus, error) {
	resp, err := c.do(ctx, reqOutputStatus(txid, vout), true)
	if err != nil {
		return nil, err
	}
	return decodeOutputStatus(resp.Body)
}

// TxIDAtBlockIndex fetches the txid at position index within the block.
func (c *Client) TxIDAtBlockIndex(ctx context.Context, blockHash chainhash.Hash, index uint32) (*chainhash.Hash, error) {
	resp, err := c.do(ctx, reqTxIDAtBlockIndex(blockHash, index), true)
	if err != nil {
		return nil, err
	}
	return decodeTextHash("txid", resp.Body)
}

// BlockHeader fetches the JSON block object for hash.
func (c *Client) BlockHeader(ctx context.Context, hash chainhash.Hash) (*BlockHeader, error) {
	resp, err := c.do(ctx, reqBlockHeader(hash), false)
	if err != nil {
		return nil, err
	}
	return decodeBlockHeader(resp.Body)
}

// RawBlockHeader fetches the 80-byte consensus header for hash.
func (c *Client) RawBlockHeader(ctx context.Context, hash chainhash.Hash) (*wire.BlockHeader, error) {
	resp, err := c.do(ctx, reqRawBlockHeader(hash), false)
	if err != nil {
		return nil, err
	}
	return decodeRawBlockHeader(resp.Body)
}

// BlockStatus fetches the best-chain status of the block with hash.
func (c *Client) BlockStatus(ctx context.Context, hash chainhash.Hash) (*BlockStatus, error) {
	resp, err := c.do(ctx, reqBlockStatus(hash), false)
	if err != nil {
		return nil, err
	}
	return decodeBlockStatus(resp.Body)
}

// BlockHashAtHeight fetches the hash of the best-chain block at height.
func (c *Client) BlockHashAtHeight(ctx context.Context, height uint32) (*chainhash.Hash, error) {
	resp, err := c.do(ctx, reqBlockHashAtHeight(height), false)
	if err != nil {
		return nil, err
	}
	return decodeTextHash("block_hash", resp.Body)
}

// TipHash fetches the hash of the current chain tip.
func (c *Client) TipHash(ctx context.Context) (*chainhash.Hash, error) {
	resp, err := c.do(ctx, reqTipHash(), false)
	if err != nil {
		return nil, err
	}
	return decodeTextHash("tip_hash", resp.Body)
}

// TipHeight fetches the height of the current chain tip.
func (c *Client) TipHeight(ctx context.Context) (uint32, error) {
	resp, err := c.do(ctx, reqTipHeight(), false)
	if err != nil {
		return 0, err
	}
	return decodeTextHeight(resp.Body)
}

// Blocks fetches recent block summaries starting at the tip, or at
// startHeight when non-nil. The server decides how many it returns.
func (c *Client) Blocks(ctx context.Context, startHeight *uint32) ([]BlockHeader, error) {
	resp, err := c.do(ctx, reqBlocks(startHeight), false)
	if err != nil {
		return nil, err
	}
	return decodeBlockHeaders(resp.Body)
}

// FeeEstimates fetches the confirmation-target to sat/vB fee table.
func (c *Client) FeeEstimates(ctx context.Context) (FeeEstimates, error) {
	resp, err := c.do(ctx, reqFeeEstimates(), false)
	if err != nil {
		return nil, err
	}
	return decodeFeeEstimates(resp.Body)
}

// Broadcast submits a signed transaction and returns the txid acknowledged
// by the server.
func (c *Client) Broadcast(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, reqBroadcast(hex.EncodeToString(buf.Bytes())), false)
	if err != nil {
		return nil, err
	}
	return decodeTextHash("txid", resp.Body)
}

// AddressStats fetches confirmed and mempool activity for an address.
func (c *Client) AddressStats(ctx context.Context, address string) (*ScriptActivityStats, error) {
	if err := validateAddress(address); err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, reqAddressStats(address), false)
	if err != nil {
		return nil, err
	}
	return decodeActivityStats(resp.Body)
}

// AddressUTXOs fetches the unspent outputs attributed to an address.
func (c *Client) AddressUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	if err := validateAddress(address); err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, reqAddressUTXOs(address), false)
	if err != nil {
		return nil, err
	}
	return decodeUTXOs(resp.Body)
}

// AddressTxs fetches transaction history for an address, newest first. Pass
// the last seen txid to page through confirmed history.
func (c *Client) AddressTxs(ctx context.Context, address string, lastSeen *chainhash.Hash) ([]Transaction, error) {
	if err := validateAddress(address); err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, reqAddressTxs(address, lastSeen), false)
	if err != nil {
		return nil, err
	}
	return decodeTransactions(resp.Body)
}

// ScriptHashStats fetches confirmed and mempool activity for a script hash.
func (c *Client) ScriptHashStats(ctx context.Context, scriptHash [32]byte) (*ScriptActivityStats, error) {
	resp, err := c.do(ctx, reqScriptHashStats(scriptHash), false)
	if err != nil {
		return nil, err
	}
	return decodeActivityStats(resp.Body)
}

// ScriptHashUTXOs fetches the unspent outputs attributed to a script hash.
func (c *Client) ScriptHashUTXOs(ctx context.Context, scriptHash [32]byte) ([]UTXO, error) {
	resp, err := c.do(ctx, reqScriptHashUTXOs(scriptHash), false)
	if err != nil {
		return nil, err
	}
	return decodeUTXOs(resp.Body)
}

// ScriptHashTxs fetches transaction history for a script hash, newest first.
// Pass the last seen txid to page through confirmed history.
func (c *Client) ScriptHashTxs(ctx context.Context, scriptHash [32]byte, lastSeen *chainhash.Hash) ([]Transaction, error) {
	resp, err := c.do(ctx, reqScriptHashTxs(scriptHash, lastSeen), false)
	if err != nil {
		return nil, err
	}
	return decodeTransactions(resp.Body)
}

// ConvertFeeRate picks the fee rate for the largest confirmation target that
// does not exceed target. The second return is false when no estimate at or
// below the target exists.
func ConvertFeeRate(target uint16, estimates FeeEstimates) (float64, bool) {
	var (
		best  uint16
		rate  float64
		found bool
	)
	for k, v := range estimates {
		if k <= target && (!found || k > best) {
			best = k
			rate = v
			found = true
		}
	}
	return rate, found
}
