package esplora

import (
	"context"
	"errors"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/esplora-go/pkg/workerpool"
)

// Transactions fetches several transactions concurrently with at most
// workerCount requests in flight. Lookups that come back ErrNotFound are
// omitted from the result; any other error cancels outstanding work.
//
// Retries within each individual call remain sequential; only distinct
// lookups run in parallel.
func (c *Client) Transactions(ctx context.Context, txids []chainhash.Hash, workerCount int) (map[chainhash.Hash]*Transaction, error) {
	if workerCount <= 0 {
		workerCount = 1
	}

	var mu sync.Mutex
	out := make(map[chainhash.Hash]*Transaction, len(txids))

	err := workerpool.Process(ctx, workerCount, txids, func(ctx context.Context, txid chainhash.Hash) error {
		tx, err := c.Transaction(ctx, txid)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		mu.Lock()
		out[txid] = tx
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UTXOsForScriptHashes fetches UTXO sets for several script hashes
// concurrently with at most workerCount requests in flight.
func (c *Client) UTXOsForScriptHashes(ctx context.Context, scriptHashes [][32]byte, workerCount int) (map[[32]byte][]UTXO, error) {
	if workerCount <= 0 {
		workerCount = 1
	}

	var mu sync.Mutex
	out := make(map[[32]byte][]UTXO, len(scriptHashes))

	err := workerpool.Process(ctx, workerCount, scriptHashes, func(ctx context.Context, scriptHash [32]byte) error {
		utxos, err := c.ScriptHashUTXOs(ctx, scriptHash)
		if err != nil {
			return err
		}
		mu.Lock()
		out[scriptHash] = utxos
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
