// Package broadcastq provides a buffered, rate-limited transaction
// broadcaster. Callers enqueue signed transactions and a single background
// goroutine submits them in order, pacing requests so bursts do not hammer a
// public server.
package broadcastq

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// Broadcaster submits one signed transaction and returns the acknowledged
// txid.
type Broadcaster interface {
	Broadcast(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error)
}

// Result reports the outcome of one queued broadcast.
type Result struct {
	Tx   *wire.MsgTx
	TxID *chainhash.Hash
	Err  error
}

// Queue buffers transactions and broadcasts them sequentially.
type Queue struct {
	broadcaster Broadcaster
	txs         chan *wire.MsgTx
	results     chan Result
	rl          ratelimit.Limiter
	logger      *zap.Logger

	wg   sync.WaitGroup
	stop chan struct{}
}

// New constructs a Queue holding up to buffer pending transactions and
// submitting at most rps per second.
func New(logger *zap.Logger, broadcaster Broadcaster, buffer, rps int) *Queue {
	if buffer <= 0 {
		buffer = 16
	}
	if rps <= 0 {
		rps = 1
	}
	return &Queue{
		broadcaster: broadcaster,
		txs:         make(chan *wire.MsgTx, buffer),
		results:     make(chan Result, buffer),
		rl:          ratelimit.New(rps),
		logger:      logger,
		stop:        make(chan struct{}),
	}
}

// Start begins the background broadcasting loop.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.run(ctx)
}

// Stop waits for the in-flight broadcast to finish and closes the results
// channel. Transactions still buffered are never broadcast and produce no
// result.
func (q *Queue) Stop() {
	close(q.stop)
	q.wg.Wait()
}

// Enqueue queues a transaction for broadcast, respecting context
// cancellation.
func (q *Queue) Enqueue(ctx context.Context, tx *wire.MsgTx) error {
	select {
	case <-q.stop:
		return context.Canceled
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.txs <- tx:
		return nil
	}
}

// Results delivers one Result per broadcast attempt. The channel is closed
// when the queue stops or its context is canceled, so receivers must check
// the ok flag.
func (q *Queue) Results() <-chan Result {
	return q.results
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	defer close(q.results)

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		case tx := <-q.txs:
			q.rl.Take()
			txid, err := q.broadcaster.Broadcast(ctx, tx)
			if err != nil {
				q.logger.Error("broadcast failed", zap.Error(err))
			} else {
				q.logger.Debug("broadcast accepted", zap.Stringer("txid", txid))
			}
			select {
			case q.results <- Result{Tx: tx, TxID: txid, Err: err}:
			case <-ctx.Done():
				return
			case <-q.stop:
				return
			}
		}
	}
}
