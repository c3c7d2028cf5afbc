package main

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"
)

type stubBroadcaster struct {
	block bool
}

func (s *stubBroadcaster) Broadcast(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	h := tx.TxHash()
	return &h, nil
}

func testTx(locktime uint32) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.LockTime = locktime
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x6a}))
	return tx
}

func TestBroadcastAll(t *testing.T) {
	txs := []*wire.MsgTx{testTx(0), testTx(1), testTx(2)}

	out, err := broadcastAll(context.Background(), zap.NewNop(), &stubBroadcaster{}, txs)
	if err != nil {
		t.Fatalf("broadcastAll() error = %v", err)
	}
	txids, ok := out.([]string)
	if !ok {
		t.Fatalf("broadcastAll() = %T, want []string", out)
	}
	if len(txids) != len(txs) {
		t.Fatalf("got %d txids, want %d", len(txids), len(txs))
	}
	for i, tx := range txs {
		if txids[i] != tx.TxHash().String() {
			t.Fatalf("txid[%d] = %s, want %s", i, txids[i], tx.TxHash())
		}
	}
}

// Cancellation mid-broadcast closes the queue's results channel; the loop
// must surface the context error instead of dereferencing a zero Result.
func TestBroadcastAll_CanceledMidBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	txs := []*wire.MsgTx{testTx(0), testTx(1)}

	errCh := make(chan error, 1)
	go func() {
		_, err := broadcastAll(ctx, zap.NewNop(), &stubBroadcaster{block: true}, txs)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("broadcastAll() returned nil error after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("broadcastAll() did not return after cancellation")
	}
}
