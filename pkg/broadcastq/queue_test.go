package broadcastq

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"
)

type fakeBroadcaster struct {
	calls atomic.Int32
	err   error
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, tx *wire.MsgTx) (*chainhash.Hash, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	h := tx.TxHash()
	return &h, nil
}

func newTestTx(locktime uint32) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.LockTime = locktime
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x6a}))
	return tx
}

func TestQueue_BroadcastsEnqueued(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fb := &fakeBroadcaster{}
	q := New(zap.NewNop(), fb, 8, 1000)
	q.Start(ctx)
	defer q.Stop()

	want := 3
	for i := 0; i < want; i++ {
		if err := q.Enqueue(ctx, newTestTx(uint32(i))); err != nil {
			t.Fatalf("Enqueue error: %v", err)
		}
	}

	for i := 0; i < want; i++ {
		select {
		case res := <-q.Results():
			if res.Err != nil {
				t.Fatalf("unexpected result error: %v", res.Err)
			}
			if res.TxID == nil {
				t.Fatal("result missing txid")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for result")
		}
	}

	if got := fb.calls.Load(); got != int32(want) {
		t.Fatalf("expected %d broadcasts, got %d", want, got)
	}
}

func TestQueue_ReportsBroadcastError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wantErr := errors.New("rejected")
	fb := &fakeBroadcaster{err: wantErr}
	q := New(zap.NewNop(), fb, 4, 1000)
	q.Start(ctx)
	defer q.Stop()

	if err := q.Enqueue(ctx, newTestTx(0)); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	select {
	case res := <-q.Results():
		if !errors.Is(res.Err, wantErr) {
			t.Fatalf("result error = %v, want %v", res.Err, wantErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

// blockingBroadcaster parks until the context is canceled, emulating a
// broadcast in flight when the caller gives up.
type blockingBroadcaster struct{}

func (blockingBroadcaster) Broadcast(ctx context.Context, _ *wire.MsgTx) (*chainhash.Hash, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestQueue_CancellationClosesResults(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	q := New(zap.NewNop(), blockingBroadcaster{}, 4, 1000)
	q.Start(ctx)
	defer q.Stop()

	if err := q.Enqueue(ctx, newTestTx(0)); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// the channel must close rather than deliver zero values
		for res := range q.Results() {
			if res.Err == nil && res.TxID == nil {
				t.Error("received zero-value result")
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("results channel never closed after cancellation")
	}
}

func TestQueue_DeliversEveryResult(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fb := &fakeBroadcaster{}
	q := New(zap.NewNop(), fb, 1, 1000)
	q.Start(ctx)
	defer q.Stop()

	want := 3
	go func() {
		for i := 0; i < want; i++ {
			_ = q.Enqueue(ctx, newTestTx(uint32(i)))
		}
	}()

	// drain slowly so the broadcaster outpaces the receiver; no result may
	// be dropped
	got := 0
	for got < want {
		select {
		case res := <-q.Results():
			if res.Err != nil || res.TxID == nil {
				t.Fatalf("unexpected result: %+v", res)
			}
			got++
			time.Sleep(10 * time.Millisecond)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d results", got, want)
		}
	}
}

func TestQueue_EnqueueAfterStop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := New(zap.NewNop(), &fakeBroadcaster{}, 4, 1000)
	q.Start(ctx)
	q.Stop()

	if err := q.Enqueue(ctx, newTestTx(0)); !errors.Is(err, context.Canceled) {
		t.Fatalf("Enqueue after stop = %v, want context.Canceled", err)
	}
}
