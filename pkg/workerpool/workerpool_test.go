package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestProcess_AllItems(t *testing.T) {
	t.Parallel()

	var sum int32
	err := Process(context.Background(), 3, []int{1, 2, 3, 4}, func(_ context.Context, v int) error {
		atomic.AddInt32(&sum, int32(v))
		return nil
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if sum != 10 {
		t.Fatalf("sum = %d, want 10", sum)
	}
}

func TestProcess_FirstErrorCancels(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")
	err := Process(context.Background(), 2, []int{1, 2, 3}, func(_ context.Context, v int) error {
		if v == 2 {
			return wantErr
		}
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Process() error = %v, want %v", err, wantErr)
	}
}

func TestProcess_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Process(ctx, 2, []int{1, 2}, func(context.Context, int) error {
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Process() error = %v, want context.Canceled", err)
	}
}
