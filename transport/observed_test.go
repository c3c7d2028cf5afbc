package transport

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
)

func TestObserved_Send(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	req := Request{Method: http.MethodGet, Path: "/blocks/tip/height", Kind: KindHexText}

	tests := []struct {
		name    string
		opLabel func(Request) string
		wantOp  string
	}{
		{
			name:    "custom operation label",
			opLabel: func(r Request) string { return r.Method + " " + r.Path },
			wantOp:  "GET /blocks/tip/height",
		},
		{
			name:   "nil label falls back to method",
			wantOp: "GET",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			t.Cleanup(ctrl.Finish)

			want := &Response{StatusCode: http.StatusOK, Body: []byte("123456")}
			mockNext := NewMockTransport(ctrl)
			mockMetrics := NewMockMetrics(ctrl)

			gomock.InOrder(
				mockNext.EXPECT().
					Send(ctx, req).
					Return(want, nil),
				mockMetrics.EXPECT().
					Observe(tt.wantOp, nil, gomock.AssignableToTypeOf(time.Time{})),
			)

			got, err := NewObserved(mockNext, mockMetrics, tt.opLabel).Send(ctx, req)
			if err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			if got != want {
				t.Fatalf("Send() = %p, want %p", got, want)
			}
		})
	}
}

func TestObserved_SendError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	ctx := context.Background()
	req := Request{Method: http.MethodGet, Path: "/tx/abc"}
	sendErr := &Error{Kind: KindConnectionFailed, Err: errors.New("refused")}

	mockNext := NewMockTransport(ctrl)
	mockMetrics := NewMockMetrics(ctrl)

	gomock.InOrder(
		mockNext.EXPECT().
			Send(ctx, req).
			Return(nil, sendErr),
		mockMetrics.EXPECT().
			Observe("GET", gomock.Any(), gomock.AssignableToTypeOf(time.Time{})).
			Do(func(_ string, err error, _ time.Time) {
				if !errors.Is(err, sendErr) {
					t.Fatalf("unexpected error propagated to metrics: %v", err)
				}
			}),
	)

	if _, err := NewObserved(mockNext, mockMetrics, nil).Send(ctx, req); !errors.Is(err, sendErr) {
		t.Fatalf("Send() error = %v, want %v", err, sendErr)
	}
}
