package transport

import (
	"context"
	"time"
)

// Observed wraps a Transport with metrics instrumentation. The operation
// label is derived from each request by a caller-supplied function; absent
// that, the HTTP method alone is used.
type Observed struct {
	next    Transport
	metrics Metrics
	op      func(Request) string
}

// NewObserved constructs an instrumented transport. opLabel maps a request to
// the metrics operation label; nil falls back to the HTTP method.
func NewObserved(next Transport, metrics Metrics, opLabel func(Request) string) *Observed {
	if opLabel == nil {
		opLabel = func(req Request) string { return req.Method }
	}
	return &Observed{
		next:    next,
		metrics: metrics,
		op:      opLabel,
	}
}

// Send forwards to the wrapped transport, recording duration and outcome.
func (o *Observed) Send(ctx context.Context, req Request) (res *Response, err error) {
	started := time.Now()
	defer func() {
		o.metrics.Observe(o.op(req), err, started)
	}()
	return o.next.Send(ctx, req)
}
