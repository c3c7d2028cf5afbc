// Package transport moves request and response bytes between the client and an
// Esplora server. It knows nothing about endpoint payloads; decoding happens
// above it so that both variants feed the exact same decode path.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

// ResponseKind tells the decoder what shape of payload an endpoint returns.
type ResponseKind int

const (
	KindJSON ResponseKind = iota
	KindHexText
	KindRawBytes
)

// Request describes a single wire request. Path is relative to the server
// base URL and already percent-encoded.
type Request struct {
	Method  string
	Path    string
	Body    []byte
	Headers map[string]string
	Kind    ResponseKind
}

// Response carries the raw server reply. Body is fully read before return.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Transport sends a request and returns the raw response. Implementations
// only move bytes; any non-nil error is a *Error. A non-2xx status is not an
// error at this layer.
type Transport interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// Metrics records the outcome of transport operations.
type Metrics interface {
	Observe(operation string, err error, started time.Time)
}

// ErrorKind classifies a transport failure.
type ErrorKind int

const (
	KindTimeout ErrorKind = iota
	KindConnectionFailed
	KindTLSFailure
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectionFailed:
		return "connection failed"
	case KindTLSFailure:
		return "tls failure"
	default:
		return "transport error"
	}
}

// Error is the only error type returned by transports.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
