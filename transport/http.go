package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// TLSMode selects how HTTPS connections are configured.
type TLSMode string

const (
	// TLSNone disables TLS entirely; only http:// base URLs are usable.
	TLSNone TLSMode = "none"
	// TLSNative uses the Go TLS stack with its default root certificates.
	TLSNative TLSMode = "native"
	// TLSPlatform uses the operating system certificate pool.
	TLSPlatform TLSMode = "platform"
)

const defaultTimeout = 30 * time.Second

// Config holds the options recognized by both HTTP transport variants.
type Config struct {
	// BaseURL of the Esplora server, e.g. "https://blockstream.info/api".
	BaseURL string
	// Proxy is an optional proxy URL ("socks5://..." or "http://...").
	Proxy string
	// TLS selects the TLS backend. Empty means TLSNative.
	TLS TLSMode
	// Timeout bounds a full request/response round-trip. Zero means 30s.
	Timeout time.Duration
	// Headers are set on every outgoing request.
	Headers map[string]string
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

func (c Config) roundTripper() (http.RoundTripper, error) {
	rt := &http.Transport{
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}

	switch c.TLS {
	case "", TLSNative:
		// default TLS config
	case TLSPlatform:
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("load system cert pool: %w", err)
		}
		rt.TLSClientConfig = &tls.Config{RootCAs: pool}
	case TLSNone:
		rt.TLSClientConfig = nil
	default:
		return nil, fmt.Errorf("unrecognized tls mode %q", c.TLS)
	}

	if c.Proxy != "" {
		proxyURL, err := url.Parse(c.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		rt.Proxy = http.ProxyURL(proxyURL)
	}

	return rt, nil
}

func (c Config) validateScheme() error {
	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		return nil
	case "https":
		if c.TLS == TLSNone {
			return errors.New("https base url requires a tls mode other than none")
		}
		return nil
	default:
		return fmt.Errorf("base url scheme %q not supported", parsed.Scheme)
	}
}

// Concurrent is the context-propagating HTTP transport. An in-flight request
// is abandoned as soon as the caller's context is canceled; the goroutine is
// parked at the I/O boundary rather than spinning.
type Concurrent struct {
	base    string
	client  *http.Client
	timeout time.Duration
	headers map[string]string
}

// NewConcurrent builds the concurrent transport from cfg.
func NewConcurrent(cfg Config) (*Concurrent, error) {
	if err := cfg.validateScheme(); err != nil {
		return nil, err
	}
	rt, err := cfg.roundTripper()
	if err != nil {
		return nil, err
	}
	return &Concurrent{
		base:    cfg.BaseURL,
		client:  &http.Client{Transport: rt},
		timeout: cfg.timeout(),
		headers: cfg.Headers,
	}, nil
}

// Send performs the round-trip, honoring ctx cancellation mid-flight.
func (t *Concurrent) Send(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return roundTrip(ctx, t.client, t.base, t.headers, req)
}

// Blocking is the thread-blocking HTTP transport. Send runs to completion on
// the calling goroutine and returns only when the response arrives or the
// socket timeout expires; the caller's context deadline is not consulted
// mid-flight.
type Blocking struct {
	base    string
	client  *http.Client
	headers map[string]string
}

// NewBlocking builds the blocking transport from cfg.
func NewBlocking(cfg Config) (*Blocking, error) {
	if err := cfg.validateScheme(); err != nil {
		return nil, err
	}
	rt, err := cfg.roundTripper()
	if err != nil {
		return nil, err
	}
	return &Blocking{
		base:    cfg.BaseURL,
		client:  &http.Client{Transport: rt, Timeout: cfg.timeout()},
		headers: cfg.Headers,
	}, nil
}

// Send performs the round-trip. Only the configured socket timeout can
// interrupt it; ctx is ignored once the request is on the wire.
func (t *Blocking) Send(_ context.Context, req Request) (*Response, error) {
	return roundTrip(context.Background(), t.client, t.base, t.headers, req)
}

func roundTrip(ctx context.Context, client *http.Client, base string, headers map[string]string, req Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, base+req.Path, body)
	if err != nil {
		return nil, &Error{Kind: KindOther, Err: err}
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, classify(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}, nil
}

func classify(err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &Error{Kind: KindTimeout, Err: err}
	case isTLSError(err):
		return &Error{Kind: KindTLSFailure, Err: err}
	case isConnError(err):
		return &Error{Kind: KindConnectionFailed, Err: err}
	default:
		return &Error{Kind: KindOther, Err: err}
	}
}

func isTLSError(err error) bool {
	var (
		recordErr   tls.RecordHeaderError
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
	)
	return errors.As(err, &recordErr) ||
		errors.As(err, &certErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr)
}

func isConnError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
