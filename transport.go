package flowgate

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"time"
)

// DefaultCallTimeout is injected when a request carries no timeout of its
// own.
const DefaultCallTimeout = 30 * time.Second

type (
	// Request describes one opaque call to the remote API. The resilience
	// layer never interprets the body.
	Request struct {
		Headers map[string]string
		Method  string
		// URL is the absolute request URL.
		URL string
		// Path is the path template the URL was built from, e.g.
		// "/workflows/:id". It keeps per-endpoint state partitioned by
		// operation rather than by concrete resource id. Falls back to URL
		// when empty.
		Path    string
		Body    []byte
		Timeout time.Duration
	}

	// Response is the outcome of a successful call.
	Response struct {
		Data       []byte
		StatusCode int
	}

	// Transport issues the actual remote call. Implementations translate
	// network-level faults into *TransportError and non-2xx responses into
	// *StatusError so the retry loop can classify them.
	Transport interface {
		Call(ctx context.Context, req *Request) (*Response, error)
	}

	// HTTPTransport is the production Transport backed by net/http.
	HTTPTransport struct {
		client         *http.Client
		defaultTimeout time.Duration
	}
)

// EndpointKey derives the partition key for per-endpoint breaker, pool, and
// metrics state: method plus path template. Distinct operations never share
// a key.
func (r *Request) EndpointKey() string {
	p := r.Path
	if p == "" {
		p = r.URL
	}

	return r.Method + " " + p
}

// NewHTTPTransport wraps hc as a Transport. A nil hc gets a client built
// from the given pool options (connection and idle timeouts). Calls without
// a per-request timeout use DefaultCallTimeout.
func NewHTTPTransport(hc *http.Client, opts ...PoolOption) *HTTPTransport {
	if hc == nil {
		cfg := defaultPoolConfig()
		for _, o := range opts {
			o(&cfg)
		}

		hc = &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.connectionTimeout,
				}).DialContext,
				IdleConnTimeout:     cfg.idleTimeout,
				MaxIdleConnsPerHost: cfg.maxConnections,
			},
		}
	}

	return &HTTPTransport{
		client:         hc,
		defaultTimeout: DefaultCallTimeout,
	}
}

// Call issues the HTTP request and classifies the outcome. Network faults
// come back as *TransportError, non-2xx statuses as *StatusError with the
// response body attached. Parent-context cancellation is passed through
// unwrapped so callers can detect it with errors.Is.
func (t *HTTPTransport) Call(
	ctx context.Context,
	req *Request,
) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = t.defaultTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(
		callCtx, req.Method, req.URL, body,
	)
	if err != nil {
		return nil, Permanent(err)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, &TransportError{Op: "round_trip", Err: err}
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, &TransportError{Op: "read_body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: data}
	}

	return &Response{StatusCode: resp.StatusCode, Data: data}, nil
}

var _ Transport = (*HTTPTransport)(nil)

// TransportFunc adapts a function into a [Transport], mirroring
// http.HandlerFunc. Useful for stubbing the remote API in tests.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Call invokes the underlying function.
func (f TransportFunc) Call(
	ctx context.Context,
	req *Request,
) (*Response, error) {
	return f(ctx, req)
}
