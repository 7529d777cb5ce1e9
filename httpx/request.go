package httpx

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
)

// Request represents an HTTP request.
//
// ContentLength is -1 when unknown; such bodies are sent with chunked
// transfer-encoding. A non-nil Body with ContentLength 0 is also treated as
// unknown. Context can be set via WithContext.
type Request struct {
	Method        string
	URL           *url.URL
	Header        Header
	Body          io.Reader
	ContentLength int64
	// Close asks the server to close the connection after this exchange.
	Close bool
	// RequestID is sent as X-Request-ID. If empty, one is taken from the
	// context or generated.
	RequestID string
	ctx       context.Context
}

// NewRequest builds a request for rawURL. The body length is inferred for
// *bytes.Buffer, *bytes.Reader and *strings.Reader; other readers are sent
// chunked.
func NewRequest(ctx context.Context, method, rawURL string, body io.Reader) (*Request, error) {
	if method == "" {
		method = "GET"
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	r := &Request{
		Method: method,
		URL:    u,
		Header: Header{},
		Body:   body,
		ctx:    ctx,
	}
	if body != nil {
		r.ContentLength = -1
		switch v := body.(type) {
		case *bytes.Buffer:
			r.ContentLength = int64(v.Len())
		case *bytes.Reader:
			r.ContentLength = int64(v.Len())
		case *strings.Reader:
			r.ContentLength = int64(v.Len())
		}
		if r.ContentLength == 0 {
			r.Body = nil
		}
	}
	return r, nil
}

// Context returns the request's context. If nil, returns Background.
func (r *Request) Context() context.Context {
	if r == nil || r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r with its context changed to ctx.
func WithContext(r *Request, ctx context.Context) *Request {
	if r == nil {
		return nil
	}
	r2 := *r
	r2.ctx = ctx
	return &r2
}

// bodyLength returns the length to declare and whether the body must be chunked.
func (r *Request) bodyLength() (n int64, chunked bool) {
	if r.Body == nil {
		return 0, false
	}
	if r.ContentLength > 0 {
		return r.ContentLength, false
	}
	return -1, true
}
