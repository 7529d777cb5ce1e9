package httpx

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"dqx0.com/go/minihttp/httpx/internal/http1"
	"dqx0.com/go/minihttp/internal/obs"
)

// Client issues HTTP/1.1 requests over a ConnectionPool. It is safe for
// concurrent use; every Response it returns must be handed back to Release.
type Client struct {
	cfg      Config
	pool     *ConnectionPool
	ownsPool bool
	dialer   Dialer
	tls      bool // a custom dialer may speak TLS, so https targets are allowed
	logger   obs.Logger
	meter    obs.Meter
}

// Option configures a Client.
type Option func(*Client)

// WithDialer sets the byte-stream provider. A custom dialer is also how
// https is supported: it is expected to return an established TLS stream.
// It has no effect together with WithPool, whose pool already owns a dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithLogger(l obs.Logger) Option { return func(c *Client) { c.logger = l } }

func WithMeter(m obs.Meter) Option { return func(c *Client) { c.meter = m } }

// WithPool makes the client borrow from p instead of building its own pool.
// Connections are dialed through p's dialer, which also decides whether https
// is allowed. Client.Close leaves a borrowed pool open.
func WithPool(p *ConnectionPool) Option {
	return func(c *Client) { c.pool = p }
}

// NewClient returns a client configured by cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg.withDefaults(),
		logger: obs.NopLogger{},
		meter:  obs.NopMeter{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.pool == nil {
		c.pool = NewConnectionPool(c.cfg.Pool, c.dialer,
			WithPoolLogger(c.logger), WithPoolMeter(c.meter))
		c.ownsPool = true
	} else if c.dialer != nil {
		c.logger.Logf(obs.Warn, "WithDialer ignored: the shared pool dials through its own dialer")
		c.dialer = c.pool.dialer
	}
	_, plain := c.pool.dialer.(*net.Dialer)
	c.tls = !plain
	return c
}

// Pool returns the pool the client draws connections from.
func (c *Client) Pool() *ConnectionPool { return c.pool }

// Do sends req and reads the response head. The body is left on the
// connection for the caller to stream through the returned Response.
func (c *Client) Do(req *Request) (*Response, error) {
	start := time.Now()
	if req == nil || req.URL == nil {
		return nil, ErrInvalidRequest
	}
	key, err := targetKey(req.URL)
	if err != nil {
		return nil, connectError(req.URL.Host, err)
	}
	if strings.EqualFold(req.URL.Scheme, "https") && !c.tls {
		return nil, connectError(key.String(), ErrUnsupportedURL)
	}
	ctx := req.Context()
	method := req.Method
	if method == "" {
		method = "GET"
	}
	target := requestTarget(req.URL)
	hdr, closeReq := c.requestHeader(ctx, req, method)
	if err := http1.ValidateRequestHead(method, target, hdr); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	conn, err := c.pool.Acquire(ctx, key)
	if err != nil {
		c.requestFailed(method, "dial")
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.c.SetDeadline(dl)
	}

	if err := c.writeRequest(conn, req, method, target, hdr); err != nil {
		c.abandon(conn)
		c.logger.Logf(obs.Warn, "conn %d: write request to %s failed: %v", conn.id, key, err)
		c.requestFailed(method, "write")
		return nil, err
	}

	rd := http1.Reader{BR: conn.br, MaxLineBytes: c.cfg.MaxLineBytes, MaxHeaderBytes: c.cfg.MaxHeaderBytes}
	head, err := rd.ReadResponseHead()
	if err != nil {
		c.abandon(conn)
		err = classify("read response head", err)
		c.logger.Logf(obs.Warn, "conn %d: read response from %s failed: %v", conn.id, key, err)
		c.requestFailed(method, "read_head")
		return nil, err
	}
	fr, err := http1.DecideFraming(method, head.StatusCode, head.Header)
	if err != nil {
		c.abandon(conn)
		err = protocolError("decide body framing", err)
		c.logger.Logf(obs.Warn, "conn %d: %v", conn.id, err)
		c.requestFailed(method, "framing")
		return nil, err
	}

	resp := newResponse(req, head, fr, conn, c.cfg)
	resp.reqClose = closeReq
	resp.RequestID = hdr.Get("X-Request-Id")
	status := strconv.Itoa(resp.StatusCode)
	c.meter.Counter("minihttp_requests_total", 1,
		obs.Label{Key: "method", Value: method}, obs.Label{Key: "status", Value: status})
	c.meter.Histogram("minihttp_roundtrip_duration_ms", float64(time.Since(start).Milliseconds()),
		obs.Label{Key: "method", Value: method}, obs.Label{Key: "status", Value: status})
	c.logger.Logf(obs.Debug, "%s %s -> %d (conn %d reused=%t body=%s)",
		method, req.URL.Redacted(), resp.StatusCode, conn.id, conn.Reused(), resp.mode)
	return resp, nil
}

// requestHeader assembles the header block actually sent and reports whether
// the request asks for the connection to be closed afterwards.
func (c *Client) requestHeader(ctx context.Context, req *Request, method string) (Header, bool) {
	hdr := req.Header.Clone()
	hdr.Del("Content-Length")
	hdr.Del("Transfer-Encoding")
	if hdr.Get("Host") == "" {
		hdr.Set("Host", hostHeader(req.URL))
	}
	if hdr.Get("User-Agent") == "" {
		hdr.Set("User-Agent", c.cfg.UserAgent)
	}
	if hdr.Get("X-Request-Id") == "" {
		id := req.RequestID
		if id == "" {
			id, _ = RequestIDFrom(ctx)
		}
		if id == "" {
			id = genID()
		}
		hdr.Set("X-Request-Id", id)
	}
	if hdr.Get("X-Correlation-Id") == "" {
		if cid, ok := CorrelationIDFrom(ctx); ok {
			hdr.Set("X-Correlation-Id", cid)
		}
	}
	if hdr.Get("Traceparent") == "" {
		if tr, ok := TraceFrom(ctx); ok {
			if tp := traceparentFor(tr); tp != "" {
				hdr.Set("Traceparent", tp)
			}
		}
	}
	closeReq := req.Close || c.cfg.DisableKeepAlives || http1.HasToken(hdr, "Connection", "close")
	if closeReq {
		hdr.Set("Connection", "close")
	}
	switch n, chunked := req.bodyLength(); {
	case chunked:
		hdr.Set("Transfer-Encoding", "chunked")
	case n > 0:
		hdr.Set("Content-Length", strconv.FormatInt(n, 10))
	case method == "POST" || method == "PUT" || method == "PATCH":
		hdr.Set("Content-Length", "0")
	}
	return hdr, closeReq
}

func (c *Client) writeRequest(conn *Connection, req *Request, method, target string, hdr Header) error {
	if err := http1.WriteRequestHead(conn.bw, method, target, hdr); err != nil {
		return ioError("write request head", err)
	}
	switch n, chunked := req.bodyLength(); {
	case chunked:
		cw := &http1.ChunkedWriter{W: conn.bw}
		if _, err := io.Copy(cw, req.Body); err != nil {
			return ioError("write chunked body", err)
		}
		if err := cw.Close(); err != nil {
			return ioError("write chunked body", err)
		}
	case n > 0:
		if _, err := io.CopyN(conn.bw, req.Body, n); err != nil {
			return ioError("write body", err)
		}
	}
	if err := conn.bw.Flush(); err != nil {
		return ioError("flush request", err)
	}
	return nil
}

// abandon closes a connection whose stream position is unknown and gives its
// slot back to the pool.
func (c *Client) abandon(conn *Connection) {
	_ = conn.markClosed()
	c.pool.Release(conn, false)
}

func (c *Client) requestFailed(method, stage string) {
	c.meter.Counter("minihttp_requests_error_total", 1,
		obs.Label{Key: "method", Value: method}, obs.Label{Key: "stage", Value: stage})
}

// Release ends the exchange behind resp. The connection goes back to the
// pool only when the body was fully read, no error occurred and neither side
// asked to close; otherwise it is closed. Releasing twice returns ErrReleased.
func (c *Client) Release(resp *Response) error {
	if resp == nil {
		return nil
	}
	if resp.released {
		return ErrReleased
	}
	keep := resp.keepAlive()
	resp.released = true
	c.pool.Release(resp.conn, keep)
	if !keep {
		c.logger.Logf(obs.Debug, "conn %d not reused (drained=%t err=%v)", resp.conn.id, resp.eof, resp.err)
	}
	return nil
}

// Get issues a GET for url.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	req, err := NewRequest(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return c.Do(req)
}

// Head issues a HEAD for url. The response never has a body.
func (c *Client) Head(ctx context.Context, url string) (*Response, error) {
	req, err := NewRequest(ctx, "HEAD", url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return c.Do(req)
}

// Post issues a POST for url with the given body and Content-Type.
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*Response, error) {
	req, err := NewRequest(ctx, "POST", url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.Do(req)
}

// CloseIdleConnections closes every idle pooled connection.
func (c *Client) CloseIdleConnections() { c.pool.CloseIdle() }

// Close shuts the client's own pool down. Responses still outstanding close
// their connections on release.
func (c *Client) Close() {
	if c.ownsPool {
		c.pool.Close()
	}
}
