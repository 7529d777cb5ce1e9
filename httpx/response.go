package httpx

import (
	"errors"
	"io"
	"strconv"

	"dqx0.com/go/minihttp/httpx/internal/http1"
)

// BodyMode is how the end of a response body is found.
type BodyMode int

const (
	BodyNone       BodyMode = BodyMode(http1.BodyNone)
	BodyFixed      BodyMode = BodyMode(http1.BodyFixed)
	BodyChunked    BodyMode = BodyMode(http1.BodyChunked)
	BodyUntilClose BodyMode = BodyMode(http1.BodyUntilClose)
)

func (m BodyMode) String() string { return http1.BodyKind(m).String() }

// Response is a parsed response head plus a streaming body. It borrows its
// connection exclusively until it is passed to Client.Release.
//
// Response implements io.Reader over the body; the end of the body is
// reported as (0, io.EOF), repeatedly and without touching the connection.
type Response struct {
	Status     string // e.g. "200 OK"
	StatusCode int
	Proto      string
	ProtoMajor int
	ProtoMinor int
	Header     Header
	// ContentLength is the declared body length, or -1 when the body is
	// chunked or delimited by connection close.
	ContentLength int64
	// Trailer holds chunked trailer fields once the body reached EOF.
	Trailer   Header
	Request   *Request
	RequestID string

	mode      BodyMode
	conn      *Connection
	remaining int64
	dec       *http1.Decoder
	eof       bool
	err       error
	reqClose  bool
	released  bool
}

func newResponse(req *Request, head *http1.ResponseHead, fr http1.Framing, c *Connection, cfg Config) *Response {
	r := &Response{
		Status:        statusText(head),
		StatusCode:    head.StatusCode,
		Proto:         head.Proto,
		ProtoMajor:    head.ProtoMajor,
		ProtoMinor:    head.ProtoMinor,
		Header:        Header(head.Header),
		ContentLength: fr.Length,
		Request:       req,
		mode:          BodyMode(fr.Kind),
		conn:          c,
	}
	switch r.mode {
	case BodyNone:
		r.ContentLength = 0
		r.eof = true
	case BodyFixed:
		r.remaining = fr.Length
	case BodyChunked:
		r.dec = http1.NewDecoder(c.br, cfg.MaxChunkSize, cfg.MaxLineBytes, cfg.MaxHeaderBytes)
	}
	return r
}

func statusText(h *http1.ResponseHead) string {
	if h.Reason == "" {
		return strconv.Itoa(h.StatusCode)
	}
	return strconv.Itoa(h.StatusCode) + " " + h.Reason
}

// Mode reports the body framing decided from the response head.
func (r *Response) Mode() BodyMode { return r.mode }

// HasBody reports whether the framing allows body bytes at all. It does not
// say whether any are left to read.
func (r *Response) HasBody() bool { return r.mode != BodyNone }

// Drained reports whether the body has been read to its end, leaving the
// connection at a message boundary.
func (r *Response) Drained() bool { return r.eof && r.err == nil }

// Err returns the error that stopped body reading, if any.
func (r *Response) Err() error { return r.err }

// Conn returns the borrowed connection, or nil after release.
func (r *Response) Conn() *Connection {
	if r.released {
		return nil
	}
	return r.conn
}

// Read reads body bytes into p.
func (r *Response) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.released {
		return 0, ErrReleased
	}
	if r.eof {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	switch r.mode {
	case BodyFixed:
		if int64(len(p)) > r.remaining {
			p = p[:r.remaining]
		}
		n, err := r.conn.br.Read(p)
		r.remaining -= int64(n)
		if r.remaining == 0 {
			r.eof = true
			return n, nil
		}
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			return n, r.fail("read body", err)
		}
		return n, nil
	case BodyChunked:
		n, err := r.dec.Read(p)
		if err == io.EOF {
			r.eof = true
			if tr := r.dec.Trailer(); len(tr) > 0 {
				r.Trailer = Header(tr)
			}
			return n, io.EOF
		}
		if err != nil {
			return n, r.fail("read chunked body", err)
		}
		return n, nil
	case BodyUntilClose:
		n, err := r.conn.br.Read(p)
		if err == io.EOF {
			r.eof = true
			return n, io.EOF
		}
		if err != nil {
			return n, r.fail("read body", err)
		}
		return n, nil
	}
	r.eof = true
	return 0, io.EOF
}

// fail records err as sticky and closes the connection so it can never be
// pooled in a dirty state.
func (r *Response) fail(op string, err error) error {
	r.err = classify(op, err)
	if r.conn != nil {
		_ = r.conn.markClosed()
	}
	return r.err
}

// ReadAll reads the rest of the body. A limit > 0 caps the body size; a
// larger body fails with ErrBodyTooLarge and leaves the connection unusable.
func (r *Response) ReadAll(limit int64) ([]byte, error) {
	var src io.Reader = r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	b, err := io.ReadAll(src)
	if err != nil {
		return b, err
	}
	if limit > 0 && int64(len(b)) > limit {
		r.err = ErrBodyTooLarge
		_ = r.conn.markClosed()
		return b[:limit], ErrBodyTooLarge
	}
	return b, nil
}

// Drain discards up to max remaining body bytes (max <= 0 means no cap) and
// reports whether the body is now fully consumed.
func (r *Response) Drain(max int64) (bool, error) {
	if r.eof || r.err != nil {
		return r.Drained(), r.err
	}
	var src io.Reader = r
	if max > 0 {
		src = io.LimitReader(r, max)
	}
	if _, err := io.Copy(io.Discard, src); err != nil {
		return false, err
	}
	if !r.eof {
		// The cap was hit exactly; a one-byte read tells whether anything is left.
		var one [1]byte
		n, err := r.Read(one[:])
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		if n > 0 {
			return false, nil
		}
	}
	return r.Drained(), nil
}

// keepAlive decides whether the connection may serve another exchange.
func (r *Response) keepAlive() bool {
	if r.err != nil || r.conn == nil || r.conn.state == StateClosed {
		return false
	}
	if r.reqClose || r.mode == BodyUntilClose || !r.eof {
		return false
	}
	// After 101 the stream no longer carries HTTP/1.1.
	if r.StatusCode == 101 {
		return false
	}
	h := map[string][]string(r.Header)
	if http1.HasToken(h, "Connection", "close") {
		return false
	}
	if r.ProtoMajor == 1 && r.ProtoMinor == 0 && !http1.HasToken(h, "Connection", "keep-alive") {
		return false
	}
	return true
}
