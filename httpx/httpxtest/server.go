// Package httpxtest runs scripted HTTP/1.1 servers on loopback for tests.
// Handlers write raw response bytes, so malformed or unusual framing can be
// produced on purpose.
package httpxtest

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"dqx0.com/go/minihttp/httpx/internal/http1"
)

// Request is one request as the server received it.
type Request struct {
	ConnID int // 1-based accept order of the carrying connection
	Method string
	Target string
	Proto  string
	Header map[string][]string
	Body   []byte
}

// Get returns the first value of the named header.
func (r *Request) Get(key string) string { return http1.GetHeader(r.Header, key) }

// Handler writes a complete raw response to w. Returning false closes the
// connection once the response is flushed.
type Handler func(w io.Writer, r *Request) bool

// Server accepts connections and answers each request through its Handler.
type Server struct {
	ln net.Listener
	h  Handler

	mu       sync.Mutex
	accepted int
	reqs     []*Request
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewServer starts a server on 127.0.0.1 and stops it when the test ends.
func NewServer(t testing.TB, h Handler) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{ln: ln, h: h, conns: make(map[net.Conn]struct{})}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// URL is the base URL, "http://127.0.0.1:port".
func (s *Server) URL() string { return "http://" + s.ln.Addr().String() }

func (s *Server) Addr() string { return s.ln.Addr().String() }

// Accepted is the number of connections accepted so far, i.e. client dials.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Requests returns the requests received so far in arrival order.
func (s *Server) Requests() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Request, len(s.reqs))
	copy(out, s.reqs)
	return out
}

// Close stops accepting, closes open connections and waits for handlers.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	_ = s.ln.Close()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = c.Close()
			return
		}
		s.accepted++
		id := s.accepted
		s.conns[c] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.serveConn(id, c)
	}
}

func (s *Server) serveConn(id int, c net.Conn) {
	defer s.wg.Done()
	defer func() {
		_ = c.Close()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()
	br := bufio.NewReader(c)
	bw := bufio.NewWriter(c)
	rd := http1.Reader{BR: br}
	for {
		head, err := rd.ReadRequestHead()
		if err != nil {
			return
		}
		body, err := readBody(br, head.Header)
		if err != nil {
			return
		}
		r := &Request{
			ConnID: id,
			Method: head.Method,
			Target: head.Target,
			Proto:  head.Proto,
			Header: head.Header,
			Body:   body,
		}
		s.mu.Lock()
		s.reqs = append(s.reqs, r)
		s.mu.Unlock()
		keep := s.h(bw, r)
		if err := bw.Flush(); err != nil || !keep {
			return
		}
	}
}

func readBody(br *bufio.Reader, h map[string][]string) ([]byte, error) {
	if http1.HasToken(h, "Transfer-Encoding", "chunked") {
		return io.ReadAll(http1.NewDecoder(br, 0, 0, 0))
	}
	v := http1.GetHeader(h, "Content-Length")
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return nil, http1.ErrBadContentLength
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(br, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Raw answers every request with resp and keeps the connection open.
func Raw(resp string) Handler {
	return func(w io.Writer, _ *Request) bool {
		_, _ = io.WriteString(w, resp)
		return true
	}
}

// RawClose answers with resp and then closes the connection, as servers do
// for close-delimited bodies.
func RawClose(resp string) Handler {
	return func(w io.Writer, _ *Request) bool {
		_, _ = io.WriteString(w, resp)
		return false
	}
}

// Sequence answers the n-th request overall with resps[n]; the last entry
// repeats once the list runs out.
func Sequence(resps ...string) Handler {
	var mu sync.Mutex
	n := 0
	return func(w io.Writer, _ *Request) bool {
		mu.Lock()
		i := n
		n++
		mu.Unlock()
		if i >= len(resps) {
			i = len(resps) - 1
		}
		_, _ = io.WriteString(w, resps[i])
		return true
	}
}

// Text builds a 200 response with a Content-Length framed body.
func Text(body string) string {
	return "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: " +
		strconv.Itoa(len(body)) + "\r\n\r\n" + body
}
