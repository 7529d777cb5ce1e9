package httpx

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptConn replays a fixed server byte stream and records what the client
// writes. It counts reads so tests can assert that no I/O happened.
type scriptConn struct {
	mu     sync.Mutex
	r      *bytes.Reader
	w      bytes.Buffer
	reads  int
	closed bool
}

func newScriptConn(s string) *scriptConn { return &scriptConn{r: bytes.NewReader([]byte(s))} }

func (c *scriptConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.r.Read(p)
}

func (c *scriptConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.w.Write(p)
}

func (c *scriptConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *scriptConn) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func (c *scriptConn) written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.String()
}

func (c *scriptConn) LocalAddr() net.Addr                { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }
func (c *scriptConn) RemoteAddr() net.Addr               { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 80} }
func (c *scriptConn) SetDeadline(t time.Time) error      { return nil }
func (c *scriptConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *scriptConn) SetWriteDeadline(t time.Time) error { return nil }

type scriptDialer struct {
	conns []*scriptConn
	addrs []string
}

func (d *scriptDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d.addrs = append(d.addrs, addr)
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func scripted(t *testing.T, server string) (*Client, *scriptConn, *scriptDialer) {
	t.Helper()
	sc := newScriptConn(server)
	d := &scriptDialer{conns: []*scriptConn{sc}}
	return newTestClient(t, Config{}, WithDialer(d)), sc, d
}

func TestResponse_EOFNeedsNoIO(t *testing.T) {
	tests := []struct {
		name   string
		server string
		body   string
	}{
		{"fixed", "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello", "hello"},
		{"chunked", "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n", "Wikipedia"},
		{"none", "HTTP/1.1 204 No Content\r\n\r\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sc, _ := scripted(t, tt.server)
			res, err := c.Get(context.Background(), "http://example.com/")
			require.NoError(t, err)
			b, err := res.ReadAll(0)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(b))

			before := sc.readCount()
			for i := 0; i < 5; i++ {
				n, err := res.Read(make([]byte, 32))
				assert.Equal(t, 0, n)
				assert.Equal(t, io.EOF, err)
			}
			assert.Equal(t, before, sc.readCount())
			require.NoError(t, c.Release(res))
		})
	}
}

func TestResponse_RequestWireFormat(t *testing.T) {
	c, sc, d := scripted(t, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")

	req, err := NewRequest(context.Background(), "GET", "http://Example.COM/a?b=1", nil)
	require.NoError(t, err)
	req.RequestID = "rid-1"
	req.Header.Set("Accept", "*/*")
	res, err := c.Do(req)
	require.NoError(t, err)
	require.NoError(t, c.Release(res))

	want := "GET /a?b=1 HTTP/1.1\r\n" +
		"Accept: */*\r\n" +
		"Host: Example.COM\r\n" +
		"User-Agent: minihttp/1\r\n" +
		"X-Request-Id: rid-1\r\n" +
		"\r\n"
	assert.Equal(t, want, sc.written())
	assert.Equal(t, []string{"example.com:80"}, d.addrs)
}

func TestResponse_ChunkedRequestWire(t *testing.T) {
	c, sc, _ := scripted(t, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")

	req, err := NewRequest(context.Background(), "PUT", "http://example.com/up", io.MultiReader(strings.NewReader("abc")))
	require.NoError(t, err)
	assert.Equal(t, int64(-1), req.ContentLength)
	req.RequestID = "rid-2"
	res, err := c.Do(req)
	require.NoError(t, err)
	require.NoError(t, c.Release(res))

	wire := sc.written()
	head, body, ok := strings.Cut(wire, "\r\n\r\n")
	require.True(t, ok)
	assert.Contains(t, head, "\r\nTransfer-Encoding: chunked")
	assert.NotContains(t, head, "Content-Length")
	assert.Equal(t, "3\r\nabc\r\n0\r\n\r\n", body)
}

func TestResponse_HTTPSWithCustomDialer(t *testing.T) {
	c, _, d := scripted(t, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")
	res, err := c.Get(context.Background(), "https://bücher.example/")
	require.NoError(t, err)
	b, err := res.ReadAll(0)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(b))
	require.NoError(t, c.Release(res))
	assert.Equal(t, []string{"xn--bcher-kva.example:443"}, d.addrs)
}

func TestResponse_WriteFailureClosesConnection(t *testing.T) {
	c, sc, _ := scripted(t, "")
	_ = sc.Close()
	_, err := c.Get(context.Background(), "http://example.com/")
	assert.ErrorIs(t, err, ErrIO)
	assert.Equal(t, 0, c.Pool().Stats().Open)
}

func TestResponse_EmptyReplyIsIOError(t *testing.T) {
	c, _, _ := scripted(t, "")
	_, err := c.Get(context.Background(), "http://example.com/")
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, io.EOF)
}

func TestResponse_HeaderTooLarge(t *testing.T) {
	big := "HTTP/1.1 200 OK\r\n" + strings.Repeat("X-Pad: "+strings.Repeat("a", 1000)+"\r\n", 40) + "\r\n"
	c, _, _ := scripted(t, big)
	_, err := c.Get(context.Background(), "http://example.com/")
	assert.ErrorIs(t, err, ErrProtocol)
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestResponse_StatusCodeRange(t *testing.T) {
	c, _, _ := scripted(t, "HTTP/1.1 600 Nope\r\n\r\n")
	_, err := c.Get(context.Background(), "http://example.com/")
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestBodyModeString(t *testing.T) {
	assert.Equal(t, "chunked", BodyChunked.String())
	assert.Equal(t, "none", BodyNone.String())
}
