package http1

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"
)

func readHead(t *testing.T, raw string, maxLine, maxTotal int) (*ResponseHead, error) {
	t.Helper()
	r := &Reader{BR: bufio.NewReader(strings.NewReader(raw)), MaxLineBytes: maxLine, MaxHeaderBytes: maxTotal}
	return r.ReadResponseHead()
}

func TestReader_StatusAndHeaders(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\nx-multi: a\r\nX-Multi: b\r\n\r\nhello"
	h, err := readHead(t, raw, 0, 0)
	if err != nil {
		t.Fatalf("ReadResponseHead error: %v", err)
	}
	if h.StatusCode != 200 || h.Reason != "OK" || h.Proto != "HTTP/1.1" || h.ProtoMinor != 1 {
		t.Fatalf("head=%+v", h)
	}
	if got := GetHeader(h.Header, "content-length"); got != "5" {
		t.Fatalf("Content-Length=%q", got)
	}
	if got := h.Header["X-Multi"]; len(got) != 2 || got[1] != "b" {
		t.Fatalf("X-Multi=%v", got)
	}
}

func TestReader_SkipsInterim(t *testing.T) {
	raw := "HTTP/1.1 100 Continue\r\n\r\nHTTP/1.1 102 Processing\r\n\r\nHTTP/1.1 201 Created\r\nA: b\r\n\r\n"
	h, err := readHead(t, raw, 0, 0)
	if err != nil {
		t.Fatalf("ReadResponseHead error: %v", err)
	}
	if h.StatusCode != 201 {
		t.Fatalf("status=%d", h.StatusCode)
	}
}

func TestParseStatusLine(t *testing.T) {
	cases := []struct {
		line string
		ok   bool
		code int
	}{
		{"HTTP/1.1 200 OK", true, 200},
		{"HTTP/1.0 404 Not Found", true, 404},
		{"HTTP/1.1 204", true, 204},
		{"HTTP/1.1 500 Internal Server Error", true, 500},
		{"GARBAGE", false, 0},
		{"HTTP/2 200 OK", false, 0},
		{"HTTP/1.1 2000 OK", false, 0},
		{"HTTP/1.1 099 Low", false, 0},
		{"HTTP/1.1 600 High", false, 0},
		{"HTTP/1.1 2x0 OK", false, 0},
		{"FTP/1.1 200 OK", false, 0},
	}
	for _, c := range cases {
		h, err := ParseStatusLine(c.line)
		if c.ok {
			if err != nil || h.StatusCode != c.code {
				t.Fatalf("%q: head=%+v err=%v", c.line, h, err)
			}
			continue
		}
		if !errors.Is(err, ErrMalformedStatus) {
			t.Fatalf("%q: err=%v, want ErrMalformedStatus", c.line, err)
		}
	}
}

func TestReader_InvalidHeaderName(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nBad( : v\r\n\r\n"
	if _, err := readHead(t, raw, 0, 0); !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("err=%v, want ErrMalformedHeader", err)
	}
}

func TestReader_HeaderWithoutColon(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nnocolon\r\n\r\n"
	if _, err := readHead(t, raw, 0, 0); !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("err=%v, want ErrMalformedHeader", err)
	}
}

func TestReader_MaxHeaderBytes(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nA: b\r\nC: d\r\nE: f\r\n\r\n"
	if _, err := readHead(t, raw, 0, 10); !errors.Is(err, ErrHeaderTooLarge) {
		t.Fatalf("err=%v, want ErrHeaderTooLarge", err)
	}
}

func TestReader_LineTooLong(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nX-Long: " + strings.Repeat("a", 64) + "\r\n\r\n"
	if _, err := readHead(t, raw, 32, 0); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("err=%v, want ErrLineTooLong", err)
	}
}

func TestReader_TruncatedHead(t *testing.T) {
	if _, err := readHead(t, "HTTP/1.1 200 OK\r\nA: b\r\n", 0, 0); err != io.ErrUnexpectedEOF {
		t.Fatalf("err=%v, want io.ErrUnexpectedEOF", err)
	}
	if _, err := readHead(t, "", 0, 0); err != io.EOF {
		t.Fatalf("err=%v, want io.EOF", err)
	}
}

func TestReadLine_BareLF(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("abc\ndef\r\n"))
	a, _ := ReadLine(br, 0)
	b, _ := ReadLine(br, 0)
	if a != "abc" || b != "def" {
		t.Fatalf("lines=%q,%q", a, b)
	}
}

func TestDecideFraming(t *testing.T) {
	cases := []struct {
		name   string
		method string
		status int
		hdr    map[string][]string
		want   Framing
		err    error
	}{
		{"head", "HEAD", 200, map[string][]string{"Content-Length": {"10"}}, Framing{Kind: BodyNone}, nil},
		{"204", "GET", 204, nil, Framing{Kind: BodyNone}, nil},
		{"304", "GET", 304, map[string][]string{"Transfer-Encoding": {"chunked"}}, Framing{Kind: BodyNone}, nil},
		{"fixed", "GET", 200, map[string][]string{"Content-Length": {"5"}}, Framing{Kind: BodyFixed, Length: 5}, nil},
		{"zero", "GET", 200, map[string][]string{"Content-Length": {"0"}}, Framing{Kind: BodyNone}, nil},
		{"cl wins", "GET", 200, map[string][]string{"Content-Length": {"3"}, "Transfer-Encoding": {"chunked"}}, Framing{Kind: BodyFixed, Length: 3}, nil},
		{"chunked", "GET", 200, map[string][]string{"Transfer-Encoding": {"gzip, chunked"}}, Framing{Kind: BodyChunked, Length: -1}, nil},
		{"until close", "GET", 200, map[string][]string{}, Framing{Kind: BodyUntilClose, Length: -1}, nil},
		{"dup agree", "GET", 200, map[string][]string{"Content-Length": {"5, 5"}}, Framing{Kind: BodyFixed, Length: 5}, nil},
		{"dup mismatch", "GET", 200, map[string][]string{"Content-Length": {"5", "6"}}, Framing{}, ErrBadContentLength},
		{"negative", "GET", 200, map[string][]string{"Content-Length": {"-1"}}, Framing{}, ErrBadContentLength},
		{"junk", "GET", 200, map[string][]string{"Content-Length": {"abc"}}, Framing{}, ErrBadContentLength},
	}
	for _, c := range cases {
		got, err := DecideFraming(c.method, c.status, c.hdr)
		if c.err != nil {
			if !errors.Is(err, c.err) {
				t.Fatalf("%s: err=%v, want %v", c.name, err, c.err)
			}
			continue
		}
		if err != nil || got != c.want {
			t.Fatalf("%s: got=%+v err=%v, want %+v", c.name, got, err, c.want)
		}
	}
}

func TestCanonicalHeaderKey(t *testing.T) {
	for in, want := range map[string]string{
		"content-length":    "Content-Length",
		"X-REQUEST-ID":      "X-Request-Id",
		"transfer-encoding": "Transfer-Encoding",
		"www-authenticate":  "Www-Authenticate",
	} {
		if got := CanonicalHeaderKey(in); got != want {
			t.Fatalf("CanonicalHeaderKey(%q) = %q, want %q", in, got, want)
		}
	}
	h := map[string][]string{}
	addHeader(h, "x-trace", "a")
	addHeader(h, "X-TRACE", "b")
	if got := h["X-Trace"]; len(got) != 2 {
		t.Fatalf("values = %q, want two under X-Trace", got)
	}
}
