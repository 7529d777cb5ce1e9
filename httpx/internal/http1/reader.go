package http1

import (
	"bufio"
	"errors"
	"io"
	"net/textproto"
	"strings"

	"golang.org/x/net/http/httpguts"
)

var (
	ErrLineTooLong     = errors.New("http1: line too long")
	ErrHeaderTooLarge  = errors.New("http1: header block too large")
	ErrMalformedStatus = errors.New("http1: malformed status line")
	ErrMalformedHeader = errors.New("http1: malformed header line")
)

const (
	DefaultMaxLineBytes   = 8 << 10
	DefaultMaxHeaderBytes = 32 << 10

	// maxInterim bounds how many 1xx responses are skipped before giving up.
	maxInterim = 8
)

// ResponseHead is a parsed status line plus header block.
type ResponseHead struct {
	Proto      string
	ProtoMajor int
	ProtoMinor int
	StatusCode int
	Reason     string
	Header     map[string][]string
}

// Reader parses response heads from a buffered connection.
type Reader struct {
	BR             *bufio.Reader
	MaxLineBytes   int
	MaxHeaderBytes int
}

// ReadResponseHead reads the final (non-interim) response head.
func (r *Reader) ReadResponseHead() (*ResponseHead, error) {
	for i := 0; ; i++ {
		head, err := r.readHead()
		if err != nil {
			return nil, err
		}
		if !IsInterim(head.StatusCode) {
			return head, nil
		}
		if i >= maxInterim {
			return nil, ErrMalformedStatus
		}
	}
}

func (r *Reader) readHead() (*ResponseHead, error) {
	line, err := ReadLine(r.BR, r.lineLimit())
	if err != nil {
		return nil, err
	}
	head, err := ParseStatusLine(line)
	if err != nil {
		return nil, err
	}
	hdr, err := r.readHeaders()
	if err != nil {
		return nil, err
	}
	head.Header = hdr
	return head, nil
}

// RequestHead is a parsed request line plus header block.
type RequestHead struct {
	Method string
	Target string
	Proto  string
	Header map[string][]string
}

// ReadRequestHead reads a request head. Clients never need this; it backs
// loopback test servers that speak the same wire format.
func (r *Reader) ReadRequestHead() (*RequestHead, error) {
	line, err := ReadLine(r.BR, r.lineLimit())
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "HTTP/1.") {
		return nil, ErrMalformedStatus
	}
	hdr, err := r.readHeaders()
	if err != nil {
		return nil, err
	}
	return &RequestHead{Method: parts[0], Target: parts[1], Proto: parts[2], Header: hdr}, nil
}

// ParseStatusLine parses "HTTP/1.x SP 3DIGIT [SP reason]".
func ParseStatusLine(line string) (*ResponseHead, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return nil, ErrMalformedStatus
	}
	proto := parts[0]
	if len(proto) != len("HTTP/1.1") || !strings.HasPrefix(proto, "HTTP/1.") {
		return nil, ErrMalformedStatus
	}
	minor := proto[len(proto)-1]
	if minor < '0' || minor > '9' {
		return nil, ErrMalformedStatus
	}
	code := parts[1]
	if len(code) != 3 {
		return nil, ErrMalformedStatus
	}
	n := 0
	for i := 0; i < 3; i++ {
		c := code[i]
		if c < '0' || c > '9' {
			return nil, ErrMalformedStatus
		}
		n = n*10 + int(c-'0')
	}
	if n < 100 || n > 599 {
		return nil, ErrMalformedStatus
	}
	head := &ResponseHead{
		Proto:      proto,
		ProtoMajor: 1,
		ProtoMinor: int(minor - '0'),
		StatusCode: n,
	}
	if len(parts) == 3 {
		head.Reason = parts[2]
	}
	return head, nil
}

func (r *Reader) readHeaders() (map[string][]string, error) {
	h := make(map[string][]string)
	total := 0
	limit := r.MaxHeaderBytes
	if limit <= 0 {
		limit = DefaultMaxHeaderBytes
	}
	for {
		line, err := ReadLine(r.BR, r.lineLimit())
		if err != nil {
			return nil, eofIsUnexpected(err)
		}
		if line == "" {
			break
		}
		total += len(line) + 2
		if total > limit {
			return nil, ErrHeaderTooLarge
		}
		k, v, err := parseFieldLine(line)
		if err != nil {
			return nil, err
		}
		addHeader(h, k, v)
	}
	return h, nil
}

func (r *Reader) lineLimit() int {
	if r.MaxLineBytes > 0 {
		return r.MaxLineBytes
	}
	return DefaultMaxLineBytes
}

func parseFieldLine(line string) (string, string, error) {
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return "", "", ErrMalformedHeader
	}
	k := line[:i]
	if !httpguts.ValidHeaderFieldName(k) {
		return "", "", ErrMalformedHeader
	}
	v := strings.Trim(line[i+1:], " \t")
	if !httpguts.ValidHeaderFieldValue(v) {
		return "", "", ErrMalformedHeader
	}
	return k, v, nil
}

// ReadLine reads one line terminated by LF, dropping a CR right before it.
// A clean EOF before any byte yields io.EOF; EOF mid-line yields
// io.ErrUnexpectedEOF.
func ReadLine(br io.ByteReader, limit int) (string, error) {
	var sb strings.Builder
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && sb.Len() > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		if b == '\n' {
			break
		}
		sb.WriteByte(b)
		if limit > 0 && sb.Len() > limit+1 {
			return "", ErrLineTooLong
		}
	}
	s := sb.String()
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	if limit > 0 && len(s) > limit {
		return "", ErrLineTooLong
	}
	return s, nil
}

func addHeader(h map[string][]string, k, v string) {
	hk := CanonicalHeaderKey(k)
	h[hk] = append(h[hk], v)
}

// GetHeader returns the first value for k.
func GetHeader(h map[string][]string, k string) string {
	if vv, ok := h[CanonicalHeaderKey(k)]; ok && len(vv) > 0 {
		return vv[0]
	}
	return ""
}

// HasToken reports whether any comma-separated value of header k contains token.
func HasToken(h map[string][]string, k, token string) bool {
	return httpguts.HeaderValuesContainsToken(h[CanonicalHeaderKey(k)], token)
}

// CanonicalHeaderKey returns the canonical form of a field name. Every
// header map in this module is keyed through it.
func CanonicalHeaderKey(s string) string { return textproto.CanonicalMIMEHeaderKey(s) }
