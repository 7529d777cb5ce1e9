package http1

import (
	"errors"
	"strings"
)

var ErrBadContentLength = errors.New("http1: invalid Content-Length")

// BodyKind says how the end of a response body is found.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyFixed
	BodyChunked
	BodyUntilClose
)

func (k BodyKind) String() string {
	switch k {
	case BodyNone:
		return "none"
	case BodyFixed:
		return "fixed"
	case BodyChunked:
		return "chunked"
	case BodyUntilClose:
		return "until-close"
	default:
		return "unknown"
	}
}

// Framing is the body framing decided from a response head.
// Length is meaningful for BodyFixed only; otherwise it is -1 or 0.
type Framing struct {
	Kind   BodyKind
	Length int64
}

// DecideFraming picks the body framing for a response to method with the
// given status and headers. Content-Length wins over Transfer-Encoding;
// with neither, the body runs until the server closes the connection.
func DecideFraming(method string, status int, h map[string][]string) (Framing, error) {
	if method == "HEAD" || (status >= 100 && status < 200) || status == 204 || status == 304 {
		return Framing{Kind: BodyNone}, nil
	}
	if vv, ok := h["Content-Length"]; ok {
		n, err := parseContentLength(vv)
		if err != nil {
			return Framing{}, err
		}
		if n == 0 {
			return Framing{Kind: BodyNone}, nil
		}
		return Framing{Kind: BodyFixed, Length: n}, nil
	}
	if HasToken(h, "Transfer-Encoding", "chunked") {
		return Framing{Kind: BodyChunked, Length: -1}, nil
	}
	return Framing{Kind: BodyUntilClose, Length: -1}, nil
}

// parseContentLength accepts repeated or comma-joined values only when they agree.
func parseContentLength(vv []string) (int64, error) {
	n := int64(-1)
	for _, v := range vv {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			m, ok := parseDecimal(part)
			if !ok {
				return 0, ErrBadContentLength
			}
			if n >= 0 && m != n {
				return 0, ErrBadContentLength
			}
			n = m
		}
	}
	if n < 0 {
		return 0, ErrBadContentLength
	}
	return n, nil
}

func parseDecimal(s string) (int64, bool) {
	if s == "" || len(s) > 18 {
		return 0, false
	}
	var n int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}
