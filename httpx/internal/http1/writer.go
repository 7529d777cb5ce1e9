package http1

import (
	"bufio"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/net/http/httpguts"
)

var (
	ErrInvalidMethod      = errors.New("http1: invalid request method")
	ErrInvalidTarget      = errors.New("http1: invalid request target")
	ErrInvalidHeaderName  = errors.New("http1: invalid header field name")
	ErrInvalidHeaderValue = errors.New("http1: invalid header field value")
)

// ValidateRequestHead checks everything WriteRequestHead would put on the
// wire, so callers can reject a request before touching the connection.
func ValidateRequestHead(method, target string, hdr map[string][]string) error {
	if method == "" || !httpguts.ValidHeaderFieldName(method) {
		return ErrInvalidMethod
	}
	if target == "" {
		return ErrInvalidTarget
	}
	for i := 0; i < len(target); i++ {
		if c := target[i]; c <= ' ' || c == 0x7f {
			return ErrInvalidTarget
		}
	}
	for k, vv := range hdr {
		if !httpguts.ValidHeaderFieldName(k) {
			return fmt.Errorf("%w: %q", ErrInvalidHeaderName, k)
		}
		for _, v := range vv {
			if !httpguts.ValidHeaderFieldValue(v) {
				return fmt.Errorf("%w for %s", ErrInvalidHeaderValue, k)
			}
		}
	}
	return nil
}

// WriteRequestHead writes the request line, the header fields in sorted key
// order and the terminating blank line. It does not flush.
func WriteRequestHead(bw *bufio.Writer, method, target string, hdr map[string][]string) error {
	if _, err := fmt.Fprintf(bw, "%s %s HTTP/1.1\r\n", method, target); err != nil {
		return err
	}
	keys := make([]string, 0, len(hdr))
	for k := range hdr {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range hdr[k] {
			if _, err := fmt.Fprintf(bw, "%s: %s\r\n", k, v); err != nil {
				return err
			}
		}
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}
	return nil
}

// WriteChunk writes one HTTP/1.1 chunk for chunked transfer encoding.
// An empty p writes nothing, since a zero-size chunk ends the body.
func WriteChunk(bw *bufio.Writer, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(bw, "%x\r\n", len(p)); err != nil {
		return 0, err
	}
	if _, err := bw.Write(p); err != nil {
		return 0, err
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return 0, err
	}
	return len(p), nil
}

// EndChunked writes the terminating zero-length chunk with no trailers.
func EndChunked(bw *bufio.Writer) error {
	_, err := bw.WriteString("0\r\n\r\n")
	return err
}
