package httpx

import (
	"errors"
	"fmt"

	"dqx0.com/go/minihttp/httpx/internal/http1"
)

// Kind classifies failures by what the caller can do about them.
type Kind int

const (
	// KindConnect: dialing the target failed.
	KindConnect Kind = iota + 1
	// KindIO: a read or write on an established connection failed.
	KindIO
	// KindProtocol: the peer sent bytes that violate HTTP/1.1 framing.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindIO:
		return "io"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Kind sentinels; errors.Is(err, ErrProtocol) matches any *Error of that kind.
var (
	ErrConnect  = &Error{Kind: KindConnect}
	ErrIO       = &Error{Kind: KindIO}
	ErrProtocol = &Error{Kind: KindProtocol}
)

var (
	ErrBodyTooLarge   = errors.New("httpx: body too large")
	ErrHeaderTooLarge = http1.ErrHeaderTooLarge
	ErrReleased       = errors.New("httpx: response already released")
	ErrPoolClosed     = errors.New("httpx: connection pool closed")
	ErrUnsupportedURL = errors.New("httpx: unsupported URL")
	ErrInvalidRequest = errors.New("httpx: invalid request")
)

// Error is returned by every client operation that touches the network.
type Error struct {
	Kind Kind
	Op   string // e.g. "dial", "write request", "read status line"
	Addr string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "httpx: " + e.Kind.String() + " error"
	}
	if e.Addr != "" {
		return fmt.Sprintf("httpx: %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("httpx: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels, so callers can test the class without a type switch.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

func connectError(addr string, err error) error {
	return &Error{Kind: KindConnect, Op: "dial", Addr: addr, Err: err}
}

func ioError(op string, err error) error {
	return &Error{Kind: KindIO, Op: op, Err: err}
}

func protocolError(op string, err error) error {
	return &Error{Kind: KindProtocol, Op: op, Err: err}
}

// classify wraps a wire-level failure as protocol or io depending on origin.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if isProtocolViolation(err) {
		return protocolError(op, err)
	}
	return ioError(op, err)
}

func isProtocolViolation(err error) bool {
	for _, target := range []error{
		http1.ErrChunkFormat,
		http1.ErrChunkTooLarge,
		http1.ErrLineTooLong,
		http1.ErrHeaderTooLarge,
		http1.ErrMalformedStatus,
		http1.ErrMalformedHeader,
		http1.ErrBadContentLength,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
