package httpx

import (
	"context"
	"strings"
)

func genTraceID() string { return randomHex(16) }

func genSpanID() string { return randomHex(8) }

func formatTraceparent(traceID, spanID, flags string) string {
	if flags == "" {
		flags = "01"
	}
	return "00-" + strings.ToLower(traceID) + "-" + strings.ToLower(spanID) + "-" + strings.ToLower(flags)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			continue
		}
		return false
	}
	return true
}

// Trace carries minimal W3C trace context for propagation.
// TraceID is 32-hex, SpanID is 16-hex. Flags are 2-hex (e.g. "01").
type Trace struct {
	TraceID string
	SpanID  string
	Flags   string
}

type traceKeyType struct{}

var traceKey traceKeyType

// WithTrace stores trace context in ctx.
func WithTrace(ctx context.Context, tr Trace) context.Context {
	return context.WithValue(ctx, traceKey, tr)
}

// TraceFrom extracts trace context from ctx.
func TraceFrom(ctx context.Context) (Trace, bool) {
	if v := ctx.Value(traceKey); v != nil {
		if tr, ok := v.(Trace); ok {
			return tr, true
		}
	}
	return Trace{}, false
}

// NewTrace starts a fresh trace with random ids.
func NewTrace() Trace {
	return Trace{TraceID: genTraceID(), SpanID: genSpanID(), Flags: "01"}
}

// traceparentFor builds the outgoing traceparent for a request carrying tr:
// same trace, new child span. Invalid trace ids yield "".
func traceparentFor(tr Trace) string {
	if len(tr.TraceID) != 32 || !isHex(tr.TraceID) || tr.TraceID == strings.Repeat("0", 32) {
		return ""
	}
	flags := tr.Flags
	if len(flags) != 2 || !isHex(flags) {
		flags = "01"
	}
	return formatTraceparent(tr.TraceID, genSpanID(), flags)
}
