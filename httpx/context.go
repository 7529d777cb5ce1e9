package httpx

import "context"

// idsKey indexes the identifiers Client.Do stamps onto outgoing requests.
type idsKey struct{}

type requestIDs struct {
	request     string
	correlation string
}

func idsFrom(ctx context.Context) requestIDs {
	if ctx == nil {
		return requestIDs{}
	}
	ids, _ := ctx.Value(idsKey{}).(requestIDs)
	return ids
}

// WithRequestID returns a context whose requests are sent with
// X-Request-Id: id, unless the request sets its own.
func WithRequestID(ctx context.Context, id string) context.Context {
	ids := idsFrom(ctx)
	ids.request = id
	return context.WithValue(ctx, idsKey{}, ids)
}

// RequestIDFrom returns the request ID carried by ctx.
func RequestIDFrom(ctx context.Context) (string, bool) {
	id := idsFrom(ctx).request
	return id, id != ""
}

// WithCorrelationID returns a context whose requests carry
// X-Correlation-Id: id. Unlike the request ID it is never generated.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	ids := idsFrom(ctx)
	ids.correlation = id
	return context.WithValue(ctx, idsKey{}, ids)
}

func CorrelationIDFrom(ctx context.Context) (string, bool) {
	id := idsFrom(ctx).correlation
	return id, id != ""
}
