package httpx

import "dqx0.com/go/minihttp/httpx/internal/http1"

// Header maps canonical field names to values. Each key appears once;
// repeated fields are kept as multiple values under that key. Requests are
// written with their fields in sorted key order.
type Header map[string][]string

func canon(key string) string { return http1.CanonicalHeaderKey(key) }

// Get returns the first value of key, or "".
func (h Header) Get(key string) string {
	if vv := h[canon(key)]; len(vv) > 0 {
		return vv[0]
	}
	return ""
}

// Values returns every value of key in arrival order. The slice is shared
// with h.
func (h Header) Values(key string) []string { return h[canon(key)] }

// Set replaces the values of key. Setting on a nil Header is a no-op.
func (h Header) Set(key, value string) {
	if h != nil {
		h[canon(key)] = []string{value}
	}
}

func (h Header) Add(key, value string) {
	if h != nil {
		k := canon(key)
		h[k] = append(h[k], value)
	}
}

func (h Header) Del(key string) { delete(h, canon(key)) }

// Clone returns a deep copy with keys canonicalized, merging keys that
// differ only in case.
func (h Header) Clone() Header {
	out := make(Header, len(h))
	for k, vv := range h {
		ck := canon(k)
		out[ck] = append(out[ck], vv...)
	}
	return out
}
