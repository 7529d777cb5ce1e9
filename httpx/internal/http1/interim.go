package http1

// IsInterim reports whether code is a 1xx informational status that precedes
// the final response. 101 Switching Protocols is final for a client.
func IsInterim(code int) bool {
	return code >= 100 && code < 200 && code != 101
}
