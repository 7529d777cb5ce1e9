package httpx

import (
	"encoding/hex"

	"github.com/google/uuid"
)

func genID() string {
	return uuid.NewString()
}

// randomHex returns 2*n hex digits (n <= 16) taken from a random UUID.
// The UUID version nibble is fixed, but the value is never all zero.
func randomHex(n int) string {
	u := uuid.New()
	return hex.EncodeToString(u[:n])
}
