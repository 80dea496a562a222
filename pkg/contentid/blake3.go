package contentid

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// NewBlake3HashFn returns the default HashFn: BLAKE3-256 over the input
// bytes, rendered as "b3:<64 lowercase hex>".
func NewBlake3HashFn() HashFn {
	return func(data []byte) ContentId {
		sum := blake3.Sum256(data)
		return ContentId{s: prefix + hex.EncodeToString(sum[:])}
	}
}
