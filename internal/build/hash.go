package build

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ContentHash returns the xxhash of an artifact's bytes.
func ContentHash(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// ETag formats a content hash as a strong HTTP entity tag.
func ETag(hash uint64) string {
	return fmt.Sprintf(`"%016x"`, hash)
}
