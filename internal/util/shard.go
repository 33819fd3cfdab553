package util

import (
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

// ShardIndex routes an encoded key to one of mask+1 shards.
// mask must be a power of two minus one.
func ShardIndex(key []byte, mask uint64) int {
	return int(xxhash.Sum64(key) & mask)
}

// NextPow2 rounds n up to a power of two; n <= 1 yields 1.
func NextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
