package tierkv

import "runtime"

const (
	defaultScanBatch = 256
	shardsPerProc    = 4
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func defaultShards() int {
	return shardsPerProc * runtime.GOMAXPROCS(0)
}

// defaultSize charges an entry for its key and encoded value.
func defaultSize(key, raw []byte) int64 {
	return int64(len(key) + len(raw))
}
