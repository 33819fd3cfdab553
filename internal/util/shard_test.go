package util

import "testing"

func TestNextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{-3, 1}, {0, 1}, {1, 1}, {2, 2}, {3, 4}, {8, 8}, {9, 16}, {1000, 1024},
	}
	for _, c := range cases {
		if got := NextPow2(c.in); got != c.want {
			t.Fatalf("NextPow2(%d)=%d want %d", c.in, got, c.want)
		}
	}
}

func TestShardIndexStableAndBounded(t *testing.T) {
	const mask = 15
	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		k := []byte{byte(i), byte(i >> 8)}
		a, b := ShardIndex(k, mask), ShardIndex(k, mask)
		if a != b {
			t.Fatalf("unstable index for %x", k)
		}
		if a < 0 || a > mask {
			t.Fatalf("index %d out of range", a)
		}
		seen[a] = true
	}
	if len(seen) < 8 {
		t.Fatalf("poor spread: %d shards used", len(seen))
	}
}
