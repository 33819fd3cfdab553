// Package wire frames values kept in a read cache.
//
// A frame carries the generation observed when the value was read from the
// backend plus a checksum of the payload, so a reader can reject both stale
// and damaged entries coming from a shared cache.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"
)

const (
	version byte = 1
	hdrLen       = 4 + 1 + 8 + 8 + 4
)

var (
	ErrCorrupt = errors.New("tierkv: corrupt cache frame")
	magic4     = [...]byte{'T', 'K', 'V', 'C'}
)

// Encode: magic(4) | ver(1) | gen(u64 be) | sum(u64 be, xxhash of payload) | vlen(u32 be) | payload(vlen)
func Encode(gen uint64, payload []byte) []byte {
	buf := make([]byte, 0, hdrLen+len(payload))
	buf = append(buf, magic4[:]...)
	buf = append(buf, version)
	buf = binary.BigEndian.AppendUint64(buf, gen)
	buf = binary.BigEndian.AppendUint64(buf, xxhash.Sum64(payload))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	return append(buf, payload...)
}

// Decode returns the generation and a payload slice aliasing b.
func Decode(b []byte) (gen uint64, payload []byte, err error) {
	if len(b) < hdrLen || !bytes.Equal(b[:4], magic4[:]) || b[4] != version {
		return 0, nil, ErrCorrupt
	}
	off := 5
	gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	sum := binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off { // trailing or missing bytes
		return 0, nil, ErrCorrupt
	}
	payload = b[off:]
	if xxhash.Sum64(payload) != sum {
		return 0, nil, ErrCorrupt
	}
	return gen, payload, nil
}
