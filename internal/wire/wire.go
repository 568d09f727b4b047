// Package wire frames cached payloads so that corrupt or foreign bytes read
// back from a store are detected and treated as a miss instead of being
// handed to the codec.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version byte = 1

	// flagNil marks an entry whose value was nil at store time. The facade
	// needs this to tell a legitimately cached nil apart from a decode of
	// arbitrary bytes.
	flagNil byte = 1 << 0
)

var (
	ErrCorrupt = errors.New("memocache: corrupt entry")
	magic4     = [...]byte{'M', 'E', 'M', 'O'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry: magic(4) | ver(1) | flags(1) | vlen(u32 be) | payload(vlen)
func EncodeEntry(nilValue bool, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var flags byte
	if nilValue {
		flags |= flagNil
	}
	buf.WriteByte(flags)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

func DecodeEntry(b []byte) (nilValue bool, payload []byte, err error) {
	const hdr = 4 + 1 + 1 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return false, nil, ErrCorrupt
	}

	flags := b[5]
	off := 6

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // overflow-safe; reject trailing bytes
		return false, nil, ErrCorrupt
	}

	return flags&flagNil != 0, b[off : off+vlen], nil
}
