package journalfile

import (
	"math/bits"

	"github.com/dchest/siphash"
)

// keyedHash is the hash used for hash tables and entry items in files with
// IncompatibleKeyedHash: SipHash-2-4 keyed by the file id.
func keyedHash(data []byte, fileID ID128) uint64 {
	return siphash.Hash(le.Uint64(fileID[0:8]), le.Uint64(fileID[8:16]), data)
}

// jenkins64 is lookup3's hashlittle2 folded into 64 bits. Entry xor_hash
// always uses it, keyed files included.
func jenkins64(data []byte) uint64 {
	c, b := hashlittle2(data)
	return uint64(c)<<32 | uint64(b)
}

type lookup3 struct{ a, b, c uint32 }

func (s *lookup3) mix() {
	s.a -= s.c
	s.a ^= bits.RotateLeft32(s.c, 4)
	s.c += s.b
	s.b -= s.a
	s.b ^= bits.RotateLeft32(s.a, 6)
	s.a += s.c
	s.c -= s.b
	s.c ^= bits.RotateLeft32(s.b, 8)
	s.b += s.a
	s.a -= s.c
	s.a ^= bits.RotateLeft32(s.c, 16)
	s.c += s.b
	s.b -= s.a
	s.b ^= bits.RotateLeft32(s.a, 19)
	s.a += s.c
	s.c -= s.b
	s.c ^= bits.RotateLeft32(s.b, 4)
	s.b += s.a
}

func (s *lookup3) final() {
	s.c ^= s.b
	s.c -= bits.RotateLeft32(s.b, 14)
	s.a ^= s.c
	s.a -= bits.RotateLeft32(s.c, 11)
	s.b ^= s.a
	s.b -= bits.RotateLeft32(s.a, 25)
	s.c ^= s.b
	s.c -= bits.RotateLeft32(s.b, 16)
	s.a ^= s.c
	s.a -= bits.RotateLeft32(s.c, 4)
	s.b ^= s.a
	s.b -= bits.RotateLeft32(s.a, 14)
	s.c ^= s.b
	s.c -= bits.RotateLeft32(s.b, 24)
}

func (s *lookup3) add(block []byte) {
	s.a += le.Uint32(block[0:4])
	s.b += le.Uint32(block[4:8])
	s.c += le.Uint32(block[8:12])
}

// hashlittle2 with both seeds zero. The final partial block is zero padded,
// which is what the byte-wise tail of the reference code amounts to on
// little-endian input.
func hashlittle2(data []byte) (c, b uint32) {
	init := 0xdeadbeef + uint32(len(data))
	s := lookup3{init, init, init}
	for len(data) > 12 {
		s.add(data)
		s.mix()
		data = data[12:]
	}
	if len(data) == 0 {
		return s.c, s.b
	}
	var last [12]byte
	copy(last[:], data)
	s.add(last[:])
	s.final()
	return s.c, s.b
}
