package workflow

import (
	"encoding/binary"
	"math/rand/v2"

	"golang.org/x/crypto/blake2b"
)

// replicateSeed derives the PCG state of one replicate from the protocol
// seed and the replicate's coordinates. Streams depend only on (seed, point,
// replicate), never on which slot runs them.
func replicateSeed(seed uint64, point, replicate int) (uint64, uint64) {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], seed)
	binary.LittleEndian.PutUint64(buf[8:], uint64(point))
	binary.LittleEndian.PutUint64(buf[16:], uint64(replicate))
	sum := blake2b.Sum256(buf[:])
	return binary.LittleEndian.Uint64(sum[0:8]), binary.LittleEndian.Uint64(sum[8:16])
}

// replicateRand returns the random stream of one replicate.
func replicateRand(seed uint64, point, replicate int) *rand.Rand {
	a, b := replicateSeed(seed, point, replicate)
	return rand.New(rand.NewPCG(a, b))
}

// SeedFromDigest folds the first eight bytes of a protocol digest into a
// seed, for protocols that do not set one.
func SeedFromDigest(digest []byte) uint64 {
	if len(digest) < 8 {
		var pad [8]byte
		copy(pad[:], digest)
		return binary.LittleEndian.Uint64(pad[:])
	}
	return binary.LittleEndian.Uint64(digest[:8])
}
