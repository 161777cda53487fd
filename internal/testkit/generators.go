package testkit

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/agenthands/namereg/pkg/core"
)

// RNG provides a deterministic random number generator.
// If seed is 0, it uses the current time.
func RNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// RandomBytes generates a slice of random bytes of the given length.
func RandomBytes(r *rand.Rand, length int) []byte {
	b := make([]byte, length)
	for i := range b {
		b[i] = byte(r.Intn(256))
	}
	return b
}

// RandomDigest returns a random non-zero digest.
func RandomDigest(r *rand.Rand) core.Digest {
	for {
		var d core.Digest
		copy(d[:], RandomBytes(r, core.DigestSize))
		if !d.IsZero() {
			return d
		}
	}
}

// RandomIdentity returns an identity shaped like a Stellar account ID.
func RandomIdentity(r *rand.Rand) core.Identity {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
	b := make([]byte, 55)
	for i := range b {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return core.Identity(fmt.Sprintf("G%s", b))
}
