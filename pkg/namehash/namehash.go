// Package namehash derives registry keys. A child key is the SHA2-256 of the
// leaf label digest followed by the parent key, so every name maps to a
// single path in an append-only hash tree rooted at the zero digest.
package namehash

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/agenthands/namereg/pkg/core"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Deriver defines the interface for computing and checking node keys.
type Deriver interface {
	Derive(parent, leaf core.Digest) core.Digest
	LabelHash(label string) core.Digest
	Verify(key, parent, leaf core.Digest) error
}

type deriver struct{}

// NewDeriver returns the SHA2-256 Deriver.
func NewDeriver() Deriver {
	return &deriver{}
}

// Derive is order sensitive: swapping leaf and parent changes every key.
func (d *deriver) Derive(parent, leaf core.Digest) core.Digest {
	buf := make([]byte, 0, 2*core.DigestSize)
	buf = append(buf, leaf[:]...)
	buf = append(buf, parent[:]...)
	return sum(buf)
}

func (d *deriver) LabelHash(label string) core.Digest {
	return sum([]byte(label))
}

func (d *deriver) Verify(key, parent, leaf core.Digest) error {
	if got := d.Derive(parent, leaf); got != key {
		return fmt.Errorf("%w: key %s does not derive from parent %s", core.ErrCorrupt, key, parent)
	}
	return nil
}

func sum(data []byte) core.Digest {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		panic(fmt.Sprintf("namehash: sha2-256 multihash failed: %v", err))
	}
	dec, err := multihash.Decode(mh)
	if err != nil {
		panic(fmt.Sprintf("namehash: decode own multihash: %v", err))
	}
	var out core.Digest
	copy(out[:], dec.Digest)
	return out
}

var std = NewDeriver()

// Derive computes the child key of leaf under parent.
func Derive(parent, leaf core.Digest) core.Digest { return std.Derive(parent, leaf) }

// LabelHash hashes a single label such as "com".
func LabelHash(label string) core.Digest { return std.LabelHash(label) }

// Namehash folds a dotted name right to left from the root, so
// Namehash("mail.example.com") == Derive(Derive(Derive(0, H("com")), H("example")), H("mail")).
// The empty name is the root.
func Namehash(name string) (core.Digest, error) {
	key := core.ZeroDigest
	if name == "" {
		return key, nil
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		if labels[i] == "" {
			return core.Digest{}, fmt.Errorf("%w: empty label in %q", core.ErrInvalidInput, name)
		}
		key = std.Derive(key, std.LabelHash(labels[i]))
	}
	return key, nil
}

// CID renders d as a CIDv1 string (raw codec, sha2-256 multihash).
func CID(d core.Digest) string {
	mh, err := multihash.Encode(d[:], multihash.SHA2_256)
	if err != nil {
		panic(fmt.Sprintf("namehash: encode multihash: %v", err))
	}
	return cid.NewCidV1(cid.Raw, mh).String()
}

// ParseDigest accepts a 64-character hex string or a CID carrying a 32-byte
// sha2-256 multihash.
func ParseDigest(s string) (core.Digest, error) {
	if s == "" {
		return core.Digest{}, core.ErrInvalidHashInput
	}

	if len(s) == 2*core.DigestSize {
		if b, err := hex.DecodeString(s); err == nil {
			return core.DigestFromBytes(b)
		}
	}

	c, err := cid.Decode(s)
	if err != nil {
		return core.Digest{}, fmt.Errorf("%w: %v", core.ErrInvalidHashInput, err)
	}
	dec, err := multihash.Decode(c.Hash())
	if err != nil {
		return core.Digest{}, fmt.Errorf("%w: %v", core.ErrInvalidHashInput, err)
	}
	if dec.Code != multihash.SHA2_256 || dec.Length != core.DigestSize {
		return core.Digest{}, fmt.Errorf("%w: unsupported multihash %s/%d", core.ErrInvalidHashInput, dec.Name, dec.Length)
	}
	return core.DigestFromBytes(dec.Digest)
}
