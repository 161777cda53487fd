package core

import (
	"encoding/hex"
)

// DigestSize is the length in bytes of every node key and label hash.
const DigestSize = 32

// Digest is a fixed-size SHA2-256 output used as node key and label hash.
type Digest [DigestSize]byte

// ZeroDigest is the root key and the "no parent" sentinel.
var ZeroDigest Digest

// IsZero reports whether d is the root sentinel.
func (d Digest) IsZero() bool { return d == ZeroDigest }

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// DigestFromBytes copies b into a Digest. Empty or wrongly sized input is
// rejected with ErrInvalidHashInput.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestSize {
		return d, ErrInvalidHashInput
	}
	copy(d[:], b)
	return d, nil
}

// Identity is the opaque principal supplied by the calling environment.
type Identity string

// Target is an optional identity a node resolves to.
type Target struct {
	id  Identity
	set bool
}

// NoTarget is the target of a node that resolves to nothing.
var NoTarget = Target{}

// TargetOf returns a Target resolving to id. An empty id yields NoTarget.
func TargetOf(id Identity) Target {
	if id == "" {
		return NoTarget
	}
	return Target{id: id, set: true}
}

// Get returns the target identity and whether one is assigned.
func (t Target) Get() (Identity, bool) { return t.id, t.set }

// IsSet reports whether a target identity is assigned.
func (t Target) IsSet() bool { return t.set }

func (t Target) String() string {
	if !t.set {
		return "<none>"
	}
	return string(t.id)
}

// Node is a single registry entry.
type Node struct {
	Owner  Identity
	Parent Digest
	Target Target
	Depth  uint16 // 0 for root
}

// IsRoot reports whether n is shaped like the root node.
func (n Node) IsRoot() bool { return n.Depth == 0 && n.Parent.IsZero() }
