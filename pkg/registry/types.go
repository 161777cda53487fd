// Package registry is the public API of the name registry: a hash tree of
// nodes keyed by 32-byte digests, each owned by an identity and optionally
// resolving to a target identity.
package registry

import (
	"context"

	"github.com/agenthands/namereg/pkg/core"
)

// DigestSize is the length of every key and label hash.
const DigestSize = core.DigestSize

type Digest = core.Digest
type Identity = core.Identity
type Target = core.Target
type Node = core.Node
type Code = core.Code

var (
	ZeroDigest = core.ZeroDigest
	NoTarget   = core.NoTarget
)

// TargetOf returns a Target resolving to id.
func TargetOf(id Identity) Target { return core.TargetOf(id) }

// CodeOf maps an error returned by a Registry to its stable code.
func CodeOf(err error) Code { return core.CodeOf(err) }

// Registry is the primary interface of the name registry.
type Registry interface {
	// Init creates the root node owned by caller. It runs once; later calls
	// fail with ErrAlreadyInitialized and change nothing.
	Init(ctx context.Context, caller Identity) error

	// Resolve returns the target of the node stored under key, the raw
	// 32-byte digest. The zero digest resolves the root.
	Resolve(ctx context.Context, key []byte) (Target, error)

	// Register creates (or, unless the policy rejects existing nodes,
	// replaces) the child of parent labelled by leaf and returns its key.
	// Caller must own parent or, in the ancestors scope, any of its ancestors.
	Register(ctx context.Context, caller Identity, parent, leaf Digest, owner Identity, target Target) (Digest, error)

	Close() error
}
