// Package authz decides whether a caller may act on a registry node.
//
// Ownership is hierarchical: the owner of a node, or (in the default
// ancestors scope) the owner of any node on its chain up to the root, is
// authorized. The chain is walked iteratively and bounded by the configured
// maximum depth.
package authz

import (
	"context"
	"fmt"

	"github.com/agenthands/namereg/pkg/core"
)

// NodeReader is the slice of the catalog the walk needs.
type NodeReader interface {
	GetNode(ctx context.Context, key core.Digest) (core.Node, bool, error)
}

// Checker defines the authorization interface.
type Checker interface {
	// IsAuthorized reports whether caller may act on node stored at key.
	// Steps is the number of nodes inspected.
	IsAuthorized(ctx context.Context, caller core.Identity, key core.Digest, node core.Node) (ok bool, steps int, err error)
}

type checker struct {
	nodes    NodeReader
	scope    string
	maxSteps int
}

// NewChecker returns a Checker over nodes. maxDepth bounds the walk; the
// root sits at depth 0, so at most maxDepth+1 nodes are inspected.
func NewChecker(nodes NodeReader, policy core.PolicyConfig, maxDepth int) Checker {
	scope := policy.AuthScope
	if scope == "" {
		scope = core.AuthScopeAncestors
	}
	return &checker{
		nodes:    nodes,
		scope:    scope,
		maxSteps: maxDepth + 1,
	}
}

func (c *checker) IsAuthorized(ctx context.Context, caller core.Identity, key core.Digest, node core.Node) (bool, int, error) {
	if caller == "" {
		return false, 0, nil
	}

	for steps := 1; ; steps++ {
		if node.Owner == caller {
			return true, steps, nil
		}
		// The root's parent field points back at the root itself.
		if key.IsZero() || c.scope == core.AuthScopeParent {
			return false, steps, nil
		}
		if steps >= c.maxSteps {
			return false, steps, fmt.Errorf("%w: more than %d ancestors above %s", core.ErrChainTooDeep, c.maxSteps, key)
		}
		if err := ctx.Err(); err != nil {
			return false, steps, err
		}

		parent, ok, err := c.nodes.GetNode(ctx, node.Parent)
		if err != nil {
			return false, steps, err
		}
		if !ok {
			return false, steps, fmt.Errorf("%w: %s names missing parent %s", core.ErrBrokenChain, key, node.Parent)
		}
		key, node = node.Parent, parent
	}
}
