package registry

import (
	"context"

	"github.com/agenthands/namereg/pkg/catalog"
	"github.com/agenthands/namereg/pkg/journal"
	"github.com/agenthands/namereg/pkg/namehash"
)

// NewRegistryForTest constructs a Registry over injected dependencies. Test-only.
// A nil j disables the journal.
func NewRegistryForTest(cfg Config, cat catalog.Catalog, j journal.Journal, opts ...Option) Registry {
	r := newRegistry(withDefaults(cfg), cat, j, namehash.NewDeriver(), buildOptions(opts))
	if seq, ok, err := cat.Initialized(context.Background()); err == nil && ok {
		r.seq = seq
	}
	return r
}
