package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/namereg/pkg/record"
	"github.com/cockroachdb/pebble"
)

// Rebuild restores a lost catalog from the journal. It opens the registry
// at cfg, refuses if the catalog is already initialized, and applies every
// journaled event in sequence order. Events are re-checked as they are
// applied: each key must derive from its parent and leaf, and each parent
// must already exist. The returned registry is ready for use.
func Rebuild(ctx context.Context, cfg Config, opts ...Option) (Registry, int, error) {
	if cfg.Journal.Disabled {
		return nil, 0, fmt.Errorf("%w: rebuild needs the journal", ErrInvalidInput)
	}

	r, err := open(ctx, cfg, buildOptions(opts))
	if err != nil {
		return nil, 0, err
	}

	n, err := r.replay(ctx)
	if err != nil {
		r.Close()
		return nil, n, err
	}
	r.log.InfoContext(ctx, "registry rebuilt from journal", "events", n, "seq", r.seq)
	return r, n, nil
}

func (r *registry) replay(ctx context.Context) (int, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	_, ok, err := r.catalog.Initialized(ctx)
	if err != nil {
		return 0, err
	}
	if ok {
		return 0, ErrAlreadyInitialized
	}
	if damaged := r.journal.Damaged(); len(damaged) > 0 {
		return 0, fmt.Errorf("%w: journal has damaged packs: %s", ErrCorrupt, strings.Join(damaged, "; "))
	}

	applied := 0
	var last uint64
	err = r.journal.Replay(ctx, func(e record.Event) error {
		if applied > 0 && e.Seq <= last {
			return fmt.Errorf("%w: journal sequence %d follows %d", ErrCorrupt, e.Seq, last)
		}
		if err := r.apply(ctx, e, applied == 0); err != nil {
			return fmt.Errorf("journal event %d: %w", e.Seq, err)
		}
		last = e.Seq
		applied++
		return nil
	})
	if err != nil {
		return applied, err
	}

	if applied > 0 {
		// Synced marker write makes the unsynced batches above durable.
		if err := r.catalog.MarkSequence(nil, last); err != nil {
			return applied, err
		}
		r.seq = last
	}
	return applied, nil
}

func (r *registry) apply(ctx context.Context, e record.Event, first bool) error {
	switch e.Op {
	case record.OpInit:
		if !first {
			return fmt.Errorf("%w: init after the first event", ErrCorrupt)
		}
		if !e.Key.IsZero() || !e.Node.IsRoot() {
			return fmt.Errorf("%w: init event does not describe the root", ErrCorrupt)
		}
	case record.OpRegister:
		if first {
			return fmt.Errorf("%w: journal does not start with init", ErrCorrupt)
		}
		if err := r.deriver.Verify(e.Key, e.Node.Parent, e.Leaf); err != nil {
			return err
		}
		parent, ok, err := r.catalog.GetNode(ctx, e.Node.Parent)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: parent %s", ErrBrokenChain, e.Node.Parent)
		}
		if e.Node.Depth != parent.Depth+1 {
			return fmt.Errorf("%w: depth %d under parent at depth %d", ErrCorrupt, e.Node.Depth, parent.Depth)
		}
	}

	batch := r.catalog.NewBatch()
	defer batch.Close()

	if err := r.catalog.PutNode(batch, e.Key, e.Node); err != nil {
		return err
	}
	// The marker is written once, after the last event. A rebuild that
	// stops early leaves the catalog uninitialized so it can be retried.
	return batch.Commit(pebble.NoSync)
}
