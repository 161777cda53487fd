package catalog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/agenthands/namereg/pkg/core"
	"github.com/agenthands/namereg/pkg/record"
	"github.com/agenthands/namereg/pkg/transform"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

var (
	PrefixNode = []byte("rn:")
	PrefixMeta = []byte("rm:")

	// KeyRegistry marks the registry aggregate as created. Its value is the
	// last journal sequence number committed with a mutation.
	KeyRegistry = append(append([]byte(nil), PrefixMeta...), "registry"...)
)

// Catalog defines the interface for the embedded KV store holding nodes.
type Catalog interface {
	GetNode(ctx context.Context, key core.Digest) (core.Node, bool, error)
	HasNode(ctx context.Context, key core.Digest) (bool, error)
	PutNode(batch *pebble.Batch, key core.Digest, n core.Node) error

	// Initialized reports whether the registry marker exists and returns the
	// sequence number stored with it.
	Initialized(ctx context.Context) (uint64, bool, error)
	MarkSequence(batch *pebble.Batch, seq uint64) error

	NewBatch() *pebble.Batch
	Close() error
}

// Options tunes how a catalog is opened.
type Options struct {
	// InMemory keeps the database on an in-memory filesystem.
	InMemory bool
}

type pebbleCatalog struct {
	db    *pebble.DB
	codec record.Codec
	tr    transform.Transform
}

// Open opens a Pebble-based catalog in the specified directory.
func Open(dir string, codec record.Codec, tr transform.Transform, opts Options) (Catalog, error) {
	po := &pebble.Options{}
	if opts.InMemory {
		po.FS = vfs.NewMem()
	}
	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}
	return &pebbleCatalog{db: db, codec: codec, tr: tr}, nil
}

func (c *pebbleCatalog) Close() error {
	return c.db.Close()
}

func (c *pebbleCatalog) NewBatch() *pebble.Batch {
	return c.db.NewBatch()
}

func (c *pebbleCatalog) GetNode(ctx context.Context, key core.Digest) (core.Node, bool, error) {
	val, closer, err := c.db.Get(nodeKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return core.Node{}, false, nil
		}
		return core.Node{}, false, err
	}
	defer closer.Close()

	plain, err := c.tr.Decode(val)
	if err != nil {
		return core.Node{}, false, fmt.Errorf("node %s: %w", key, err)
	}
	n, err := c.codec.DecodeNode(plain)
	if err != nil {
		return core.Node{}, false, fmt.Errorf("node %s: %w", key, err)
	}
	return n, true, nil
}

func (c *pebbleCatalog) HasNode(ctx context.Context, key core.Digest) (bool, error) {
	_, closer, err := c.db.Get(nodeKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	closer.Close()
	return true, nil
}

func (c *pebbleCatalog) PutNode(batch *pebble.Batch, key core.Digest, n core.Node) error {
	plain, err := c.codec.EncodeNode(n)
	if err != nil {
		return err
	}
	val, err := c.tr.Encode(plain)
	if err != nil {
		return err
	}

	if batch != nil {
		return batch.Set(nodeKey(key), val, nil)
	}
	return c.db.Set(nodeKey(key), val, pebble.Sync)
}

func (c *pebbleCatalog) Initialized(ctx context.Context) (uint64, bool, error) {
	val, closer, err := c.db.Get(KeyRegistry)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	defer closer.Close()

	if len(val) != 8 {
		return 0, false, fmt.Errorf("%w: invalid registry marker length", core.ErrCorrupt)
	}
	return binary.BigEndian.Uint64(val), true, nil
}

func (c *pebbleCatalog) MarkSequence(batch *pebble.Batch, seq uint64) error {
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, seq)

	if batch != nil {
		return batch.Set(KeyRegistry, val, nil)
	}
	return c.db.Set(KeyRegistry, val, pebble.Sync)
}

func nodeKey(d core.Digest) []byte {
	k := make([]byte, 0, len(PrefixNode)+core.DigestSize)
	k = append(k, PrefixNode...)
	return append(k, d[:]...)
}
