package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/agenthands/namereg/pkg/authz"
	"github.com/agenthands/namereg/pkg/catalog"
	"github.com/agenthands/namereg/pkg/core"
	"github.com/agenthands/namereg/pkg/journal"
	"github.com/agenthands/namereg/pkg/metrics"
	"github.com/agenthands/namereg/pkg/namehash"
	"github.com/agenthands/namereg/pkg/record"
	"github.com/agenthands/namereg/pkg/transform"
	"github.com/cockroachdb/pebble"
)

const (
	opInit     = "init"
	opResolve  = "resolve"
	opRegister = "register"
)

type registry struct {
	cfg Config
	log *slog.Logger
	met *metrics.Metrics
	now func() time.Time

	deriver namehash.Deriver
	catalog catalog.Catalog
	authz   authz.Checker
	journal journal.Journal // nil when disabled

	writeMu sync.Mutex // single-writer invariant
	seq     uint64     // last committed sequence number, guarded by writeMu

	closeMu sync.RWMutex
	closed  bool
}

// Option customizes a registry opened with Open or Rebuild.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	inMemory bool
	now      func() time.Time
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records operation metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithInMemoryCatalog keeps the catalog off disk. The journal, if enabled,
// is still written to its directory.
func WithInMemoryCatalog() Option {
	return func(o *options) { o.inMemory = true }
}

// WithClock sets the clock used to timestamp journal events.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

func withDefaults(cfg Config) Config {
	def := core.Defaults()
	if cfg.Catalog.Dir == "" {
		cfg.Catalog.Dir = filepath.Join(cfg.Dir, "catalog")
	}
	if cfg.Journal.Dir == "" {
		cfg.Journal.Dir = filepath.Join(cfg.Dir, "journal")
	}
	if cfg.Journal.TargetPackBytes == 0 {
		cfg.Journal.TargetPackBytes = def.Journal.TargetPackBytes
	}
	if cfg.Limits.MaxDepth == 0 {
		cfg.Limits.MaxDepth = def.Limits.MaxDepth
	}
	if cfg.Limits.MaxIdentityLen == 0 {
		cfg.Limits.MaxIdentityLen = def.Limits.MaxIdentityLen
	}
	if cfg.Policy.AuthScope == "" {
		cfg.Policy.AuthScope = def.Policy.AuthScope
	}
	return cfg
}

// Open opens (or creates) the registry stored under cfg.Dir. A freshly
// created registry must be initialized with Init before use.
func Open(ctx context.Context, cfg Config, opts ...Option) (Registry, error) {
	return open(ctx, cfg, buildOptions(opts))
}

func open(ctx context.Context, cfg Config, o options) (*registry, error) {
	cfg = withDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tr, err := transform.New(cfg.Transform)
	if err != nil {
		return nil, err
	}
	codec := record.NewCodec(cfg.Limits)

	cat, err := catalog.Open(cfg.Catalog.Dir, codec, tr, catalog.Options{InMemory: o.inMemory})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	var j journal.Journal
	if !cfg.Journal.Disabled {
		j, err = journal.Open(cfg.Journal, codec)
		if err != nil {
			cat.Close()
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		for _, d := range j.Damaged() {
			o.logger.WarnContext(ctx, "journal pack set aside", "pack", d)
		}
	}

	seq, _, err := cat.Initialized(ctx)
	if err != nil {
		cat.Close()
		if j != nil {
			j.Close()
		}
		return nil, fmt.Errorf("failed to read registry marker: %w", err)
	}

	r := newRegistry(cfg, cat, j, namehash.NewDeriver(), o)
	r.seq = seq
	return r, nil
}

func newRegistry(cfg Config, cat catalog.Catalog, j journal.Journal, d namehash.Deriver, o options) *registry {
	return &registry{
		cfg:     cfg,
		log:     o.logger,
		met:     o.metrics,
		now:     o.now,
		deriver: d,
		catalog: cat,
		authz:   authz.NewChecker(cat, cfg.Policy, cfg.Limits.MaxDepth),
		journal: j,
	}
}

func (r *registry) Close() error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	err1 := r.catalog.Close()
	var err2 error
	if r.journal != nil {
		err2 = r.journal.Close()
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (r *registry) Init(ctx context.Context, caller Identity) (err error) {
	defer r.observe(opInit, time.Now(), &err)

	if err := r.checkIdentity("caller", caller); err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.closed {
		return ErrClosed
	}

	_, ok, err := r.catalog.Initialized(ctx)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialized
	}

	root := Node{
		Owner:  caller,
		Parent: ZeroDigest,
		Target: NoTarget,
	}
	if err := r.commit(ZeroDigest, root); err != nil {
		return err
	}

	r.log.InfoContext(ctx, "registry initialized", "owner", string(caller))
	r.appendJournal(ctx, record.Event{
		Seq:    r.seq,
		Op:     record.OpInit,
		Key:    ZeroDigest,
		Node:   root,
		Caller: caller,
	})
	return nil
}

func (r *registry) Resolve(ctx context.Context, key []byte) (_ Target, err error) {
	defer r.observe(opResolve, time.Now(), &err)

	d, err := core.DigestFromBytes(key)
	if err != nil {
		return NoTarget, err
	}

	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		return NoTarget, ErrClosed
	}

	node, err := r.load(ctx, d, ErrNotFound)
	if err != nil {
		return NoTarget, err
	}

	r.log.DebugContext(ctx, "resolved", "key", d.String(), "target", node.Target.String())
	return node.Target, nil
}

func (r *registry) Register(ctx context.Context, caller Identity, parent, leaf Digest, owner Identity, target Target) (_ Digest, err error) {
	defer r.observe(opRegister, time.Now(), &err)

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.closed {
		return Digest{}, ErrClosed
	}

	// 1. Parent must exist
	parentNode, err := r.load(ctx, parent, ErrParentNotFound)
	if err != nil {
		return Digest{}, err
	}

	// 2. Caller must own the parent or one of its ancestors
	ok, steps, err := r.authz.IsAuthorized(ctx, caller, parent, parentNode)
	r.met.ObserveWalk(steps)
	if err != nil {
		return Digest{}, err
	}
	if !ok {
		return Digest{}, ErrNotAuthorized
	}

	if err := r.checkIdentity("owner", owner); err != nil {
		return Digest{}, err
	}
	if id, ok := target.Get(); ok {
		if err := r.checkIdentity("target", id); err != nil {
			return Digest{}, err
		}
	}
	depth := int(parentNode.Depth) + 1
	if depth > r.cfg.Limits.MaxDepth {
		return Digest{}, fmt.Errorf("%w: depth %d exceeds limit %d", ErrChainTooDeep, depth, r.cfg.Limits.MaxDepth)
	}

	// 3. Derive the child key
	key := r.deriver.Derive(parent, leaf)

	if r.cfg.Policy.RejectExisting {
		exists, err := r.catalog.HasNode(ctx, key)
		if err != nil {
			return Digest{}, err
		}
		if exists {
			return Digest{}, ErrAlreadyRegistered
		}
	}

	// 4. Write the node, replacing any previous one at key
	node := Node{
		Owner:  owner,
		Parent: parent,
		Target: target,
		Depth:  uint16(depth),
	}
	if err := r.commit(key, node); err != nil {
		return Digest{}, err
	}

	r.log.InfoContext(ctx, "registered", "key", key.String(), "parent", parent.String(), "owner", string(owner), "caller", string(caller))
	r.appendJournal(ctx, record.Event{
		Seq:    r.seq,
		Op:     record.OpRegister,
		Key:    key,
		Leaf:   leaf,
		Node:   node,
		Caller: caller,
	})

	return key, nil
}

// load fetches key. Nothing is readable until the registry marker exists;
// a rebuild that stopped early may have left nodes behind without it.
func (r *registry) load(ctx context.Context, key Digest, missing error) (Node, error) {
	_, initialized, err := r.catalog.Initialized(ctx)
	if err != nil {
		return Node{}, err
	}
	if !initialized {
		return Node{}, ErrNotInitialized
	}

	node, ok, err := r.catalog.GetNode(ctx, key)
	if err != nil {
		return Node{}, err
	}
	if !ok {
		return Node{}, missing
	}
	return node, nil
}

// commit writes node and advances the sequence in one synced batch.
// Must hold writeMu.
func (r *registry) commit(key Digest, node Node) error {
	batch := r.catalog.NewBatch()
	defer batch.Close()

	if err := r.catalog.PutNode(batch, key, node); err != nil {
		return err
	}
	if err := r.catalog.MarkSequence(batch, r.seq+1); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return err
	}
	r.seq++
	return nil
}

// appendJournal records a committed mutation. The mutation stands even if
// the journal write fails. Must hold writeMu.
func (r *registry) appendJournal(ctx context.Context, e record.Event) {
	if r.journal == nil {
		return
	}
	e.Time = r.now().UnixNano()

	if _, err := r.journal.Append(ctx, e); err != nil {
		r.met.IncrementJournalFailure()
		r.log.WarnContext(ctx, "journal append failed", "seq", e.Seq, "key", e.Key.String(), "error", err)
		return
	}
	if err := r.journal.SealAndRotateIfNeeded(ctx); err != nil {
		r.log.WarnContext(ctx, "journal rotation failed", "error", err)
	}
}

func (r *registry) checkIdentity(field string, id Identity) error {
	if id == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidInput, field)
	}
	if limit := r.cfg.Limits.MaxIdentityLen; limit > 0 && len(id) > limit {
		return fmt.Errorf("%w: %s too long: %d > %d", ErrInvalidInput, field, len(id), limit)
	}
	return nil
}

func (r *registry) observe(op string, start time.Time, err *error) {
	if r.met == nil {
		return
	}
	result := "ok"
	if *err != nil {
		result = core.CodeOf(*err).String()
	}
	r.met.ObserveOperation(op, result, time.Since(start))
}
