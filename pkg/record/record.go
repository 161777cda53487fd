package record

import (
	"fmt"

	"github.com/agenthands/namereg/pkg/core"
	"github.com/fxamacker/cbor/v2"
)

const Version = 1

const (
	OpInit     = "init"
	OpRegister = "register"
)

// Event is one successful registry mutation as written to the journal.
type Event struct {
	Seq    uint64
	Op     string
	Key    core.Digest
	Leaf   core.Digest // zero for init
	Node   core.Node
	Caller core.Identity
	Time   int64 // unix nanoseconds
}

// nodeV1 is the on-disk format for a node.
type nodeV1 struct {
	Version uint16  `cbor:"version"`
	Owner   string  `cbor:"owner"`
	Parent  []byte  `cbor:"parent"`
	Target  *string `cbor:"target,omitempty"`
	Depth   uint16  `cbor:"depth"`
}

type eventV1 struct {
	Version uint16 `cbor:"version"`
	Seq     uint64 `cbor:"seq"`
	Op      string `cbor:"op"`
	Key     []byte `cbor:"key"`
	Leaf    []byte `cbor:"leaf"`
	Node    nodeV1 `cbor:"node"`
	Caller  string `cbor:"caller"`
	Time    int64  `cbor:"time"`
}

// Codec defines the interface for record encoding/decoding and validation.
type Codec interface {
	EncodeNode(n core.Node) ([]byte, error)
	DecodeNode(b []byte) (core.Node, error)
	EncodeEvent(e Event) ([]byte, error)
	DecodeEvent(b []byte) (Event, error)
}

type codec struct {
	limits  core.LimitsConfig
	encMode cbor.EncMode
}

// NewCodec returns a new Codec implementation.
func NewCodec(limits core.LimitsConfig) Codec {
	// Canonical encoding keeps journal block CIDs stable for equal events.
	em, _ := cbor.CanonicalEncOptions().EncMode()
	return &codec{
		limits:  limits,
		encMode: em,
	}
}

func (c *codec) EncodeNode(n core.Node) ([]byte, error) {
	w := toWire(n)
	if err := c.validateNode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	return c.encMode.Marshal(&w)
}

func (c *codec) DecodeNode(b []byte) (core.Node, error) {
	var w nodeV1
	if err := cbor.Unmarshal(b, &w); err != nil {
		return core.Node{}, fmt.Errorf("%w: failed to unmarshal node: %v", core.ErrCorrupt, err)
	}
	if err := c.validateNode(&w); err != nil {
		return core.Node{}, fmt.Errorf("%w: %v", core.ErrCorrupt, err)
	}
	return fromWire(&w), nil
}

func (c *codec) EncodeEvent(e Event) ([]byte, error) {
	w := eventV1{
		Version: Version,
		Seq:     e.Seq,
		Op:      e.Op,
		Key:     append([]byte(nil), e.Key[:]...),
		Leaf:    append([]byte(nil), e.Leaf[:]...),
		Node:    toWire(e.Node),
		Caller:  string(e.Caller),
		Time:    e.Time,
	}
	if err := c.validateEvent(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	return c.encMode.Marshal(&w)
}

func (c *codec) DecodeEvent(b []byte) (Event, error) {
	var w eventV1
	if err := cbor.Unmarshal(b, &w); err != nil {
		return Event{}, fmt.Errorf("%w: failed to unmarshal event: %v", core.ErrCorrupt, err)
	}
	if err := c.validateEvent(&w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", core.ErrCorrupt, err)
	}

	e := Event{
		Seq:    w.Seq,
		Op:     w.Op,
		Node:   fromWire(&w.Node),
		Caller: core.Identity(w.Caller),
		Time:   w.Time,
	}
	copy(e.Key[:], w.Key)
	copy(e.Leaf[:], w.Leaf)
	return e, nil
}

func toWire(n core.Node) nodeV1 {
	w := nodeV1{
		Version: Version,
		Owner:   string(n.Owner),
		Parent:  append([]byte(nil), n.Parent[:]...),
		Depth:   n.Depth,
	}
	if id, ok := n.Target.Get(); ok {
		s := string(id)
		w.Target = &s
	}
	return w
}

func fromWire(w *nodeV1) core.Node {
	n := core.Node{
		Owner: core.Identity(w.Owner),
		Depth: w.Depth,
	}
	copy(n.Parent[:], w.Parent)
	if w.Target != nil {
		n.Target = core.TargetOf(core.Identity(*w.Target))
	}
	return n
}

func (c *codec) validateNode(w *nodeV1) error {
	if w.Version != Version {
		return fmt.Errorf("unsupported node version %d", w.Version)
	}
	if len(w.Parent) != core.DigestSize {
		return fmt.Errorf("parent digest has %d bytes, want %d", len(w.Parent), core.DigestSize)
	}
	if w.Owner == "" {
		return fmt.Errorf("empty owner")
	}
	if err := c.checkIdentity("owner", w.Owner); err != nil {
		return err
	}
	if w.Target != nil {
		if *w.Target == "" {
			return fmt.Errorf("empty target")
		}
		if err := c.checkIdentity("target", *w.Target); err != nil {
			return err
		}
	}
	if c.limits.MaxDepth > 0 && int(w.Depth) > c.limits.MaxDepth {
		return fmt.Errorf("depth %d exceeds limit %d", w.Depth, c.limits.MaxDepth)
	}
	return nil
}

func (c *codec) validateEvent(w *eventV1) error {
	if w.Version != Version {
		return fmt.Errorf("unsupported event version %d", w.Version)
	}
	if len(w.Key) != core.DigestSize || len(w.Leaf) != core.DigestSize {
		return fmt.Errorf("event key and leaf must be %d bytes", core.DigestSize)
	}
	if err := c.validateNode(&w.Node); err != nil {
		return err
	}
	if w.Caller == "" {
		return fmt.Errorf("empty caller")
	}

	switch w.Op {
	case OpInit:
		var key core.Digest
		copy(key[:], w.Key)
		if !key.IsZero() || w.Node.Depth != 0 {
			return fmt.Errorf("init event must write the root node")
		}
	case OpRegister:
		if w.Node.Depth == 0 {
			return fmt.Errorf("register event cannot write depth 0")
		}
	default:
		return fmt.Errorf("unknown op %q", w.Op)
	}
	return nil
}

func (c *codec) checkIdentity(field, id string) error {
	if c.limits.MaxIdentityLen > 0 && len(id) > c.limits.MaxIdentityLen {
		return fmt.Errorf("%s too long: %d > %d", field, len(id), c.limits.MaxIdentityLen)
	}
	return nil
}
