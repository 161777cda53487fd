// Package journal keeps an append-only log of registry mutations in CARv2
// pack files. Each event is one dag-cbor block addressed by its CID; packs
// are sealed and rotated once they reach the configured size.
package journal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/agenthands/namereg/pkg/core"
	"github.com/agenthands/namereg/pkg/record"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	carv2 "github.com/ipld/go-car/v2"
	"github.com/ipld/go-car/v2/blockstore"
	"github.com/multiformats/go-multihash"
)

const defaultTargetPackBytes = 4 << 20

// Journal defines the interface for the registry mutation log.
type Journal interface {
	Append(ctx context.Context, e record.Event) (cid.Cid, error)
	Replay(ctx context.Context, fn func(e record.Event) error) error
	SealAndRotateIfNeeded(ctx context.Context) error
	SealActivePack(ctx context.Context) error
	CurrentPackID() uint64
	ListSealedPacks() []uint64

	// Damaged lists packs set aside because they could not be resumed.
	// Their events are missing from Replay.
	Damaged() []string

	Close() error
}

type packJournal struct {
	cfg   core.JournalConfig
	codec record.Codec

	mu sync.Mutex

	nextID  uint64                // pack the next Append starts or continues
	active  *blockstore.ReadWrite // nil until the first Append after a seal
	sealed  []uint64              // ascending
	damaged []string
}

// Open opens the journal in cfg.Dir. The newest pack may have been left
// unfinalized by a crash; it is resumed and finalized. A newest pack that
// cannot be resumed is renamed with a ".damaged" suffix. Damaged reports
// such files until an operator removes them. No pack file is created until
// the first Append.
func Open(cfg core.JournalConfig, codec record.Codec) (Journal, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("journal directory not specified")
	}
	if cfg.TargetPackBytes == 0 {
		cfg.TargetPackBytes = defaultTargetPackBytes
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	j := &packJournal{
		cfg:   cfg,
		codec: codec,
	}

	if err := j.discoverPacks(); err != nil {
		return nil, err
	}

	return j, nil
}

func (j *packJournal) discoverPacks() error {
	entries, err := os.ReadDir(j.cfg.Dir)
	if err != nil {
		return err
	}

	var packIDs []uint64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "journal-") {
			continue
		}
		if strings.HasSuffix(name, ".car.damaged") {
			j.damaged = append(j.damaged, filepath.Join(j.cfg.Dir, name))
			continue
		}
		if !strings.HasSuffix(name, ".car") {
			continue
		}

		idStr := strings.TrimSuffix(strings.TrimPrefix(name, "journal-"), ".car")
		id, err := strconv.ParseUint(idStr, 16, 64)
		if err != nil {
			continue
		}
		packIDs = append(packIDs, id)
	}

	sort.Slice(packIDs, func(a, b int) bool { return packIDs[a] < packIDs[b] })

	if n := len(packIDs); n > 0 {
		last := packIDs[n-1]
		// A reopened journal never appends to an old pack.
		j.nextID = last + 1

		if err := j.recoverPack(last); err != nil {
			path := j.packPath(last)
			if rerr := os.Rename(path, path+".damaged"); rerr != nil {
				return fmt.Errorf("failed to set aside journal pack %d: %w", last, rerr)
			}
			j.damaged = append(j.damaged, fmt.Sprintf("%s.damaged: %v", path, err))
			packIDs = packIDs[:n-1]
		}
	} else {
		j.nextID = 1
	}

	j.sealed = packIDs
	return nil
}

// recoverPack finalizes the pack a crashed writer may have left open. Until
// Finalize the CARv2 header records a zero data size.
func (j *packJournal) recoverPack(id uint64) error {
	path := j.packPath(id)
	if r, err := carv2.OpenReader(path); err == nil {
		finalized := r.Version == 2 && r.Header.DataSize > 0
		r.Close()
		if finalized {
			return nil
		}
	}

	bs, err := blockstore.OpenReadWrite(path, []cid.Cid{})
	if err != nil {
		return err
	}
	return bs.Finalize()
}

func (j *packJournal) openActive() error {
	bs, err := blockstore.OpenReadWrite(j.packPath(j.nextID), []cid.Cid{})
	if err != nil {
		return fmt.Errorf("failed to create active journal pack %d: %w", j.nextID, err)
	}
	j.active = bs
	return nil
}

func (j *packJournal) packPath(id uint64) string {
	return filepath.Join(j.cfg.Dir, fmt.Sprintf("journal-%016x.car", id))
}

func (j *packJournal) CurrentPackID() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextID
}

// EventCID addresses an encoded event as a dag-cbor block.
func EventCID(encoded []byte) (cid.Cid, error) {
	hash, err := multihash.Sum(encoded, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("failed to compute multihash: %w", err)
	}
	return cid.NewCidV1(cid.DagCBOR, hash), nil
}

func (j *packJournal) Append(ctx context.Context, e record.Event) (cid.Cid, error) {
	encoded, err := j.codec.EncodeEvent(e)
	if err != nil {
		return cid.Undef, err
	}
	id, err := EventCID(encoded)
	if err != nil {
		return cid.Undef, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	blk, err := blocks.NewBlockWithCid(encoded, id)
	if err != nil {
		return cid.Undef, err
	}
	if j.active == nil {
		if err := j.openActive(); err != nil {
			return cid.Undef, err
		}
	}
	if err := j.active.Put(ctx, blk); err != nil {
		return cid.Undef, err
	}
	return id, nil
}

func (j *packJournal) SealAndRotateIfNeeded(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.active == nil {
		return nil
	}
	fi, err := os.Stat(j.packPath(j.nextID))
	if err != nil {
		return err
	}
	if uint64(fi.Size()) < j.cfg.TargetPackBytes {
		return nil
	}
	return j.sealLocked()
}

func (j *packJournal) SealActivePack(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sealLocked()
}

func (j *packJournal) sealLocked() error {
	if j.active == nil {
		return nil
	}
	if err := j.active.Finalize(); err != nil {
		return fmt.Errorf("failed to finalize active journal pack %d: %w", j.nextID, err)
	}
	j.active = nil
	j.sealed = append(j.sealed, j.nextID)
	j.nextID++
	return nil
}

func (j *packJournal) ListSealedPacks() []uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]uint64(nil), j.sealed...)
}

func (j *packJournal) Damaged() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.damaged...)
}

// Replay seals the active pack, then yields every journaled event ordered
// by sequence number.
func (j *packJournal) Replay(ctx context.Context, fn func(e record.Event) error) error {
	if err := j.SealActivePack(ctx); err != nil {
		return err
	}

	var events []record.Event
	for _, id := range j.ListSealedPacks() {
		err := j.readPack(ctx, id, func(e record.Event) error {
			events = append(events, e)
			return nil
		})
		if err != nil {
			return err
		}
	}

	sort.SliceStable(events, func(a, b int) bool { return events[a].Seq < events[b].Seq })

	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// readPack walks the CAR payload linearly; the go-car index would hand back
// raw-codec CIDs instead of the dag-cbor ones written here.
func (j *packJournal) readPack(ctx context.Context, packID uint64, fn func(e record.Event) error) error {
	f, err := os.Open(j.packPath(packID))
	if err != nil {
		return fmt.Errorf("failed to open journal pack %d: %w", packID, err)
	}
	defer f.Close()

	br, err := carv2.NewBlockReader(f, carv2.WithTrustedCAR(true))
	if err != nil {
		return fmt.Errorf("failed to create block reader for journal pack %d: %w", packID, err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		blk, err := br.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read block from journal pack %d: %w", packID, err)
		}

		raw := blk.RawData()
		want, err := EventCID(raw)
		if err != nil {
			return err
		}
		if !want.Equals(blk.Cid()) {
			return fmt.Errorf("%w: journal pack %d block %s does not match its content", core.ErrCorrupt, packID, blk.Cid())
		}

		e, err := j.codec.DecodeEvent(raw)
		if err != nil {
			return fmt.Errorf("journal pack %d: %w", packID, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

func (j *packJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.active == nil {
		return nil
	}
	err := j.active.Finalize()
	j.active = nil
	if err != nil {
		return fmt.Errorf("failed to finalize journal pack %d: %w", j.nextID, err)
	}
	return nil
}
