package journal_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/agenthands/namereg/internal/testkit"
	"github.com/agenthands/namereg/pkg/core"
	"github.com/agenthands/namereg/pkg/journal"
	"github.com/agenthands/namereg/pkg/namehash"
	"github.com/agenthands/namereg/pkg/record"
	carv2 "github.com/ipld/go-car/v2"
)

func packFiles(t *testing.T, dir string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "journal-*.car"))
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func registerEvent(seq uint64, label string) record.Event {
	leaf := namehash.LabelHash(label)
	return record.Event{
		Seq:    seq,
		Op:     record.OpRegister,
		Key:    namehash.Derive(core.ZeroDigest, leaf),
		Leaf:   leaf,
		Node:   core.Node{Owner: "alice", Parent: core.ZeroDigest, Target: core.TargetOf("addr-" + core.Identity(label)), Depth: 1},
		Caller: "root",
	}
}

func TestJournal(t *testing.T) {
	ctx := context.Background()
	codec := record.NewCodec(core.LimitsConfig{})
	cfg := core.JournalConfig{
		Dir:             t.TempDir(),
		TargetPackBytes: 512, // small for testing rotation
	}

	j, err := journal.Open(cfg, codec)
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}

	t.Run("AppendReturnsContentAddress", func(t *testing.T) {
		e := record.Event{Seq: 1, Op: record.OpInit, Node: core.Node{Owner: "root"}, Caller: "root"}
		id, err := j.Append(ctx, e)
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		encoded, _ := codec.EncodeEvent(e)
		want, _ := journal.EventCID(encoded)
		if !id.Equals(want) {
			t.Errorf("expected %s, got %s", want, id)
		}
	})

	t.Run("AppendRejectsInvalidEvent", func(t *testing.T) {
		_, err := j.Append(ctx, record.Event{Op: "bogus"})
		if !errors.Is(err, core.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Rotation", func(t *testing.T) {
		pack1 := j.CurrentPackID()
		for i := 0; i < 8; i++ {
			if _, err := j.Append(ctx, registerEvent(uint64(2+i), "label"+string(rune('a'+i)))); err != nil {
				t.Fatal(err)
			}
		}
		if err := j.SealAndRotateIfNeeded(ctx); err != nil {
			t.Fatalf("SealAndRotateIfNeeded failed: %v", err)
		}
		if j.CurrentPackID() == pack1 {
			t.Error("expected pack ID to change after rotation")
		}
	})

	t.Run("Replay", func(t *testing.T) {
		_, _ = j.Append(ctx, registerEvent(10, "late"))

		var seqs []uint64
		err := j.Replay(ctx, func(e record.Event) error {
			seqs = append(seqs, e.Seq)
			return nil
		})
		if err != nil {
			t.Fatalf("Replay failed: %v", err)
		}
		if len(seqs) != 10 {
			t.Fatalf("expected 10 events, got %d", len(seqs))
		}
		for i, s := range seqs {
			if s != uint64(i+1) {
				t.Errorf("event %d: expected seq %d, got %d", i, i+1, s)
			}
		}
	})

	t.Run("Discovery", func(t *testing.T) {
		if err := j.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		j2, err := journal.Open(cfg, codec)
		if err != nil {
			t.Fatalf("failed to reopen journal: %v", err)
		}
		defer j2.Close()

		if j2.CurrentPackID() <= 1 {
			t.Errorf("expected currentID > 1, got %d", j2.CurrentPackID())
		}
		if len(j2.ListSealedPacks()) == 0 {
			t.Error("expected to discover sealed packs")
		}

		n, err := testkit.CountJournalEvents(ctx, j2)
		if err != nil {
			t.Fatal(err)
		}
		if n != 10 {
			t.Errorf("expected 10 events after reopen, got %d", n)
		}
	})
}

func TestJournal_StopsOnCallbackError(t *testing.T) {
	ctx := context.Background()
	j, err := journal.Open(core.JournalConfig{Dir: t.TempDir()}, record.NewCodec(core.LimitsConfig{}))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	_, _ = j.Append(ctx, registerEvent(1, "a"))
	_, _ = j.Append(ctx, registerEvent(2, "b"))

	calls := 0
	err = j.Replay(ctx, func(e record.Event) error {
		calls++
		return testkit.ErrInjectedFault
	})
	if !errors.Is(err, testkit.ErrInjectedFault) {
		t.Errorf("expected injected fault, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected replay to stop after first error, got %d calls", calls)
	}
}

func TestJournal_Cancelled(t *testing.T) {
	j, err := journal.Open(core.JournalConfig{Dir: t.TempDir()}, record.NewCodec(core.LimitsConfig{}))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	_, _ = j.Append(context.Background(), registerEvent(1, "a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = j.Replay(ctx, func(record.Event) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestJournal_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"notes.txt", "journal-zz.car", "pack-0000000000000001.car"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	j, err := journal.Open(core.JournalConfig{Dir: dir}, record.NewCodec(core.LimitsConfig{}))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	if len(j.ListSealedPacks()) != 0 {
		t.Errorf("expected no sealed packs, got %v", j.ListSealedPacks())
	}
}

func TestJournal_RequiresDir(t *testing.T) {
	if _, err := journal.Open(core.JournalConfig{}, record.NewCodec(core.LimitsConfig{})); err == nil {
		t.Error("expected error for empty journal directory")
	}
}

func TestJournal_RecoversUnfinalizedPack(t *testing.T) {
	ctx := context.Background()
	codec := record.NewCodec(core.LimitsConfig{})
	cfg := core.JournalConfig{Dir: t.TempDir()}

	j, err := journal.Open(cfg, codec)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		if _, err := j.Append(ctx, registerEvent(uint64(i), "n"+string(rune('a'+i)))); err != nil {
			t.Fatal(err)
		}
	}
	// No Close: the pack is left the way a killed process leaves it.

	j2, err := journal.Open(cfg, codec)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer j2.Close()

	if d := j2.Damaged(); len(d) != 0 {
		t.Errorf("expected no damaged packs, got %v", d)
	}
	if got := j2.ListSealedPacks(); len(got) != 1 || got[0] != 1 {
		t.Errorf("expected pack 1 sealed, got %v", got)
	}
	if got := j2.CurrentPackID(); got != 2 {
		t.Errorf("expected next pack 2, got %d", got)
	}
	n, err := testkit.CountJournalEvents(ctx, j2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 events, got %d", n)
	}
}

func TestJournal_CloseFinalizesPack(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(core.JournalConfig{Dir: dir}, record.NewCodec(core.LimitsConfig{}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := j.Append(context.Background(), registerEvent(1, "a")); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	files := packFiles(t, dir)
	if len(files) != 1 {
		t.Fatalf("expected 1 pack, got %v", files)
	}
	r, err := carv2.OpenReader(files[0])
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.Header.DataSize == 0 {
		t.Error("pack was not finalized")
	}
}

func TestJournal_OpenCreatesNoPacks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	codec := record.NewCodec(core.LimitsConfig{})

	for i := 0; i < 3; i++ {
		j, err := journal.Open(core.JournalConfig{Dir: dir}, codec)
		if err != nil {
			t.Fatal(err)
		}
		if err := j.Replay(ctx, func(record.Event) error { return nil }); err != nil {
			t.Fatal(err)
		}
		if err := j.Close(); err != nil {
			t.Fatal(err)
		}
	}
	if files := packFiles(t, dir); len(files) != 0 {
		t.Errorf("expected no packs, got %v", files)
	}

	j, err := journal.Open(core.JournalConfig{Dir: dir}, codec)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := j.Append(ctx, registerEvent(1, "a")); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		j, err := journal.Open(core.JournalConfig{Dir: dir}, codec)
		if err != nil {
			t.Fatal(err)
		}
		if err := j.Close(); err != nil {
			t.Fatal(err)
		}
	}
	if files := packFiles(t, dir); len(files) != 1 {
		t.Errorf("expected 1 pack, got %v", files)
	}
}

func TestJournal_SetsAsideDamagedPack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	codec := record.NewCodec(core.LimitsConfig{})

	j, err := journal.Open(core.JournalConfig{Dir: dir}, codec)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := j.Append(ctx, registerEvent(1, "a")); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	damaged := filepath.Join(dir, "journal-0000000000000002.car")
	if err := os.WriteFile(damaged, []byte("truncated"), 0644); err != nil {
		t.Fatal(err)
	}

	j2, err := journal.Open(core.JournalConfig{Dir: dir}, codec)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got := j2.Damaged(); len(got) != 1 {
		t.Errorf("expected 1 damaged pack, got %v", got)
	}
	if _, err := os.Stat(damaged + ".damaged"); err != nil {
		t.Errorf("expected pack to be renamed: %v", err)
	}
	n, err := testkit.CountJournalEvents(ctx, j2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 event from the intact pack, got %d", n)
	}
	if err := j2.Close(); err != nil {
		t.Fatal(err)
	}

	// Later opens keep reporting it.
	j3, err := journal.Open(core.JournalConfig{Dir: dir}, codec)
	if err != nil {
		t.Fatal(err)
	}
	defer j3.Close()
	if got := j3.Damaged(); len(got) != 1 {
		t.Errorf("expected damaged pack on reopen, got %v", got)
	}
}
