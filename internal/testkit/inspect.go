package testkit

import (
	"context"

	"github.com/agenthands/namereg/pkg/journal"
	"github.com/agenthands/namereg/pkg/record"
)

// CountJournalEvents returns the number of events the journal replays.
func CountJournalEvents(ctx context.Context, j journal.Journal) (int, error) {
	n := 0
	err := j.Replay(ctx, func(record.Event) error {
		n++
		return nil
	})
	return n, err
}

// JournalEvents collects every replayed event in sequence order.
func JournalEvents(ctx context.Context, j journal.Journal) ([]record.Event, error) {
	var out []record.Event
	err := j.Replay(ctx, func(e record.Event) error {
		out = append(out, e)
		return nil
	})
	return out, err
}
