package services

import (
	"context"
	"errors"
	"testing"

	"github.com/indexsupply/golden-axe/query"
)

// Every wakeup yields an emitted batch, rows or not, and the cursor handed
// to the next run follows the snapshot heights, including a height drop
// after a reorg.
func TestStreamBatchesEmitsEveryWake(t *testing.T) {
	wake := make(chan struct{}, 2)
	wake <- struct{}{}
	wake <- struct{}{}

	batches := []*BatchResult{
		{Results: []*QueryResult{{Rows: [][]any{}}}, Heights: map[uint64]uint64{1: 100}},
		{Results: []*QueryResult{{Rows: [][]any{}}}, Heights: map[uint64]uint64{1: 95}},
		{Results: []*QueryResult{{Rows: [][]any{{int64(7)}}}}, Heights: map[uint64]uint64{1: 120}},
	}
	var seen []string
	run := func(cur query.Cursor) (*BatchResult, error) {
		seen = append(seen, cur.String())
		return batches[len(seen)-1], nil
	}

	errDone := errors.New("done")
	emitted := 0
	emit := func(batch *BatchResult) error {
		emitted++
		if emitted == len(batches) {
			return errDone
		}
		return nil
	}

	err := streamBatches(context.Background(), wake, nil, run, emit)
	if err != errDone {
		t.Fatalf("expected stream to end with emit's error, got %v", err)
	}
	if emitted != 3 {
		t.Fatalf("expected 3 emitted batches, got %d", emitted)
	}
	want := []string{"", "1-100", "1-95"}
	for i, cur := range want {
		if seen[i] != cur {
			t.Errorf("run %d: expected cursor %q, got %q", i, cur, seen[i])
		}
	}
}

func TestStreamBatchesStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	run := func(cur query.Cursor) (*BatchResult, error) {
		return &BatchResult{}, nil
	}
	emit := func(batch *BatchResult) error {
		cancel()
		return nil
	}
	err := streamBatches(ctx, make(chan struct{}), nil, run, emit)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
