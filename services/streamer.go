package services

import (
	"context"
	"time"

	"github.com/indexsupply/golden-axe/query"
)

// RunLiveQuery re-executes a batch whenever a watched chain advances and
// hands each result to emit. emit returning an error ends the stream.
func RunLiveQuery(ctx context.Context, requests []QueryRequest, chains []uint64, cursor query.Cursor, timeout time.Duration, emit func(*BatchResult) error) error {
	sub := GlobalBlockFeed.Subscribe(chains)
	defer sub.Unsubscribe()

	run := func(cur query.Cursor) (*BatchResult, error) {
		return RunQueryBatch(ctx, requests, chains, cur, timeout)
	}
	return streamBatches(ctx, sub.C, cursor, run, emit)
}

// streamBatches runs one batch per wakeup and emits every result. A batch
// without rows still carries the cursor moved to the snapshot heights, so
// clients can persist their position without waiting for a matching row.
func streamBatches(ctx context.Context, wake <-chan struct{}, cursor query.Cursor, run func(query.Cursor) (*BatchResult, error), emit func(*BatchResult) error) error {
	for {
		batch, err := run(cursor)
		if err != nil {
			return err
		}
		cursor = cursor.Merge(batch.Heights)
		if err := emit(batch); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}
