package services

import (
	"testing"
)

func newTestFeed() *BlockFeed {
	return &BlockFeed{
		heights: map[uint64]uint64{},
		subs:    map[*BlockSub]struct{}{},
	}
}

func TestBlockFeedAdvanceWakesSubscribedChains(t *testing.T) {
	feed := newTestFeed()
	sub := feed.Subscribe([]uint64{1})
	defer sub.Unsubscribe()
	other := feed.Subscribe([]uint64{8453})
	defer other.Unsubscribe()

	feed.Advance(1, 100)

	select {
	case <-sub.C:
	default:
		t.Fatal("expected wakeup for chain 1 subscriber")
	}
	select {
	case <-other.C:
		t.Fatal("unexpected wakeup for chain 8453 subscriber")
	default:
	}
}

func TestBlockFeedCoalescesWakeups(t *testing.T) {
	feed := newTestFeed()
	sub := feed.Subscribe([]uint64{1})
	defer sub.Unsubscribe()

	feed.Advance(1, 100)
	feed.Advance(1, 101)
	feed.Advance(1, 102)

	<-sub.C
	select {
	case <-sub.C:
		t.Fatal("expected a single pending wakeup")
	default:
	}
	if heights := feed.Heights(); heights[1] != 102 {
		t.Errorf("expected head 102, got %d", heights[1])
	}
}

func TestBlockFeedIgnoresStaleHeights(t *testing.T) {
	feed := newTestFeed()
	feed.Advance(1, 100)
	sub := feed.Subscribe([]uint64{1})
	defer sub.Unsubscribe()

	feed.Advance(1, 99)
	feed.Advance(1, 100)

	select {
	case <-sub.C:
		t.Fatal("stale height must not wake subscribers")
	default:
	}
}

func TestBlockFeedHeightsReturnsCopy(t *testing.T) {
	feed := newTestFeed()
	feed.Advance(1, 10)
	heights := feed.Heights()
	heights[1] = 999
	if feed.Heights()[1] != 10 {
		t.Error("mutating the returned map must not affect the feed")
	}
}
