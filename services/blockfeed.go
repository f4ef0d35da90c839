package services

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/indexsupply/golden-axe/db"
	"github.com/indexsupply/golden-axe/metrics"
)

// BlockFeed tracks the ingested head per chain and wakes live queries when
// a chain they reference advances. Notifications coalesce: a subscriber
// holds a one slot signal channel, so a slow consumer sees at most one
// pending wakeup and reads the latest heights when it gets to it.
type BlockFeed struct {
	mutex   sync.Mutex
	heights map[uint64]uint64
	subs    map[*BlockSub]struct{}

	headGauge *prometheus.GaugeVec
	subsGauge prometheus.Gauge
}

type BlockSub struct {
	feed   *BlockFeed
	chains map[uint64]bool

	// C fires when a subscribed chain advances.
	C chan struct{}
}

var GlobalBlockFeed *BlockFeed

// StartBlockFeed seeds the feed with the current per chain heights from
// storage and registers its metrics.
func StartBlockFeed(logger logrus.FieldLogger) error {
	if GlobalBlockFeed != nil {
		return nil
	}
	feed := &BlockFeed{
		heights: map[uint64]uint64{},
		subs:    map[*BlockSub]struct{}{},
		headGauge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "golden_axe_chain_head",
			Help: "Highest ingested block number per chain",
		}, []string{"chain"}),
		subsGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "golden_axe_block_feed_subscribers",
			Help: "Number of live query subscriptions",
		}),
	}

	heights, err := db.GetChainHeights()
	if err != nil {
		return err
	}
	for _, h := range heights {
		feed.heights[h.Chain] = h.Num
		feed.headGauge.WithLabelValues(chainLabel(h.Chain)).Set(float64(h.Num))
		logger.WithFields(logrus.Fields{"chain": h.Chain, "head": h.Num}).Info("restored chain head")
	}

	metrics.AddPreCollectFn(func() {
		for chain, num := range feed.Heights() {
			feed.headGauge.WithLabelValues(chainLabel(chain)).Set(float64(num))
		}
	})

	GlobalBlockFeed = feed
	return nil
}

// Advance records a new head for a chain and signals subscriptions that
// reference it. Stale or repeated heights are ignored.
func (feed *BlockFeed) Advance(chain uint64, num uint64) {
	feed.mutex.Lock()
	defer feed.mutex.Unlock()
	if num <= feed.heights[chain] {
		return
	}
	feed.heights[chain] = num
	if feed.headGauge != nil {
		feed.headGauge.WithLabelValues(chainLabel(chain)).Set(float64(num))
	}
	for sub := range feed.subs {
		if !sub.chains[chain] {
			continue
		}
		select {
		case sub.C <- struct{}{}:
		default: // a wakeup is already pending
		}
	}
}

// Heights returns a copy of the current per chain heads.
func (feed *BlockFeed) Heights() map[uint64]uint64 {
	feed.mutex.Lock()
	defer feed.mutex.Unlock()
	heights := make(map[uint64]uint64, len(feed.heights))
	for chain, num := range feed.heights {
		heights[chain] = num
	}
	return heights
}

func (feed *BlockFeed) Subscribe(chains []uint64) *BlockSub {
	sub := &BlockSub{
		feed:   feed,
		chains: make(map[uint64]bool, len(chains)),
		C:      make(chan struct{}, 1),
	}
	for _, chain := range chains {
		sub.chains[chain] = true
	}
	feed.mutex.Lock()
	feed.subs[sub] = struct{}{}
	if feed.subsGauge != nil {
		feed.subsGauge.Set(float64(len(feed.subs)))
	}
	feed.mutex.Unlock()
	return sub
}

func chainLabel(chain uint64) string {
	return strconv.FormatUint(chain, 10)
}

func (sub *BlockSub) Unsubscribe() {
	sub.feed.mutex.Lock()
	delete(sub.feed.subs, sub)
	if sub.feed.subsGauge != nil {
		sub.feed.subsGauge.Set(float64(len(sub.feed.subs)))
	}
	sub.feed.mutex.Unlock()
}
