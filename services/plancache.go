package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"strconv"

	"github.com/coocood/freecache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/indexsupply/golden-axe/query"
	"github.com/indexsupply/golden-axe/utils"
)

func init() {
	// concrete arg types passing through the gob-encoded plan
	gob.Register([]byte(nil))
	gob.Register(int64(0))
	gob.Register("")
	gob.Register(false)
}

// PlanCache memoizes compiled queries. Compilation is pure, so a hit for
// the same source, signature set, chain set and cursor shape is always
// safe to reuse.
type PlanCache struct {
	cache  *freecache.Cache
	hits   prometheus.Counter
	misses prometheus.Counter
}

var GlobalPlanCache *PlanCache

func StartPlanCache() {
	if GlobalPlanCache != nil {
		return
	}
	size := utils.Config.Api.PlanCacheSize
	if size <= 0 {
		size = 16 * 1024 * 1024
	}
	GlobalPlanCache = &PlanCache{
		cache: freecache.NewCache(size),
		hits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "golden_axe_plan_cache_hits_total",
			Help: "Plan cache hits",
		}),
		misses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "golden_axe_plan_cache_misses_total",
			Help: "Plan cache misses",
		}),
	}
}

func planKey(src string, sigs []string, opts query.Options) []byte {
	hash := sha256.New()
	hash.Write([]byte(src))
	for _, sig := range sigs {
		hash.Write([]byte{0})
		hash.Write([]byte(sig))
	}
	hash.Write([]byte{0})
	for _, chain := range opts.Chains {
		hash.Write([]byte(strconv.FormatUint(chain, 10)))
		hash.Write([]byte{','})
	}
	hash.Write([]byte{0})
	hash.Write([]byte(opts.Cursor.String()))
	return hash.Sum(nil)
}

// Compile returns the compiled form of a query, consulting the cache
// first. Compile errors are never cached.
func (pc *PlanCache) Compile(src string, sigs []string, opts query.Options) (*query.CompiledQuery, error) {
	key := planKey(src, sigs, opts)
	if raw, err := pc.cache.Get(key); err == nil {
		plan := &query.CompiledQuery{}
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(plan); err == nil {
			pc.hits.Inc()
			return plan, nil
		}
	}
	pc.misses.Inc()
	plan, err := query.Compile(src, sigs, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(plan); err == nil {
		pc.cache.Set(key, buf.Bytes(), 0)
	}
	return plan, nil
}
