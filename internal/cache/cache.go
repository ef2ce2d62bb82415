package cache

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/maps"

	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

const (
	DefaultPeriod   = 60
	DefaultCapacity = 16
)

type bucket struct {
	trades []types.Trade
	txs    map[string]struct{}
}

// TradeCache groups decoded trades into floor-aligned time buckets.
// Writes are serialized so several range fetchers may feed it concurrently.
type TradeCache struct {
	sync.Mutex
	period   int64
	capacity int
	buckets  map[int64]*bucket

	// trades from coveredFrom onwards are complete once covered is set
	covered     bool
	coveredFrom int64

	lastCachedLedger atomic.Uint32
}

func New(period int64, capacity int) (*TradeCache, error) {
	if period <= 0 {
		return nil, &types.ConfigurationError{Field: "cache period", Reason: fmt.Sprintf("must be positive, got %d", period)}
	}
	if capacity <= 0 {
		return nil, &types.ConfigurationError{Field: "cache capacity", Reason: fmt.Sprintf("must be positive, got %d", capacity)}
	}
	return &TradeCache{
		period:   period,
		capacity: capacity,
		buckets:  make(map[int64]*bucket, capacity+1),
	}, nil
}

func (c *TradeCache) Period() int64 {
	return c.period
}

func (c *TradeCache) Capacity() int {
	return c.capacity
}

func (c *TradeCache) LastCachedLedger() uint32 {
	return c.lastCachedLedger.Load()
}

// Advance raises the last cached ledger. Callers advance only after every range up to ledger was stored.
func (c *TradeCache) Advance(ledger uint32) uint32 {
	return setMaxValue(&c.lastCachedLedger, ledger)
}

// Cover marks trades from ts onwards as complete. Only the first call sets the start,
// eviction moves it forward.
func (c *TradeCache) Cover(ts int64) {
	c.Lock()
	defer c.Unlock()
	if c.covered {
		return
	}
	c.covered = true
	c.coveredFrom = floorTo(ts, c.period)
}

// CoveredFrom returns the earliest timestamp with complete trades.
func (c *TradeCache) CoveredFrom() (int64, bool) {
	c.Lock()
	defer c.Unlock()
	return c.coveredFrom, c.covered
}

// BucketStart returns the start of the bucket containing ts.
func (c *TradeCache) BucketStart(ts int64) int64 {
	return floorTo(ts, c.period)
}

// AddTransaction stores trades of one transaction. Returns false if the transaction
// was already recorded in its bucket. The last cached ledger is left to Advance.
func (c *TradeCache) AddTransaction(txHash string, createdAt int64, trades []types.Trade) bool {
	c.Lock()
	defer c.Unlock()

	key := floorTo(createdAt, c.period)
	b, found := c.buckets[key]
	if !found {
		b = &bucket{txs: make(map[string]struct{})}
		c.buckets[key] = b
	}

	if _, seen := b.txs[txHash]; seen {
		return false
	}
	b.txs[txHash] = struct{}{}
	b.trades = append(b.trades, trades...)
	return true
}

// TradesInRange returns trades of all buckets starting within [from, to) in bucket order.
func (c *TradeCache) TradesInRange(from, to int64) []types.Trade {
	c.Lock()
	defer c.Unlock()

	keys := c.sortedKeys()
	ret := make([]types.Trade, 0)
	for _, key := range keys {
		if key < from {
			continue
		}
		if key >= to {
			break
		}
		ret = append(ret, c.buckets[key].trades...)
	}
	return ret
}

// EvictExpired drops the oldest buckets until at most capacity remain.
func (c *TradeCache) EvictExpired() int {
	c.Lock()
	defer c.Unlock()

	excess := len(c.buckets) - c.capacity
	if excess <= 0 {
		return 0
	}
	for _, key := range c.sortedKeys()[:excess] {
		delete(c.buckets, key)
		if c.covered && key+c.period > c.coveredFrom {
			c.coveredFrom = key + c.period
		}
	}
	return excess
}

func (c *TradeCache) Len() int {
	c.Lock()
	defer c.Unlock()
	return len(c.buckets)
}

// Keys returns bucket start timestamps in ascending order.
func (c *TradeCache) Keys() []int64 {
	c.Lock()
	defer c.Unlock()
	return c.sortedKeys()
}

func (c *TradeCache) GetStatus() map[string]any {
	coveredFrom, _ := c.CoveredFrom()
	return map[string]any{
		"cache": map[string]any{
			"buckets":            c.Len(),
			"capacity":           c.capacity,
			"period":             c.period,
			"last_cached_ledger": c.lastCachedLedger.Load(),
			"covered_from":       coveredFrom,
		},
	}
}

func (c *TradeCache) sortedKeys() []int64 {
	keys := maps.Keys(c.buckets)
	slices.Sort(keys)
	return keys
}

func floorTo(ts, period int64) int64 {
	r := ts % period
	if r < 0 {
		r += period
	}
	return ts - r
}

func setMaxValue(a *atomic.Uint32, v uint32) uint32 {
	for {
		oldValue := a.Load()
		if oldValue >= v {
			return oldValue
		}

		if a.CompareAndSwap(oldValue, v) {
			return oldValue
		}
	}
}
