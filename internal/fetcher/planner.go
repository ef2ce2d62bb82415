package fetcher

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Synternet/stellar-price-feeder/pkg/source"
)

const (
	DefaultLedgerInterval = 5 * time.Second
	DefaultSubRanges      = 3
	DefaultHeadMargin     = 1

	// Heads closer than this are too noisy to estimate the ledger interval from.
	minObservedLedgers = 60
)

// Range is an inclusive span of ledger sequences.
type Range struct {
	From uint32
	To   uint32
}

// Planner converts wall-clock windows to ledger ranges.
type Planner struct {
	sync.Mutex
	subRanges  int
	headMargin uint32
	interval   atomic.Int64

	firstSeq   uint32
	firstClose time.Time
}

func NewPlanner(interval time.Duration, subRanges int, headMargin uint32) *Planner {
	if interval <= 0 {
		interval = DefaultLedgerInterval
	}
	if subRanges <= 0 {
		subRanges = DefaultSubRanges
	}
	ret := &Planner{
		subRanges:  subRanges,
		headMargin: headMargin,
	}
	ret.interval.Store(int64(interval))
	return ret
}

func (p *Planner) LedgerInterval() time.Duration {
	return time.Duration(p.interval.Load())
}

// ObserveHead refines the average ledger interval from successive head observations.
func (p *Planner) ObserveHead(head source.Head) {
	if head.CloseTime.IsZero() || head.Sequence == 0 {
		return
	}

	p.Lock()
	defer p.Unlock()

	if p.firstSeq == 0 || head.Sequence < p.firstSeq {
		p.firstSeq = head.Sequence
		p.firstClose = head.CloseTime
		return
	}

	ledgers := head.Sequence - p.firstSeq
	if ledgers < minObservedLedgers {
		return
	}

	avg := head.CloseTime.Sub(p.firstClose) / time.Duration(ledgers)
	if avg > 0 {
		p.interval.Store(int64(avg))
	}
}

// Plan splits the ledgers between the estimated start of the window and the chain head into sub-ranges.
// Ledgers up to lastCached are never planned again.
func (p *Planner) Plan(head source.Head, lastCached uint32, windowStart int64) []Range {
	if head.Sequence <= p.headMargin {
		return nil
	}
	to := head.Sequence - p.headMargin

	closeTime := head.CloseTime
	if closeTime.IsZero() {
		closeTime = time.Now()
	}

	var back uint64
	if elapsed := closeTime.Unix() - windowStart; elapsed > 0 {
		interval := uint64(p.interval.Load())
		back = (uint64(elapsed)*uint64(time.Second) + interval - 1) / interval
	}

	var from uint32 = 1
	if back < uint64(to) {
		from = to - uint32(back)
	}
	if lastCached >= from {
		if lastCached >= to {
			return nil
		}
		from = lastCached + 1
	}

	return split(from, to, p.subRanges)
}

func split(from, to uint32, parts int) []Range {
	if from > to {
		return nil
	}
	span := uint64(to-from) + 1
	size := (span + uint64(parts) - 1) / uint64(parts)

	ranges := make([]Range, 0, parts)
	for i := 0; i < parts; i++ {
		start := uint64(from) + size*uint64(i)
		if start > uint64(to) {
			break
		}
		end := start + size - 1
		if i == parts-1 || end > uint64(to) {
			end = uint64(to)
		}
		ranges = append(ranges, Range{From: uint32(start), To: uint32(end)})
	}
	return ranges
}
