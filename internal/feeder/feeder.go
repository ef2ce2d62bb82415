package feeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Synternet/stellar-price-feeder/internal/cache"
	"github.com/Synternet/stellar-price-feeder/internal/composer"
	"github.com/Synternet/stellar-price-feeder/internal/fetcher"
	"github.com/Synternet/stellar-price-feeder/internal/metrics"
	"github.com/Synternet/stellar-price-feeder/internal/pools"
	"github.com/Synternet/stellar-price-feeder/internal/retry"
	"github.com/Synternet/stellar-price-feeder/internal/volume"
	"github.com/Synternet/stellar-price-feeder/pkg/feeder"
	"github.com/Synternet/stellar-price-feeder/pkg/source"
	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

var _ feeder.Feeder = (*Feeder)(nil)

// Feeder runs aggregations over a long lived trade cache.
type Feeder struct {
	// runs share the cache; the fetch phase of one run must precede its read phase
	running sync.Mutex

	head      source.HeadLedger
	cache     *cache.TradeCache
	fetcher   *fetcher.Fetcher
	planner   *fetcher.Planner
	providers []pools.Provider
	history   *PriceHistory

	logger    *slog.Logger
	policy    retry.Policy
	pageLimit int
	retention time.Duration
	now       func() time.Time

	runs        atomic.Uint64
	failedRuns  atomic.Uint64
	poolErrors  atomic.Uint64
	lastHead    atomic.Uint32
	lastRunTime atomic.Int64
}

func New(history source.History, head source.HeadLedger, c *cache.TradeCache, opts ...Option) (*Feeder, error) {
	if history == nil || head == nil {
		return nil, &types.ConfigurationError{Field: "source", Reason: "ledger history source is required"}
	}
	if c == nil {
		return nil, &types.ConfigurationError{Field: "cache", Reason: "trade cache is required"}
	}

	ret := &Feeder{
		head:      head,
		cache:     c,
		history:   NewPriceHistory(),
		logger:    slog.Default(),
		policy:    retry.DefaultPolicy(),
		retention: DefaultHistoryRetention,
		now:       time.Now,
	}
	for _, o := range opts {
		o(ret)
	}
	if ret.planner == nil {
		ret.planner = fetcher.NewPlanner(fetcher.DefaultLedgerInterval, fetcher.DefaultSubRanges, fetcher.DefaultHeadMargin)
	}
	ret.fetcher = fetcher.New(history, c, ret.logger, ret.pageLimit, ret.policy)

	return ret, nil
}

func (f *Feeder) Validate(req feeder.Request) error {
	if req.PeriodLength <= 0 {
		return &types.ConfigurationError{Field: "period_length", Reason: "must be positive"}
	}
	if req.PeriodStart <= 0 {
		return &types.ConfigurationError{Field: "period_start", Reason: "must be positive"}
	}
	if req.PeriodCount <= 0 {
		return &types.ConfigurationError{Field: "period_count", Reason: "must be positive"}
	}
	if err := volume.ValidateAssets(req.Base, req.Assets); err != nil {
		return err
	}

	bucket := f.cache.Period()
	if req.PeriodLength%bucket != 0 {
		return &types.ConfigurationError{Field: "period_length", Reason: fmt.Sprintf("%d is not a multiple of the cache period %d", req.PeriodLength, bucket)}
	}
	if buckets := int64(req.PeriodCount+1) * req.PeriodLength / bucket; buckets > int64(f.cache.Capacity()) {
		return &types.ConfigurationError{Field: "period_count", Reason: fmt.Sprintf("window needs %d buckets, cache holds %d", buckets, f.cache.Capacity())}
	}
	// ledgers before the last cached one are never fetched again
	if from, found := f.cache.CoveredFrom(); found && windowStart(req) < from {
		return &types.ConfigurationError{Field: "period_start", Reason: fmt.Sprintf("window from %d predates cached trades from %d", windowStart(req), from)}
	}
	return nil
}

// windowStart includes one extra period before the window to absorb the ledger interval estimation error.
func windowStart(req feeder.Request) int64 {
	return req.PeriodStart - req.PeriodLength
}

// Aggregate fetches trades and pool state for the window and composes the price table.
// A failing trades branch fails the run. A failing pools branch only removes pool contributions.
func (f *Feeder) Aggregate(ctx context.Context, req feeder.Request) ([][]types.PricePoint, error) {
	if err := f.Validate(req); err != nil {
		return nil, err
	}

	f.running.Lock()
	defer f.running.Unlock()

	started := time.Now()
	f.runs.Add(1)

	var reserves []types.PoolReserves
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return f.fetchTrades(gctx, req)
	})
	group.Go(func() error {
		reserves = f.collectPools(gctx, req)
		return nil
	})
	if err := group.Wait(); err != nil {
		f.failedRuns.Add(1)
		metrics.Runs.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("aggregation of %d periods from %d failed: %w", req.PeriodCount, req.PeriodStart, err)
	}

	dex := make([][]*volume.AssetVolume, req.PeriodCount)
	for i := range dex {
		from := req.PeriodStart + int64(i)*req.PeriodLength
		acc, err := volume.New(req.Base, req.Assets)
		if err != nil {
			return nil, err
		}
		admitted := acc.ProcessTrades(f.cache.TradesInRange(from, from+req.PeriodLength))
		f.logger.Debug("FEEDER: Period accumulated", "from", from, "trades", admitted)
		dex[i] = acc.Volumes()
	}

	// pool state is a current snapshot and only describes the last period
	poolVolumes := make([][]*volume.AssetVolume, req.PeriodCount)
	if len(reserves) > 0 {
		acc, err := pools.NewAccumulator(req.Base, req.Assets, f.now())
		if err != nil {
			return nil, err
		}
		added := acc.ProcessReserves(reserves, f.logger)
		f.logger.Debug("FEEDER: Pools accumulated", "pools", len(reserves), "added", added, "skipped", acc.Skipped())
		poolVolumes[req.PeriodCount-1] = acc.Volumes()
	}

	ret := composer.ComposeSeries(req.PeriodStart, req.PeriodLength, req.PeriodCount, req.Assets, dex, poolVolumes)

	evicted := f.cache.EvictExpired()
	f.lastRunTime.Store(f.now().Unix())
	metrics.Runs.WithLabelValues("ok").Inc()
	metrics.RunDuration.Observe(time.Since(started).Seconds())
	metrics.LastCachedLedger.Set(float64(f.cache.LastCachedLedger()))
	f.logger.Info("FEEDER: Aggregated", "base", req.Base, "assets", len(req.Assets), "periods", req.PeriodCount, "from", req.PeriodStart, "evicted", evicted, "took", time.Since(started))

	return ret, nil
}

func (f *Feeder) fetchTrades(ctx context.Context, req feeder.Request) error {
	head, err := retry.Value(ctx, f.policy, f.logger, "head_ledger", f.head.HeadLedger)
	if err != nil {
		return err
	}
	f.lastHead.Store(head.Sequence)
	metrics.HeadLedger.Set(float64(head.Sequence))
	f.planner.ObserveHead(head)

	ranges := f.planner.Plan(head, f.cache.LastCachedLedger(), windowStart(req))
	if len(ranges) == 0 {
		f.logger.Debug("FEEDER: Nothing to fetch", "head", head.Sequence, "last_cached", f.cache.LastCachedLedger())
		return nil
	}
	f.logger.Debug("FEEDER: Fetching", "head", head.Sequence, "ranges", ranges)
	if err := f.fetcher.FetchAll(ctx, ranges); err != nil {
		return err
	}
	if f.cache.LastCachedLedger() > 0 {
		f.cache.Cover(windowStart(req))
	}
	return nil
}

func (f *Feeder) collectPools(ctx context.Context, req feeder.Request) []types.PoolReserves {
	if len(f.providers) == 0 {
		return nil
	}
	reserves, err := pools.CollectAll(ctx, f.providers, req.Base, req.Assets, f.policy, f.logger)
	if err != nil {
		f.poolErrors.Add(1)
		if errors.Is(err, context.Canceled) {
			f.logger.Debug("FEEDER: Pool collection cancelled")
		} else {
			f.logger.Warn("FEEDER: Pool data incomplete", "err", err)
		}
	}
	return reserves
}

// Run aggregates the window and records the result in the price history.
func (f *Feeder) Run(ctx context.Context, req feeder.Request) ([][]types.PricePoint, error) {
	ret, err := f.Aggregate(ctx, req)
	if err != nil {
		return nil, err
	}

	recorded := f.history.Record(ret)
	pruned := 0
	if f.retention > 0 {
		pruned = f.history.Prune(f.now().Add(-f.retention).Unix())
	}
	f.logger.Debug("FEEDER: History updated", "recorded", recorded, "pruned", pruned)
	return ret, nil
}

func (f *Feeder) History() *PriceHistory {
	return f.history
}

func (f *Feeder) GetStatus() map[string]any {
	status := map[string]any{
		"runs":            f.runs.Load(),
		"failed_runs":     f.failedRuns.Load(),
		"pool_errors":     f.poolErrors.Load(),
		"head_ledger":     f.lastHead.Load(),
		"last_run":        f.lastRunTime.Load(),
		"ledger_interval": f.planner.LedgerInterval().String(),
		"history":         f.history.Len(),
		"cache":           f.cache.GetStatus(),
		"fetcher":         f.fetcher.GetStatus(),
	}
	for _, p := range f.providers {
		if s, ok := p.(interface{ GetStatus() map[string]any }); ok {
			status[p.Name()] = s.GetStatus()
		}
	}
	return status
}
