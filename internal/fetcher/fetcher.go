package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Synternet/stellar-price-feeder/internal/cache"
	"github.com/Synternet/stellar-price-feeder/internal/decoder"
	"github.com/Synternet/stellar-price-feeder/internal/metrics"
	"github.com/Synternet/stellar-price-feeder/internal/retry"
	"github.com/Synternet/stellar-price-feeder/pkg/source"
)

const DefaultPageLimit = 200

// Fetcher pages ledger history into the trade cache.
type Fetcher struct {
	history   source.History
	cache     *cache.TradeCache
	logger    *slog.Logger
	pageLimit int
	policy    retry.Policy

	pages        atomic.Uint64
	records      atomic.Uint64
	decodeErrors atomic.Uint64
}

func New(history source.History, c *cache.TradeCache, logger *slog.Logger, pageLimit int, policy retry.Policy) *Fetcher {
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		history:   history,
		cache:     c,
		logger:    logger,
		pageLimit: pageLimit,
		policy:    policy,
	}
}

// FetchAll fetches all ranges concurrently and fails on the first range that cannot be fetched.
// The last cached ledger advances only when every range was fetched.
func (f *Fetcher) FetchAll(ctx context.Context, ranges []Range) error {
	highest := make([]uint32, len(ranges))
	group, ctx := errgroup.WithContext(ctx)
	for i, r := range ranges {
		i, r := i, r
		group.Go(func() error {
			ledger, err := f.fetchRange(ctx, r)
			highest[i] = ledger
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	var top uint32
	for _, ledger := range highest {
		top = max(top, ledger)
	}
	f.advance(top)
	return nil
}

// FetchRange pages through one range in cursor order.
func (f *Fetcher) FetchRange(ctx context.Context, r Range) error {
	ledger, err := f.fetchRange(ctx, r)
	if err != nil {
		return err
	}
	f.advance(ledger)
	return nil
}

// fetchRange returns the highest ledger stored from the range.
func (f *Fetcher) fetchRange(ctx context.Context, r Range) (uint32, error) {
	req := source.PageRequest{StartLedger: r.From, Limit: f.pageLimit}
	ingested := 0
	var highest uint32

	for {
		page, err := retry.Value(ctx, f.policy, f.logger, "history page", func(ctx context.Context) (source.Page, error) {
			return f.history.FetchPage(ctx, req)
		})
		if err != nil {
			return 0, fmt.Errorf("range %d-%d: %w", r.From, r.To, err)
		}
		f.pages.Add(1)
		metrics.HistoryPages.Inc()

		if len(page.Records) == 0 {
			break
		}

		passed := false
		for _, rec := range page.Records {
			if rec.Ledger > r.To {
				passed = true
				break
			}
			if rec.Ledger < r.From || !rec.Successful {
				continue
			}
			f.ingest(rec)
			ingested++
			highest = max(highest, rec.Ledger)
		}

		if passed || len(page.Records) < f.pageLimit || page.Cursor == "" {
			break
		}
		req = source.PageRequest{Cursor: page.Cursor, Limit: f.pageLimit}
	}

	f.logger.Debug("FETCH: range done", "from", r.From, "to", r.To, "records", ingested)
	return highest, nil
}

func (f *Fetcher) advance(ledger uint32) {
	if ledger == 0 {
		return
	}
	f.cache.Advance(ledger)
	metrics.LastCachedLedger.Set(float64(f.cache.LastCachedLedger()))
}

func (f *Fetcher) ingest(rec source.TxRecord) {
	trades, err := decoder.Decode(rec.Hash, rec.ResultXDR)
	if err != nil {
		f.decodeErrors.Add(1)
		metrics.DecodeErrors.Inc()
		f.logger.Warn("FETCH: skipping undecodable record", "ledger", rec.Ledger, "err", err)
		trades = nil
	}

	if f.cache.AddTransaction(rec.Hash, rec.CreatedAt, trades) {
		f.records.Add(1)
		metrics.HistoryRecords.Inc()
	}
}

func (f *Fetcher) GetStatus() map[string]any {
	return map[string]any{
		"fetcher": map[string]any{
			"pages":         f.pages.Load(),
			"records":       f.records.Load(),
			"decode_errors": f.decodeErrors.Load(),
		},
	}
}
