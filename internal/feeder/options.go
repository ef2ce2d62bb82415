package feeder

import (
	"log/slog"
	"time"

	"github.com/Synternet/stellar-price-feeder/internal/fetcher"
	"github.com/Synternet/stellar-price-feeder/internal/pools"
	"github.com/Synternet/stellar-price-feeder/internal/retry"
)

const DefaultHistoryRetention = 48 * time.Hour

type Option func(*Feeder)

func WithLogger(logger *slog.Logger) Option {
	return func(f *Feeder) {
		f.logger = logger
	}
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(f *Feeder) {
		f.policy = p
	}
}

func WithPageLimit(limit int) Option {
	return func(f *Feeder) {
		f.pageLimit = limit
	}
}

func WithPlanner(p *fetcher.Planner) Option {
	return func(f *Feeder) {
		f.planner = p
	}
}

func WithProviders(providers ...pools.Provider) Option {
	return func(f *Feeder) {
		f.providers = append(f.providers, providers...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(f *Feeder) {
		f.now = now
	}
}

// WithHistoryRetention bounds how long Run keeps composed prices.
func WithHistoryRetention(d time.Duration) Option {
	return func(f *Feeder) {
		f.retention = d
	}
}
