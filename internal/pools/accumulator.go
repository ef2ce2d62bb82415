package pools

import (
	"errors"
	"log/slog"
	"time"

	"github.com/Synternet/stellar-price-feeder/internal/metrics"
	"github.com/Synternet/stellar-price-feeder/internal/stableswap"
	"github.com/Synternet/stellar-price-feeder/internal/volume"
	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

// Accumulator folds pool reserves into per-asset volume sums.
type Accumulator struct {
	volumes *volume.Accumulator
	now     time.Time
	skipped int
}

// NewAccumulator reads ramping amplification coefficients at the given time.
func NewAccumulator(base types.Asset, assets []types.Asset, now time.Time) (*Accumulator, error) {
	volumes, err := volume.New(base, assets)
	if err != nil {
		return nil, err
	}
	return &Accumulator{volumes: volumes, now: now}, nil
}

// Add reports whether the pool contributed. Degenerate pools return *types.InvalidPoolStateError.
func (a *Accumulator) Add(r types.PoolReserves) (bool, error) {
	for _, reserve := range r.Reserves {
		if reserve.IsNil() || !reserve.IsPositive() {
			return false, &types.InvalidPoolStateError{Pool: r.Pool, Reason: "zero reserve"}
		}
	}

	if r.Stable == nil {
		return a.volumes.AddVolumes(r.Asset, r.Reserves[0], r.Reserves[1]), nil
	}

	vol, quote, err := stableswap.ImpliedVolumes(r.Reserves, *r.Stable, a.now)
	if err != nil {
		var invalid *types.InvalidPoolStateError
		if errors.As(err, &invalid) && invalid.Pool == "" {
			invalid.Pool = r.Pool
		}
		return false, err
	}
	return a.volumes.AddVolumes(r.Asset, vol, quote), nil
}

// ProcessReserves returns the number of contributing pools.
func (a *Accumulator) ProcessReserves(reserves []types.PoolReserves, logger *slog.Logger) int {
	added := 0
	for _, r := range reserves {
		ok, err := a.Add(r)
		if err != nil {
			a.skipped++
			metrics.PoolsSkipped.WithLabelValues(providerLabel(r)).Inc()
			logger.Debug("POOLS: Pool skipped", "pool", r.Pool, "asset", r.Asset, "err", err)
			continue
		}
		if ok {
			added++
		}
	}
	return added
}

// Skipped returns the number of pools rejected by ProcessReserves.
func (a *Accumulator) Skipped() int {
	return a.skipped
}

func providerLabel(r types.PoolReserves) string {
	if r.Provider == "" {
		return "unknown"
	}
	return r.Provider
}

func (a *Accumulator) Volumes() []*volume.AssetVolume {
	return a.volumes.Volumes()
}
