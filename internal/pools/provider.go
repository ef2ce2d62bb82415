package pools

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Synternet/stellar-price-feeder/internal/metrics"
	"github.com/Synternet/stellar-price-feeder/internal/retry"
	"github.com/Synternet/stellar-price-feeder/pkg/source"
	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

// Candidate is a pool pairing the base asset with one tracked asset.
type Candidate struct {
	Address string
	Asset   types.Asset
	Stable  bool
}

// Provider is one AMM family: it discovers pools, loads their state and extracts normalized reserves.
type Provider interface {
	Name() string
	ListCandidatePools(ctx context.Context, base types.Asset, assets []types.Asset) ([]Candidate, error)
	LoadPoolState(ctx context.Context, addresses []string) ([]source.ContractInstance, error)
	ExtractReserves(instance source.ContractInstance, base types.Asset, assets []types.Asset) (types.PoolReserves, error)
}

// Collect returns reserves of every candidate pool of the provider. Pools that fail extraction are skipped.
func Collect(ctx context.Context, p Provider, base types.Asset, assets []types.Asset, policy retry.Policy, logger *slog.Logger) ([]types.PoolReserves, error) {
	candidates, err := retry.Value(ctx, policy, logger, p.Name()+".list", func(ctx context.Context) ([]Candidate, error) {
		return p.ListCandidatePools(ctx, base, assets)
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		logger.Debug("POOLS: No candidate pools", "provider", p.Name())
		return nil, nil
	}

	addresses := make([]string, len(candidates))
	byAddress := make(map[string]Candidate, len(candidates))
	for i, c := range candidates {
		addresses[i] = c.Address
		byAddress[c.Address] = c
	}

	instances, err := retry.Value(ctx, policy, logger, p.Name()+".state", func(ctx context.Context) ([]source.ContractInstance, error) {
		return p.LoadPoolState(ctx, addresses)
	})
	if err != nil {
		return nil, err
	}

	ret := make([]types.PoolReserves, 0, len(instances))
	for _, instance := range instances {
		reserves, err := p.ExtractReserves(instance, base, assets)
		if err == nil {
			err = checkKind(byAddress[instance.Address], reserves)
		}
		if err != nil {
			metrics.PoolsSkipped.WithLabelValues(p.Name()).Inc()
			logger.Debug("POOLS: Skipping pool", "provider", p.Name(), "pool", instance.Address, "err", err)
			continue
		}
		reserves.Provider = p.Name()
		ret = append(ret, reserves)
	}

	logger.Debug("POOLS: Collected", "provider", p.Name(), "candidates", len(candidates), "loaded", len(instances), "extracted", len(ret))
	return ret, nil
}

// checkKind rejects reserves whose curve differs from the one the pool was listed with.
func checkKind(c Candidate, r types.PoolReserves) error {
	switch {
	case c.Stable && r.Stable == nil:
		return &types.InvalidPoolStateError{Pool: r.Pool, Reason: "stable pool without amplification parameters"}
	case !c.Stable && r.Stable != nil:
		return &types.InvalidPoolStateError{Pool: r.Pool, Reason: "constant product pool with amplification parameters"}
	}
	return nil
}

// CollectAll runs Collect for every provider. A failing provider is logged and contributes nothing.
func CollectAll(ctx context.Context, providers []Provider, base types.Asset, assets []types.Asset, policy retry.Policy, logger *slog.Logger) ([]types.PoolReserves, error) {
	var (
		ret  []types.PoolReserves
		errs []error
	)
	for _, p := range providers {
		reserves, err := Collect(ctx, p, base, assets, policy, logger)
		if err != nil {
			logger.Warn("POOLS: Provider failed", "provider", p.Name(), "err", err)
			errs = append(errs, err)
			continue
		}
		ret = append(ret, reserves...)
	}
	return ret, errors.Join(errs...)
}
