package types

import (
	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

const PriceType = "price"

type TradeKind uint8

const (
	TradeKindOrderBook TradeKind = iota + 1
	TradeKindPool
)

func (k TradeKind) String() string {
	switch k {
	case TradeKindOrderBook:
		return "orderbook"
	case TradeKindPool:
		return "pool"
	default:
		return "unknown"
	}
}

// Trade is a single matched leg extracted from a transaction result.
// Amounts are in the smallest unit of the respective asset.
type Trade struct {
	AssetSold    Asset       `json:"asset_sold"`
	AssetBought  Asset       `json:"asset_bought"`
	AmountSold   sdkmath.Int `json:"amount_sold"`
	AmountBought sdkmath.Int `json:"amount_bought"`
	Kind         TradeKind   `json:"kind"`
}

type StableParams struct {
	InitialAmp     sdkmath.Int `json:"initial_amp"`
	InitialAmpTime uint64      `json:"initial_amp_time"`
	FutureAmp      sdkmath.Int `json:"future_amp"`
	FutureAmpTime  uint64      `json:"future_amp_time"`
	FeeBps         sdkmath.Int `json:"fee_bps"`
}

// PoolReserves holds reserves of a two-asset pool normalized to a common precision.
// Reserves[0] is always the base asset reserve.
type PoolReserves struct {
	Pool     string         `json:"pool"`
	Asset    Asset          `json:"asset"`
	Reserves [2]sdkmath.Int `json:"reserves"`
	Stable   *StableParams  `json:"stable,omitempty"`
	Provider string         `json:"provider,omitempty"`
}

type PricePoint struct {
	Asset     Asset       `json:"asset"`
	Timestamp int64       `json:"ts"`
	Price     sdkmath.Int `json:"price"`
	Type      string      `json:"type"`
}

// Decimal renders the fixed-point price with the given number of decimals.
func (p PricePoint) Decimal(decimals int32) decimal.Decimal {
	if p.Price.IsNil() {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(p.Price.BigInt(), -decimals)
}
