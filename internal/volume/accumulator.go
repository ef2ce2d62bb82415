package volume

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

// MinVolume is the smallest leg, in base units of either asset, admitted into an accumulation.
const MinVolume = 100

var minVolume = sdkmath.NewInt(MinVolume)

// AssetVolume accumulates traded volume of one tracked asset against the base asset.
type AssetVolume struct {
	Asset       types.Asset
	Index       int
	Volume      sdkmath.Int
	QuoteVolume sdkmath.Int
}

func NewAssetVolume(asset types.Asset, index int) *AssetVolume {
	return &AssetVolume{
		Asset:       asset,
		Index:       index,
		Volume:      sdkmath.ZeroInt(),
		QuoteVolume: sdkmath.ZeroInt(),
	}
}

// Add admits the contribution only if both legs reach MinVolume.
func (v *AssetVolume) Add(volume, quoteVolume sdkmath.Int) bool {
	if volume.IsNil() || quoteVolume.IsNil() || volume.LT(minVolume) || quoteVolume.LT(minVolume) {
		return false
	}
	v.Volume = v.Volume.Add(volume)
	v.QuoteVolume = v.QuoteVolume.Add(quoteVolume)
	return true
}

// Merge adds already admitted sums of another accumulation of the same asset.
func (v *AssetVolume) Merge(o *AssetVolume) {
	if o == nil {
		return
	}
	v.Volume = v.Volume.Add(o.Volume)
	v.QuoteVolume = v.QuoteVolume.Add(o.QuoteVolume)
}

func (v *AssetVolume) Price() sdkmath.Int {
	return VWAP(v.Volume, v.QuoteVolume, DefaultDecimals)
}

func (v *AssetVolume) String() string {
	return fmt.Sprintf("%s[%d]{volume=%s quote=%s}", v.Asset, v.Index, v.Volume, v.QuoteVolume)
}

// Accumulator keeps one AssetVolume per tracked asset, ordered by the asset's position.
type Accumulator struct {
	base  types.Asset
	slots []*AssetVolume
	index map[types.Asset]int
}

func ValidateAssets(base types.Asset, assets []types.Asset) error {
	if len(assets) == 0 {
		return &types.ConfigurationError{Field: "assets", Reason: "no tracked assets"}
	}
	seen := make(map[types.Asset]struct{}, len(assets))
	for _, a := range assets {
		if a == base {
			return &types.ConfigurationError{Field: "assets", Reason: fmt.Sprintf("base asset %s is tracked", a)}
		}
		if _, dup := seen[a]; dup {
			return &types.ConfigurationError{Field: "assets", Reason: fmt.Sprintf("duplicate asset %s", a)}
		}
		seen[a] = struct{}{}
	}
	return nil
}

func New(base types.Asset, assets []types.Asset) (*Accumulator, error) {
	if err := ValidateAssets(base, assets); err != nil {
		return nil, err
	}
	ret := &Accumulator{
		base:  base,
		slots: make([]*AssetVolume, len(assets)),
		index: make(map[types.Asset]int, len(assets)),
	}
	for i, a := range assets {
		ret.slots[i] = NewAssetVolume(a, i)
		ret.index[a] = i
	}
	return ret, nil
}

func (a *Accumulator) Base() types.Asset {
	return a.base
}

// AddVolumes credits an asset; untracked assets are ignored.
func (a *Accumulator) AddVolumes(asset types.Asset, volume, quoteVolume sdkmath.Int) bool {
	i, found := a.index[asset]
	if !found {
		return false
	}
	return a.slots[i].Add(volume, quoteVolume)
}

// AddTrade credits the non-base side of a trade. The base leg is the volume.
func (a *Accumulator) AddTrade(t types.Trade) bool {
	switch {
	case t.AssetSold == a.base:
		return a.AddVolumes(t.AssetBought, t.AmountSold, t.AmountBought)
	case t.AssetBought == a.base:
		return a.AddVolumes(t.AssetSold, t.AmountBought, t.AmountSold)
	default:
		return false
	}
}

// ProcessTrades returns the number of admitted trades.
func (a *Accumulator) ProcessTrades(trades []types.Trade) int {
	admitted := 0
	for _, t := range trades {
		if a.AddTrade(t) {
			admitted++
		}
	}
	return admitted
}

// Volumes returns accumulations in asset order.
func (a *Accumulator) Volumes() []*AssetVolume {
	ret := make([]*AssetVolume, len(a.slots))
	copy(ret, a.slots)
	return ret
}
