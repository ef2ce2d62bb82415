package composer

import (
	"github.com/Synternet/stellar-price-feeder/internal/volume"
	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

// Compose merges DEX and pool accumulations of one period into one price point per tracked asset.
// Either side may be nil. Slots without volume get price 0.
func Compose(ts int64, assets []types.Asset, dex, pool []*volume.AssetVolume) []types.PricePoint {
	merged := make([]*volume.AssetVolume, len(assets))
	for i, a := range assets {
		merged[i] = volume.NewAssetVolume(a, i)
	}
	for _, side := range [][]*volume.AssetVolume{dex, pool} {
		for _, v := range side {
			if v == nil || v.Index < 0 || v.Index >= len(merged) || merged[v.Index].Asset != v.Asset {
				continue
			}
			merged[v.Index].Merge(v)
		}
	}

	ret := make([]types.PricePoint, len(merged))
	for i, v := range merged {
		ret[i] = types.PricePoint{
			Asset:     v.Asset,
			Timestamp: ts,
			Price:     v.Price(),
			Type:      types.PriceType,
		}
	}
	return ret
}

// ComposeSeries composes count consecutive periods starting at start. Missing accumulations count as empty.
func ComposeSeries(start, period int64, count int, assets []types.Asset, dex, pool [][]*volume.AssetVolume) [][]types.PricePoint {
	ret := make([][]types.PricePoint, count)
	for i := range ret {
		var d, p []*volume.AssetVolume
		if i < len(dex) {
			d = dex[i]
		}
		if i < len(pool) {
			p = pool[i]
		}
		ret[i] = Compose(start+int64(i)*period, assets, d, p)
	}
	return ret
}
