package feeder

import (
	"reflect"
	"testing"

	sdkmath "cosmossdk.io/math"

	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

func point(asset types.Asset, ts, price int64) types.PricePoint {
	return types.PricePoint{Asset: asset, Timestamp: ts, Price: sdkmath.NewInt(price), Type: types.PriceType}
}

func timestamps(points []types.PricePoint) []int64 {
	ret := make([]int64, len(points))
	for i, p := range points {
		ret[i] = p.Timestamp
	}
	return ret
}

func TestPriceHistory_Set(t *testing.T) {
	tests := []struct {
		name   string
		points []types.PricePoint
		want   []int64
		last   int64
	}{
		{
			"in order",
			[]types.PricePoint{point(usd, 60, 1), point(usd, 120, 2), point(usd, 180, 3)},
			[]int64{60, 120, 180},
			3,
		},
		{
			"reverse order",
			[]types.PricePoint{point(usd, 180, 3), point(usd, 120, 2), point(usd, 60, 1)},
			[]int64{60, 120, 180},
			3,
		},
		{
			"overwrite",
			[]types.PricePoint{point(usd, 120, 3), point(usd, 120, 2)},
			[]int64{120},
			2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPriceHistory()
			for _, p := range tt.points {
				h.Set(p)
			}
			got := h.prices[usd]
			if !reflect.DeepEqual(timestamps(got), tt.want) {
				t.Errorf("PriceHistory.Set() = %v, want %v", timestamps(got), tt.want)
			}
			latest, found := h.Latest(usd)
			if !found || latest.Price.Int64() != tt.last {
				t.Errorf("PriceHistory.Latest() = %v, want %v", latest.Price, tt.last)
			}
		})
	}
}

func TestPriceHistory_Nearest(t *testing.T) {
	h := NewPriceHistory()
	h.Set(point(usd, 120, 3))
	h.Set(point(usd, 180, 2))
	h.Set(point(usd, 60, 10))

	tests := []struct {
		name string
		ts   int64
		want []int64
	}{
		{"exact", 60, []int64{60}},
		{"outside before", 0, []int64{60}},
		{"outside after", 600, []int64{180}},
		{"inside", 150, []int64{120, 180}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := h.Nearest(usd, tt.ts)
			if !reflect.DeepEqual(timestamps(got), tt.want) {
				t.Errorf("PriceHistory.Nearest() = %v, want %v", timestamps(got), tt.want)
			}
		})
	}

	if got := h.Nearest(eur, 60); got != nil {
		t.Errorf("PriceHistory.Nearest() = %v, want nil", got)
	}
}

func TestPriceHistory_Prune(t *testing.T) {
	h := NewPriceHistory()
	for _, ts := range []int64{60, 120, 180, 240} {
		h.Set(point(usd, ts, ts))
	}
	h.Set(point(eur, 60, 1))

	if got := h.Prune(180); got != 3 {
		t.Errorf("PriceHistory.Prune() = %v, want 3", got)
	}
	if got := timestamps(h.prices[usd]); !reflect.DeepEqual(got, []int64{180, 240}) {
		t.Errorf("PriceHistory.Prune() left %v, want [180 240]", got)
	}
	if _, found := h.Latest(eur); found {
		t.Errorf("PriceHistory.Latest() found pruned asset")
	}
	if got := h.Assets(); !reflect.DeepEqual(got, []types.Asset{usd}) {
		t.Errorf("PriceHistory.Assets() = %v, want [%v]", got, usd)
	}
}

func TestPriceHistory_Record(t *testing.T) {
	h := NewPriceHistory()
	table := [][]types.PricePoint{
		{point(usd, 60, 20_000_000), point(eur, 60, 0)},
		{point(usd, 120, 0), point(eur, 120, 5)},
	}
	if got := h.Record(table); got != 2 {
		t.Errorf("PriceHistory.Record() = %v, want 2", got)
	}
	if got := h.Len(); got != 2 {
		t.Errorf("PriceHistory.Len() = %v, want 2", got)
	}
}
