package feeder

import (
	"slices"
	"strings"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

// PriceHistory keeps composed price points per asset.
type PriceHistory struct {
	sync.Mutex
	// the array of prices should be sorted by Timestamp
	prices map[types.Asset][]types.PricePoint
}

func NewPriceHistory() *PriceHistory {
	return &PriceHistory{
		prices: make(map[types.Asset][]types.PricePoint),
	}
}

func compareTimestamp(a, b types.PricePoint) int {
	switch {
	case a.Timestamp < b.Timestamp:
		return -1
	case a.Timestamp > b.Timestamp:
		return 1
	default:
		return 0
	}
}

// Set inserts a price point keeping the order. A point with the same timestamp is replaced.
func (p *PriceHistory) Set(price types.PricePoint) {
	p.Lock()
	defer p.Unlock()

	arr := p.prices[price.Asset]
	index, found := slices.BinarySearchFunc(arr, price, compareTimestamp)
	if found {
		arr[index] = price
		return
	}
	p.prices[price.Asset] = slices.Insert(arr, index, price)
}

// Record stores every point of a composed table. Zero prices mean no data and are skipped.
func (p *PriceHistory) Record(table [][]types.PricePoint) int {
	added := 0
	for _, period := range table {
		for _, price := range period {
			if price.Price.IsNil() || price.Price.IsZero() {
				continue
			}
			p.Set(price)
			added++
		}
	}
	return added
}

func (p *PriceHistory) Latest(asset types.Asset) (types.PricePoint, bool) {
	p.Lock()
	defer p.Unlock()

	arr := p.prices[asset]
	if len(arr) == 0 {
		return types.PricePoint{}, false
	}
	return arr[len(arr)-1], true
}

// Nearest returns the exact match or the two points surrounding the timestamp.
// Outside of the stored range only the closest point is returned.
func (p *PriceHistory) Nearest(asset types.Asset, ts int64) []types.PricePoint {
	p.Lock()
	defer p.Unlock()

	arr := p.prices[asset]
	if len(arr) == 0 {
		return nil
	}

	index, found := slices.BinarySearchFunc(arr, types.PricePoint{Timestamp: ts}, compareTimestamp)
	if index == 0 || found {
		return []types.PricePoint{arr[index]}
	}

	N := len(arr)
	if index >= N {
		return []types.PricePoint{arr[N-1]}
	}

	return []types.PricePoint{
		arr[index-1],
		arr[index],
	}
}

// Prune drops points older than minTimestamp and returns how many were removed.
func (p *PriceHistory) Prune(minTimestamp int64) int {
	p.Lock()
	defer p.Unlock()

	counter := 0
	for asset, arr := range p.prices {
		index, _ := slices.BinarySearchFunc(arr, types.PricePoint{Timestamp: minTimestamp}, compareTimestamp)
		if index == 0 {
			continue
		}
		counter += index
		if index == len(arr) {
			delete(p.prices, asset)
			continue
		}
		p.prices[asset] = slices.Clone(arr[index:])
	}
	return counter
}

func (p *PriceHistory) Assets() []types.Asset {
	p.Lock()
	defer p.Unlock()

	ret := maps.Keys(p.prices)
	slices.SortFunc(ret, func(a, b types.Asset) int {
		return strings.Compare(a.String(), b.String())
	})
	return ret
}

func (p *PriceHistory) Len() int {
	p.Lock()
	defer p.Unlock()

	total := 0
	for _, arr := range p.prices {
		total += len(arr)
	}
	return total
}
