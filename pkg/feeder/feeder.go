package feeder

import (
	"context"
	"time"

	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

type Request struct {
	Base         types.Asset   `json:"base"`
	Assets       []types.Asset `json:"assets"`
	PeriodStart  int64         `json:"period_start"`
	PeriodLength int64         `json:"period_length"`
	PeriodCount  int           `json:"period_count"`
}

type Feeder interface {
	// Aggregate returns a [PeriodCount][len(Assets)] price table. Slots without data carry a zero price.
	Aggregate(ctx context.Context, req Request) ([][]types.PricePoint, error)

	// GetStatus used for telemetry and will return a map of status variables
	GetStatus() map[string]any
}

// LastPeriods builds a request over the count most recent periods that are complete at now.
func LastPeriods(base types.Asset, assets []types.Asset, period time.Duration, count int, now time.Time) Request {
	length := int64(period / time.Second)
	var start int64
	if length > 0 {
		start = now.Unix()/length*length - int64(count)*length
	}
	return Request{
		Base:         base,
		Assets:       assets,
		PeriodStart:  start,
		PeriodLength: length,
		PeriodCount:  count,
	}
}
