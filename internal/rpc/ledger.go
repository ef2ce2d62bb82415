package rpc

import (
	"context"
	"time"

	"github.com/Synternet/stellar-price-feeder/pkg/source"
)

var _ source.HeadLedger = (*Client)(nil)

type getLatestLedgerResult struct {
	ID              string    `json:"id"`
	ProtocolVersion flexInt64 `json:"protocolVersion"`
	Sequence        flexInt64 `json:"sequence"`
	CloseTime       flexInt64 `json:"closeTime"`
}

// HeadLedger calls getLatestLedger. Servers that do not report the close time get the local clock.
func (c *Client) HeadLedger(ctx context.Context) (source.Head, error) {
	var res getLatestLedgerResult
	if err := c.call(ctx, "getLatestLedger", nil, &res); err != nil {
		return source.Head{}, err
	}

	closeTime := time.Now()
	if res.CloseTime > 0 {
		closeTime = time.Unix(int64(res.CloseTime), 0)
	}
	return source.Head{
		Sequence:  uint32(res.Sequence),
		CloseTime: closeTime,
	}, nil
}
