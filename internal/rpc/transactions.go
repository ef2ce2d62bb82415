package rpc

import (
	"context"
	"fmt"

	"github.com/Synternet/stellar-price-feeder/pkg/source"
)

const statusSuccess = "SUCCESS"

var _ source.History = (*Client)(nil)

type pagination struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type getTransactionsParams struct {
	StartLedger uint32      `json:"startLedger,omitempty"`
	Pagination  *pagination `json:"pagination,omitempty"`
}

type transactionInfo struct {
	Status    string    `json:"status"`
	TxHash    string    `json:"txHash"`
	Ledger    flexInt64 `json:"ledger"`
	CreatedAt flexInt64 `json:"createdAt"`
	ResultXDR string    `json:"resultXdr"`
}

type getTransactionsResult struct {
	Transactions []transactionInfo `json:"transactions"`
	Cursor       string            `json:"cursor"`
	LatestLedger flexInt64         `json:"latestLedger"`
}

// FetchPage calls getTransactions. The first page is selected by ledger, later pages by cursor.
func (c *Client) FetchPage(ctx context.Context, req source.PageRequest) (source.Page, error) {
	params := getTransactionsParams{Pagination: &pagination{Limit: req.Limit}}
	if req.Cursor != "" {
		params.Pagination.Cursor = req.Cursor
	} else {
		if req.StartLedger == 0 {
			return source.Page{}, fmt.Errorf("getTransactions: start ledger or cursor required")
		}
		params.StartLedger = req.StartLedger
	}

	var res getTransactionsResult
	if err := c.call(ctx, "getTransactions", params, &res); err != nil {
		return source.Page{}, err
	}

	page := source.Page{
		Records: make([]source.TxRecord, len(res.Transactions)),
		Cursor:  res.Cursor,
	}
	for i, tx := range res.Transactions {
		page.Records[i] = source.TxRecord{
			Hash:       tx.TxHash,
			CreatedAt:  int64(tx.CreatedAt),
			Ledger:     uint32(tx.Ledger),
			Successful: tx.Status == statusSuccess,
			ResultXDR:  tx.ResultXDR,
		}
	}
	return page, nil
}
