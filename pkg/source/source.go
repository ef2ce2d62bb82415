package source

import (
	"context"
	"time"

	"github.com/stellar/go/xdr"
)

// TxRecord is one transaction as returned by a ledger history source.
type TxRecord struct {
	Hash       string
	CreatedAt  int64 // unix seconds
	Ledger     uint32
	Successful bool
	// ResultXDR is a base64 encoded TransactionResult.
	ResultXDR string
}

// PageRequest selects either the first page starting at StartLedger or a continuation page by Cursor.
type PageRequest struct {
	StartLedger uint32
	Cursor      string
	Limit       int
}

type Page struct {
	Records []TxRecord
	Cursor  string
}

type History interface {
	// FetchPage returns records in ledger order. An empty Cursor means no continuation is available.
	FetchPage(ctx context.Context, req PageRequest) (Page, error)
}

type Head struct {
	Sequence  uint32
	CloseTime time.Time
}

type HeadLedger interface {
	HeadLedger(ctx context.Context) (Head, error)
}

// ContractInstance is the raw instance storage of one contract.
type ContractInstance struct {
	Address string
	Storage xdr.ScMap
}

type ContractState interface {
	LoadContractInstances(ctx context.Context, addresses []string) ([]ContractInstance, error)
}
