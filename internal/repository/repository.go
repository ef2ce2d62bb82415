package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/stellar/go/xdr"
	"gorm.io/gorm"

	"github.com/Synternet/stellar-price-feeder/pkg/source"
)

var (
	_ source.History    = (*Repository)(nil)
	_ source.HeadLedger = (*Repository)(nil)
)

// Repository reads ledger history straight from a stellar-core database.
type Repository struct {
	logger *slog.Logger
	dbCon  *gorm.DB
}

func New(db *gorm.DB, logger *slog.Logger) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		logger: logger,
		dbCon:  db,
	}, nil
}

// Migrate creates the history tables. stellar-core owns the schema in production.
func (r *Repository) Migrate() error {
	if err := r.dbCon.AutoMigrate(&LedgerHeader{}); err != nil {
		return fmt.Errorf("LedgerHeader table migrate error: %w", err)
	}
	if err := r.dbCon.AutoMigrate(&TxHistory{}); err != nil {
		return fmt.Errorf("TxHistory table migrate error: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	db, err := r.dbCon.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// FetchPage returns transactions ordered by (ledgerseq, txindex).
// The cursor is "<ledgerseq>:<txindex>" of the last returned transaction.
func (r *Repository) FetchPage(ctx context.Context, req source.PageRequest) (source.Page, error) {
	query := r.dbCon.WithContext(ctx).
		Table("txhistory").
		Select("txhistory.txid, txhistory.ledgerseq, txhistory.txindex, txhistory.txresult, ledgerheaders.closetime").
		Joins("JOIN ledgerheaders ON ledgerheaders.ledgerseq = txhistory.ledgerseq")

	switch {
	case req.Cursor != "":
		seq, idx, err := parseCursor(req.Cursor)
		if err != nil {
			return source.Page{}, err
		}
		query = query.Where("txhistory.ledgerseq > ? OR (txhistory.ledgerseq = ? AND txhistory.txindex > ?)", seq, seq, idx)
	case req.StartLedger > 0:
		query = query.Where("txhistory.ledgerseq >= ?", req.StartLedger)
	default:
		return source.Page{}, fmt.Errorf("start ledger or cursor required")
	}

	var rows []txRow
	result := query.Order("txhistory.ledgerseq, txhistory.txindex").Limit(req.Limit).Scan(&rows)
	if result.Error != nil {
		return source.Page{}, fmt.Errorf("fetching txhistory: %w", result.Error)
	}

	page := source.Page{Records: make([]source.TxRecord, 0, len(rows))}
	for _, row := range rows {
		page.Records = append(page.Records, r.record(row))
	}
	if len(rows) > 0 {
		last := rows[len(rows)-1]
		page.Cursor = formatCursor(last.LedgerSeq, last.TxIndex)
	}
	return page, nil
}

// record unwraps the stored TransactionResultPair. Undecodable rows are passed on as failed
// transactions so that the decoder does not see them.
func (r *Repository) record(row txRow) source.TxRecord {
	rec := source.TxRecord{
		Hash:      row.TxID,
		CreatedAt: row.CloseTime,
		Ledger:    row.LedgerSeq,
	}

	var pair xdr.TransactionResultPair
	if err := xdr.SafeUnmarshalBase64(row.TxResult, &pair); err != nil {
		r.logger.Warn("REPOSITORY: Bogus txresult", "tx", row.TxID, "err", err)
		return rec
	}
	result, err := xdr.MarshalBase64(pair.Result)
	if err != nil {
		r.logger.Warn("REPOSITORY: Cannot encode result", "tx", row.TxID, "err", err)
		return rec
	}
	rec.ResultXDR = result
	rec.Successful = pair.Result.Successful()
	return rec
}

func (r *Repository) HeadLedger(ctx context.Context) (source.Head, error) {
	var header LedgerHeader
	result := r.dbCon.WithContext(ctx).Model(&LedgerHeader{}).Order("ledgerseq DESC").Limit(1).Find(&header)
	if result.Error != nil {
		return source.Head{}, fmt.Errorf("fetching ledger header: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return source.Head{}, fmt.Errorf("no ledger headers")
	}
	return source.Head{
		Sequence:  header.LedgerSeq,
		CloseTime: time.Unix(header.CloseTime, 0),
	}, nil
}

func formatCursor(seq, idx uint32) string {
	return fmt.Sprintf("%d:%d", seq, idx)
}

func parseCursor(cursor string) (uint32, uint32, error) {
	seqStr, idxStr, found := strings.Cut(cursor, ":")
	if !found {
		return 0, 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	seq, err := strconv.ParseUint(seqStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cursor %q: %w", cursor, err)
	}
	idx, err := strconv.ParseUint(idxStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cursor %q: %w", cursor, err)
	}
	return uint32(seq), uint32(idx), nil
}
