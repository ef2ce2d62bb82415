package repository

// TxHistory mirrors the stellar-core txhistory table. Only the columns the feeder reads are mapped.
type TxHistory struct {
	TxID      string `gorm:"column:txid;primaryKey"`
	LedgerSeq uint32 `gorm:"column:ledgerseq;index:histbyseq"`
	TxIndex   uint32 `gorm:"column:txindex"`
	TxResult  string `gorm:"column:txresult"`
}

func (TxHistory) TableName() string { return "txhistory" }

// LedgerHeader mirrors the stellar-core ledgerheaders table.
type LedgerHeader struct {
	LedgerHash string `gorm:"column:ledgerhash;primaryKey"`
	LedgerSeq  uint32 `gorm:"column:ledgerseq;uniqueIndex:ledgersbyseq"`
	CloseTime  int64  `gorm:"column:closetime"`
}

func (LedgerHeader) TableName() string { return "ledgerheaders" }

type txRow struct {
	TxID      string `gorm:"column:txid"`
	LedgerSeq uint32 `gorm:"column:ledgerseq"`
	TxIndex   uint32 `gorm:"column:txindex"`
	TxResult  string `gorm:"column:txresult"`
	CloseTime int64  `gorm:"column:closetime"`
}
