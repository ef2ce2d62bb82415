package sqlite

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New opens a stellar-core SQLite database.
// In case in-memory DB is needed(e.g. testing), "file:<name>?mode=memory&cache=shared" can be used instead of a database filename.
func New(dbname string) (*gorm.DB, error) {
	dbCon, err := gorm.Open(sqlite.Open(dbname), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})

	if err != nil {
		return nil, err
	}

	return dbCon, nil
}
