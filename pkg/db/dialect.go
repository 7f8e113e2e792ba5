package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func Dialect(cfg Config) (gorm.Dialector, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.Host,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.Port,
			cfg.SSLMode,
		)), nil
	case "sqlite":
		name := cfg.Name
		if name == "" {
			name = "waitlist.db"
		}
		return sqlite.Open(sqliteDSN(name)), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.Type)
	}
}

// sqliteParams make writers wait for the lock instead of failing with
// SQLITE_BUSY. Transactions take the write lock at BEGIN so a read followed by
// a write never has to upgrade. WAL keeps readers off the writer's lock.
const sqliteParams = "_busy_timeout=5000&_txlock=immediate&_journal_mode=WAL"

func sqliteDSN(name string) string {
	if strings.Contains(name, "_txlock=") {
		return name
	}
	if strings.Contains(name, "?") {
		return name + "&" + sqliteParams
	}
	return name + "?" + sqliteParams
}

// SupportsRowLocks reports whether SELECT ... FOR UPDATE is available.
func SupportsRowLocks(db *gorm.DB) bool {
	if db == nil || db.Dialector == nil {
		return false
	}
	return db.Dialector.Name() != "sqlite"
}
