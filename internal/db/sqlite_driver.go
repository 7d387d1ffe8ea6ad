package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

const (
	// SQLiteDriverName is the project-specific SQLCipher driver with custom SQL functions.
	SQLiteDriverName = "sqlite3_notekeep"
)

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("now_ms", sqliteNowMillis, false); err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "already exists") {
					return nil
				}
				return fmt.Errorf("register now_ms SQL function: %w", err)
			}
			return nil
		},
	})
}

// sqliteNowMillis backs the now_ms() SQL function used to stamp kv rows.
func sqliteNowMillis() int64 {
	return time.Now().UnixMilli()
}
