package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"echogate/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const pingTimeout = 5 * time.Second

// schemas holds the chat_logs DDL per driver. Statements must be idempotent.
var schemas = map[string][]string{
	"sqlite3": {
		`CREATE TABLE IF NOT EXISTS chat_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			model TEXT NOT NULL,
			user_message TEXT NOT NULL,
			assistant_message TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_logs_created ON chat_logs (created_at)`,
	},
	"mysql": {
		`CREATE TABLE IF NOT EXISTS chat_logs (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			model VARCHAR(255) NOT NULL,
			user_message MEDIUMTEXT NOT NULL,
			assistant_message MEDIUMTEXT NOT NULL,
			created_at DATETIME(6) NOT NULL,
			PRIMARY KEY (id),
			KEY idx_chat_logs_created (created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	"postgres": {
		`CREATE TABLE IF NOT EXISTS chat_logs (
			id BIGSERIAL PRIMARY KEY,
			model TEXT NOT NULL,
			user_message TEXT NOT NULL,
			assistant_message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_logs_created ON chat_logs (created_at)`,
	},
}

// Driver normalises the configured database type to a driver name.
func Driver(dbType string) (string, error) {
	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	case "mysql":
		return "mysql", nil
	case "postgres", "postgresql":
		return "postgres", nil
	}
	return "", fmt.Errorf("unsupported driver: %s", dbType)
}

// Open connects to the database configured for dbType and pings it.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	driver, err := Driver(dbType)
	if err != nil {
		return nil, err
	}
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		dbCfg, ok = cfg.Databases[driver]
	}
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	dsn, err := buildDSN(driver, dbCfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// buildDSN prefers an explicit DSN and otherwise assembles one from the
// host fields. For sqlite it also creates the parent directory.
func buildDSN(driver string, c config.DatabaseConfig) (string, error) {
	if driver == "sqlite3" {
		if c.DSN == "" {
			return "", fmt.Errorf("sqlite dsn must be provided")
		}
		if path := sqliteFilePath(c.DSN); path != "" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return "", fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		return c.DSN, nil
	}
	if c.DSN != "" {
		return c.DSN, nil
	}

	params := c.Params
	if driver == "mysql" {
		if params == "" {
			params = "parseTime=true"
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", c.Username, c.Password, c.Host, c.Port, c.DBName, params), nil
	}
	if params == "" {
		params = "sslmode=disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s", c.Username, c.Password, c.Host, c.Port, c.DBName, params), nil
}

func sqliteFilePath(dsn string) string {
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	return path
}

// Migrate ensures the chat_logs table and its index are present.
func Migrate(db *sql.DB, dbType string) error {
	driver, err := Driver(dbType)
	if err != nil {
		return fmt.Errorf("unsupported driver for migration: %s", dbType)
	}
	for _, stmt := range schemas[driver] {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
