package database

import (
	"fmt"
	"log"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"mini-task-manager/internal/config"
	"mini-task-manager/internal/repositories"
)

// GetDSN は設定からドライバに応じた接続文字列 (DSN) を構築します。
// DATABASE_URL が指定されていればそれを使います。MySQLの場合は時刻をUTCのtime.Timeで
// 読み込めるよう parseTime と loc を上書きします。
func GetDSN(cfg config.Database) (string, error) {
	switch cfg.Driver {
	case repositories.DriverMySQL:
		mc := mysql.NewConfig()
		if cfg.URL != "" {
			parsed, err := mysql.ParseDSN(cfg.URL)
			if err != nil {
				return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
			}
			mc = parsed
		} else {
			mc.User = cfg.User
			mc.Passwd = cfg.Pass
			mc.Net = "tcp"
			mc.Addr = cfg.Host + ":" + cfg.Port
			mc.DBName = cfg.Name
		}
		mc.ParseTime = true
		mc.Loc = time.UTC
		return mc.FormatDSN(), nil
	case repositories.DriverPostgres:
		if cfg.URL != "" {
			return cfg.URL, nil
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Pass, cfg.Name), nil
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
}

// InitDB はデータベース接続を初期化します。
func InitDB(cfg config.Database) (*sqlx.DB, error) {
	dsn, err := GetDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Printf("Successfully connected to %s database!", cfg.Driver)
	return db, nil
}
