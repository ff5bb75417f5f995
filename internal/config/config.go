// Package config はアプリケーション設定を読み込みます。
// 優先順位: 環境変数 > TOMLファイル > デフォルト値
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultSecretKey    = "dev-secret-key-change-in-production"
	DefaultConfigFile   = "taskmanager.toml"
	DefaultTasksPerPage = 10
)

// Config はサーバー全体の設定です。
type Config struct {
	SecretKey       string   `toml:"secret-key"`
	Port            string   `toml:"port"`
	GinMode         string   `toml:"gin-mode"`
	TasksPerPage    int      `toml:"tasks-per-page"`
	SessionLifetime duration `toml:"session-lifetime"`
	SecureCookies   bool     `toml:"secure-cookies"`
	CORSOrigins     []string `toml:"cors-origins"`
	Database        Database `toml:"database"`
}

// Database はデータベース接続設定です。
type Database struct {
	Driver string `toml:"driver"`
	URL    string `toml:"url"`
	User   string `toml:"user"`
	Pass   string `toml:"pass"`
	Host   string `toml:"host"`
	Port   string `toml:"port"`
	Name   string `toml:"name"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Lifetime はセッションの有効期間を返します。
func (c *Config) Lifetime() time.Duration {
	return c.SessionLifetime.Duration
}

// Default はデフォルト設定を返します。
func Default() *Config {
	return &Config{
		SecretKey:       DefaultSecretKey,
		Port:            "8080",
		TasksPerPage:    DefaultTasksPerPage,
		SessionLifetime: duration{time.Hour},
		CORSOrigins:     []string{"http://localhost:3000"},
		Database: Database{
			Driver: "mysql",
			Host:   "127.0.0.1",
			Port:   "3306",
			Name:   "tasks",
		},
	}
}

// Load は .env、TOMLファイル、環境変数の順に設定を読み込みます。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	path := os.Getenv("TASKMGR_CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.SecretKey == DefaultSecretKey {
		log.Println("WARNING: SECRET_KEY is not set; using the development default")
	}
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("config file %s: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.SecretKey, "SECRET_KEY")
	setString(&c.Port, "PORT")
	setString(&c.GinMode, "GIN_MODE")
	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Pass, "DB_PASS")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Port, "DB_PORT")
	setString(&c.Database.Name, "DB_NAME")

	if v := os.Getenv("TASKS_PER_PAGE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid TASKS_PER_PAGE %q", v)
		}
		c.TasksPerPage = n
	}
	if v := os.Getenv("SESSION_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SESSION_LIFETIME %q: %w", v, err)
		}
		c.SessionLifetime = duration{d}
	}
	if v := os.Getenv("SECURE_COOKIES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SECURE_COOKIES %q: %w", v, err)
		}
		c.SecureCookies = b
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORSOrigins = origins
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
