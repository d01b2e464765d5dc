// Package config loads runtime settings from the environment and optional
// .env / config.env files. Environment variables take precedence.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	DB        DBConfig
	Backup    BackupConfig
	Reconcile ReconcileConfig
}

// AppConfig holds general settings.
type AppConfig struct {
	Env      string // development, production
	LogLevel string // trace, debug, info, warn, error
}

type HTTPConfig struct {
	Host string
	Port int
}

// Addr returns the listen address (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DBConfig points at the SQLite file holding the ledger snapshot.
type DBConfig struct {
	Path string
}

// ReconcileConfig drives the periodic debt reconciliation.
type ReconcileConfig struct {
	Enabled  bool
	Interval time.Duration
}

// BackupConfig configures the S3-compatible cloud backup (R2, MinIO, S3).
type BackupConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Timeout   time.Duration
}

// Validate reports missing settings when backup is enabled.
func (c BackupConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	var missing []string
	if c.Bucket == "" {
		missing = append(missing, "BACKUP_BUCKET")
	}
	if c.AccessKey == "" {
		missing = append(missing, "BACKUP_ACCESS_KEY")
	}
	if c.SecretKey == "" {
		missing = append(missing, "BACKUP_SECRET_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("backup enabled but %s not set", strings.Join(missing, ", "))
	}
	return nil
}

// Load reads configuration. Expected names: APP_ENV, LOG_LEVEL, HTTP_PORT,
// DB_PATH, BACKUP_BUCKET, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // optional

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		DB: DBConfig{
			Path: getString(v, "DB_PATH", "ledger.db"),
		},
		Backup: BackupConfig{
			Enabled:   getBool(v, "BACKUP_ENABLED", false),
			Endpoint:  getString(v, "BACKUP_ENDPOINT", ""),
			Region:    getString(v, "BACKUP_REGION", "auto"),
			Bucket:    getString(v, "BACKUP_BUCKET", ""),
			AccessKey: getString(v, "BACKUP_ACCESS_KEY", ""),
			SecretKey: getString(v, "BACKUP_SECRET_KEY", ""),
			Timeout:   time.Duration(getInt(v, "BACKUP_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Reconcile: ReconcileConfig{
			Enabled:  getBool(v, "RECONCILE_ENABLED", true),
			Interval: time.Duration(getInt(v, "RECONCILE_INTERVAL_MINUTES", 60)) * time.Minute,
		},
	}

	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return nil, fmt.Errorf("invalid HTTP_PORT %d", cfg.HTTP.Port)
	}
	if cfg.Reconcile.Interval <= 0 {
		return nil, fmt.Errorf("invalid RECONCILE_INTERVAL_MINUTES")
	}
	if err := cfg.Backup.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return def
}
