package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	driverName     = "mysql"
	configFilePath = "config/config.yaml"
)

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	TLS         Certs    `yaml:"tls"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type RollbarConfig struct {
	Token       string `yaml:"token"`
	Environment string `yaml:"environment"`
}

type Config struct {
	Version string         `yaml:"version"`
	Mode    string         `yaml:"mode"`
	Server  ServerConfig   `yaml:"server"`
	DB      DatabaseConfig `yaml:"database"`
	Redis   RedisConfig    `yaml:"redis"`
	Auth    AuthConfig     `yaml:"auth"`
	Rollbar RollbarConfig  `yaml:"rollbar"`
	Seed    string         `yaml:"seed"`
}

// LoadConfig: YAML を読み、.env / 環境変数の秘密情報で上書きする。
// path が空なら config/config.yaml
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = configFilePath
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// .env は任意
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("APP_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.DB.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("ROLLBAR_TOKEN"); v != "" {
		c.Rollbar.Token = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8443"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Rollbar.Environment == "" {
		c.Rollbar.Environment = c.Mode
	}
}

// Validate: 起動前の最低限チェック
func (c *Config) Validate() error {
	if c.Mode != "dev" && c.Mode != "release" {
		return fmt.Errorf("invalid mode %q (dev|release)", c.Mode)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (or JWT_SECRET) is required")
	}
	if c.Mode == "release" && len(c.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 bytes in release mode")
	}
	return nil
}

func (c DatabaseConfig) dsn(multiStatements bool) string {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.DBName)
	if multiStatements {
		dsn += "&multiStatements=true"
	}
	return dsn
}

func Connect(c DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(driverName, c.dsn(false))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	// 接続プール（合算がMySQLの max_connections を超えないよう配分する）
	db.SetMaxOpenConns(80)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}
