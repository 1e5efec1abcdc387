package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Env            string        `env:"ENV" envDefault:"development"`
	ServerPort     string        `env:"SERVER_PORT" envDefault:"8080"`
	DBDriver       string        `env:"DB_DRIVER" envDefault:"postgres"`
	DBHost         string        `env:"DB_HOST" envDefault:"localhost"`
	DBPort         string        `env:"DB_PORT" envDefault:"5432"`
	DBUser         string        `env:"DB_USER" envDefault:"postgres"`
	DBPassword     string        `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName         string        `env:"DB_NAME" envDefault:"gonasi"`
	DBSSLMode      string        `env:"DB_SSLMODE" envDefault:"disable"`
	SQLitePath     string        `env:"SQLITE_PATH" envDefault:"gonasi.db"`
	JWTSecret      string        `env:"JWT_SECRET" envDefault:"super-secret-key-change-me"`
	JWTTTL         time.Duration `env:"JWT_TTL" envDefault:"24h"`
	UploadSecret   string        `env:"UPLOAD_SECRET" envDefault:"upload-secret-change-me"`
	UploadURLTTL   time.Duration `env:"UPLOAD_URL_TTL" envDefault:"15m"`
	StorageBaseURL string        `env:"STORAGE_BASE_URL" envDefault:"http://localhost:9000/uploads"`
	KESPerUSD      string        `env:"KES_PER_USD" envDefault:"130"`
	CORSOrigins    []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("environment variables are invalid: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DBDriver)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if strings.TrimSpace(c.UploadSecret) == "" {
		return errors.New("UPLOAD_SECRET is required")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %s", c.JWTTTL)
	}
	if c.UploadURLTTL <= 0 {
		return fmt.Errorf("UPLOAD_URL_TTL must be positive, got %s", c.UploadURLTTL)
	}
	if rate, err := c.KESRate(); err != nil || !rate.IsPositive() {
		return fmt.Errorf("KES_PER_USD must be a positive number, got %q", c.KESPerUSD)
	}
	return nil
}

// KESRate is the number of Kenyan shillings per US dollar.
func (c *Config) KESRate() (decimal.Decimal, error) {
	return decimal.NewFromString(c.KESPerUSD)
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev"
}
