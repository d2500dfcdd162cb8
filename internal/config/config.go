package config

import (
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Ledger    LedgerConfig    `yaml:"ledger"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// LedgerConfig holds the money-movement knobs. MinPayout is kept as a string
// in yaml (decimal has no yaml codec) and parsed in Load.
type LedgerConfig struct {
	MinPayout       string `yaml:"min_payout"`
	DefaultCurrency string `yaml:"default_currency"`
}

// MinPayoutAmount parses the configured payout floor.
func (l LedgerConfig) MinPayoutAmount() decimal.Decimal {
	d, err := decimal.NewFromString(l.MinPayout)
	if err != nil {
		return decimal.NewFromInt(10)
	}
	return d
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if cfg.Ledger.DefaultCurrency == "" {
		cfg.Ledger.DefaultCurrency = "USD"
	}
	if cfg.Ledger.MinPayout == "" {
		cfg.Ledger.MinPayout = "10"
	}
	return &cfg, nil
}
