// Package config loads service configuration from an optional YAML file
// with environment-variable overrides. A .env file in the working
// directory is honored for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything cmd/api needs to boot.
type Config struct {
	Addr        string `yaml:"addr"`
	DatabaseDSN string `yaml:"database_dsn"`
	TokenTTL    string `yaml:"token_ttl"`

	RateLimit struct {
		PerSecond int `yaml:"per_second"`
		Burst     int `yaml:"burst"`
	} `yaml:"rate_limit"`

	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
}

// Load reads the optional YAML file at path (empty path skips it),
// then applies LEKHA_* environment overrides. Defaults fill the rest.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{Addr: ":8080"}
	cfg.RateLimit.PerSecond = 50
	cfg.RateLimit.Burst = 100

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("LEKHA_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("LEKHA_PG_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("LEKHA_TOKEN_TTL"); v != "" {
		cfg.TokenTTL = v
	}
	if v := os.Getenv("LEKHA_RATE_PER_SECOND"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("LEKHA_RATE_PER_SECOND: %w", err)
		}
		cfg.RateLimit.PerSecond = n
	}
	if v := os.Getenv("LEKHA_RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("LEKHA_RATE_BURST: %w", err)
		}
		cfg.RateLimit.Burst = n
	}
	if v := os.Getenv("LEKHA_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("LEKHA_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
