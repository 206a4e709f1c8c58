package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.RateLimit.PerSecond != 50 || cfg.RateLimit.Burst != 100 {
		t.Fatalf("rate limit defaults = %+v", cfg.RateLimit)
	}
}

func TestYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lekha.yaml")
	content := []byte("addr: \":9090\"\nkafka:\n  brokers: [\"k1:9092\"]\n  topic: ledger-events\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEKHA_ADDR", ":7070")
	t.Setenv("LEKHA_KAFKA_BROKERS", "k2:9092, k3:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	// env wins over file
	if cfg.Addr != ":7070" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k3:9092" {
		t.Fatalf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Topic != "ledger-events" {
		t.Fatalf("topic = %q", cfg.Kafka.Topic)
	}
}

func TestBadFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
