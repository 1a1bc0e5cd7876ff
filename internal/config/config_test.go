package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("SUBMIT_GRACE_SECONDS", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.StorageDriver != StorageDriverPostgres {
		t.Errorf("StorageDriver = %q, want %q", cfg.StorageDriver, StorageDriverPostgres)
	}
	if cfg.SubmitGracePeriod != 2*time.Second {
		t.Errorf("SubmitGracePeriod = %v, want 2s", cfg.SubmitGracePeriod)
	}
	if cfg.Kafka.Enabled() {
		t.Error("Kafka should be disabled without brokers")
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("SUBMIT_GRACE_SECONDS", "5")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/exams")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Errorf("StorageDriver = %q", cfg.StorageDriver)
	}
	if cfg.SubmitGracePeriod != 5*time.Second {
		t.Errorf("SubmitGracePeriod = %v", cfg.SubmitGracePeriod)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("Brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.Database.DSN() != "postgres://u:p@db/exams" {
		t.Errorf("DSN = %q", cfg.Database.DSN())
	}
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "mongo")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
