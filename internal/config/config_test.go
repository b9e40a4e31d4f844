package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"LISTEN_ADDR", "DATABASE_URL", "COOKIE_HASH_KEY", "COOKIE_BLOCK_KEY", "PAYMENT_ENC_KEY",
	"PAYMENT_GATEWAY_URL", "PAYMENT_GATEWAY_TOKEN", "HOLD_TTL", "SLOT_LOCK_TIMEOUT",
	"HOLD_SWEEP_SECONDS", "DEFAULT_TOTAL_TABLES", "DEFAULT_DEPOSIT_CENTS", "DEFAULT_TIMEZONE",
	"DEFAULT_SLOT_TIMES", "RABBITMQ_URL", "EVENTS_EXCHANGE", "CORS_ORIGINS", "ADMIN_TOKEN", "LOG_LEVEL", "LOG_PRETTY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func key(n int) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", n)))
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.HoldTTL != 10*time.Minute || cfg.SlotLockTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SweepInterval != 30*time.Second || cfg.DefaultTotalTables != 10 || cfg.DefaultDepositCents != 2500 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.DefaultSlotTimes) != 10 || cfg.DefaultSlotTimes[0] != "17:00" {
		t.Fatalf("unexpected slot times: %v", cfg.DefaultSlotTimes)
	}
	if cfg.Persistent() || cfg.SessionsEnabled() {
		t.Fatalf("expected in-memory config without sessions")
	}
	if cfg.AdminToken != "" {
		t.Fatalf("expected settlement routes disabled by default")
	}
	if cfg.EventsExchange != "tablehold.events" {
		t.Fatalf("unexpected exchange %q", cfg.EventsExchange)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOLD_TTL", "90s")
	t.Setenv("DEFAULT_SLOT_TIMES", "18:00, 19:00")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("COOKIE_HASH_KEY", key(32))
	t.Setenv("COOKIE_BLOCK_KEY", key(32))
	t.Setenv("DATABASE_URL", "postgres://localhost/tablehold")
	t.Setenv("PAYMENT_ENC_KEY", key(32))
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.HoldTTL != 90*time.Second {
		t.Fatalf("expected 90s ttl, got %v", cfg.HoldTTL)
	}
	if len(cfg.DefaultSlotTimes) != 2 || cfg.DefaultSlotTimes[1] != "19:00" {
		t.Fatalf("unexpected slot times: %v", cfg.DefaultSlotTimes)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("unexpected origins: %v", cfg.CORSOrigins)
	}
	if !cfg.Persistent() || !cfg.SessionsEnabled() || !cfg.LogPretty {
		t.Fatalf("unexpected flags: %+v", cfg)
	}
	if len(cfg.PaymentEncKey) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(cfg.PaymentEncKey))
	}
}

func TestFromEnv_CollectsProblems(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOLD_TTL", "soon")
	t.Setenv("HOLD_SWEEP_SECONDS", "0")
	t.Setenv("COOKIE_HASH_KEY", key(32))
	t.Setenv("DATABASE_URL", "postgres://localhost/tablehold")
	t.Setenv("DEFAULT_TIMEZONE", "Mars/Olympus")

	_, err := FromEnv()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"HOLD_TTL", "HOLD_SWEEP_SECONDS", "COOKIE_BLOCK_KEY", "PAYMENT_ENC_KEY", "DEFAULT_TIMEZONE"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err)
		}
	}
}

func TestFromEnv_ShortPaymentKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("PAYMENT_ENC_KEY", key(16))

	if _, err := FromEnv(); err == nil || !strings.Contains(err.Error(), "32 bytes") {
		t.Fatalf("expected key length error, got %v", err)
	}
}

func TestDecodeB64_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hash.key")
	if err := os.WriteFile(path, []byte(key(32)+"\n"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	b, err := decodeB64(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(b) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(b))
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("LISTEN_ADDR")
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("LISTEN_ADDR=:9090\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("LISTEN_ADDR") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("expected :9090, got %q", cfg.ListenAddr)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored, got %v", err)
	}
}
