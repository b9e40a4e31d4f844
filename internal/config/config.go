// Package config loads process settings from the environment.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr  string
	DatabaseURL string

	// sessions; both nil disables login
	CookieHashKey  []byte
	CookieBlockKey []byte

	PaymentEncKey       []byte
	PaymentGatewayURL   string
	PaymentGatewayToken string

	HoldTTL         time.Duration
	SlotLockTimeout time.Duration
	SweepInterval   time.Duration

	DefaultTotalTables  int
	DefaultDepositCents int64
	DefaultTimezone     string
	DefaultSlotTimes    []string

	RabbitMQURL    string
	EventsExchange string

	// AdminToken enables the settlement routes for operators.
	AdminToken string

	CORSOrigins []string

	LogLevel  string
	LogPretty bool
}

const defaultSlotTimes = "17:00,17:30,18:00,18:30,19:00,19:30,20:00,20:30,21:00,21:30"

// Load reads an optional .env file and then the environment. Variables already
// set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the environment. Every missing or invalid value
// is reported in a single error.
func FromEnv() (Config, error) {
	var problems []string
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	cfg := Config{
		ListenAddr:          getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		PaymentGatewayURL:   os.Getenv("PAYMENT_GATEWAY_URL"),
		PaymentGatewayToken: os.Getenv("PAYMENT_GATEWAY_TOKEN"),
		DefaultTimezone:     getenv("DEFAULT_TIMEZONE", "America/New_York"),
		DefaultSlotTimes:    splitCSV(getenv("DEFAULT_SLOT_TIMES", defaultSlotTimes)),
		RabbitMQURL:         os.Getenv("RABBITMQ_URL"),
		EventsExchange:      getenv("EVENTS_EXCHANGE", "tablehold.events"),
		AdminToken:          os.Getenv("ADMIN_TOKEN"),
		CORSOrigins:         splitCSV(getenv("CORS_ORIGINS", "http://localhost:5173")),
		LogLevel:            getenv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.HoldTTL, err = duration("HOLD_TTL", "10m"); err != nil {
		bad("%v", err)
	}
	if cfg.SlotLockTimeout, err = duration("SLOT_LOCK_TIMEOUT", "5s"); err != nil {
		bad("%v", err)
	}

	sweep, err := strconv.Atoi(getenv("HOLD_SWEEP_SECONDS", "30"))
	if err != nil || sweep < 1 {
		bad("invalid HOLD_SWEEP_SECONDS")
	}
	cfg.SweepInterval = time.Duration(sweep) * time.Second

	tables, err := strconv.Atoi(getenv("DEFAULT_TOTAL_TABLES", "10"))
	if err != nil || tables < 0 {
		bad("invalid DEFAULT_TOTAL_TABLES")
	}
	cfg.DefaultTotalTables = tables

	deposit, err := strconv.ParseInt(getenv("DEFAULT_DEPOSIT_CENTS", "2500"), 10, 64)
	if err != nil || deposit < 0 {
		bad("invalid DEFAULT_DEPOSIT_CENTS")
	}
	cfg.DefaultDepositCents = deposit

	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		bad("invalid DEFAULT_TIMEZONE %q", cfg.DefaultTimezone)
	}

	if cfg.LogPretty, err = strconv.ParseBool(getenv("LOG_PRETTY", "false")); err != nil {
		bad("invalid LOG_PRETTY")
	}

	hashKey := os.Getenv("COOKIE_HASH_KEY")
	blockKey := os.Getenv("COOKIE_BLOCK_KEY")
	switch {
	case hashKey == "" && blockKey == "":
	case hashKey == "" || blockKey == "":
		bad("COOKIE_HASH_KEY and COOKIE_BLOCK_KEY must be set together")
	default:
		if cfg.CookieHashKey, err = decodeB64(hashKey); err != nil {
			bad("COOKIE_HASH_KEY: %v", err)
		}
		if cfg.CookieBlockKey, err = decodeB64(blockKey); err != nil {
			bad("COOKIE_BLOCK_KEY: %v", err)
		}
	}

	if v := os.Getenv("PAYMENT_ENC_KEY"); v != "" {
		if cfg.PaymentEncKey, err = decodeB64(v); err != nil {
			bad("PAYMENT_ENC_KEY: %v", err)
		} else if len(cfg.PaymentEncKey) != 32 {
			bad("PAYMENT_ENC_KEY must decode to 32 bytes")
		}
	} else if cfg.DatabaseURL != "" {
		bad("PAYMENT_ENC_KEY is required when DATABASE_URL is set")
	}

	if len(problems) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

// Persistent reports whether a database backs the engine.
func (c Config) Persistent() bool { return c.DatabaseURL != "" }

// SessionsEnabled reports whether cookie keys were configured.
func (c Config) SessionsEnabled() bool { return len(c.CookieHashKey) > 0 }

func duration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenv(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// decodeB64 accepts either a base64 value or a path to a file holding one,
// for secret mounts.
func decodeB64(s string) ([]byte, error) {
	if b, err := os.ReadFile(s); err == nil {
		s = string(b)
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
