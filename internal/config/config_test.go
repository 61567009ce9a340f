package config

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/catalog"
)

func TestParseIDList(t *testing.T) {
	tests := []struct {
		in   string
		want []int64
	}{
		{"", nil},
		{"1", []int64{1}},
		{"1, 2 ,3", []int64{1, 2, 3}},
		{"1,,abc,4", []int64{1, 4}},
		{"-100500", []int64{-100500}},
	}

	for _, tt := range tests {
		got := parseIDList(tt.in)
		if len(got) != len(tt.want) {
			t.Fatalf("parseIDList(%q) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseIDList(%q)[%d] = %d, want %d", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_TELEGRAM_IDS", "10,20")
	t.Setenv("WALLET_BTC", "bc1qexample")
	t.Setenv("POLL_TIMEOUT_SECONDS", "5")
	t.Setenv("MAX_CONCURRENT_UPDATES", "0")
	t.Setenv("WEBHOOK_URL", "")
	t.Setenv("WEBAPP_SECRET", "")

	cfg := Load()

	if cfg.BotToken != "123:abc" {
		t.Errorf("BotToken = %q", cfg.BotToken)
	}
	if cfg.WebAppSecret != "123:abc" {
		t.Errorf("WebAppSecret should fall back to bot token, got %q", cfg.WebAppSecret)
	}
	if !cfg.IsAdmin(20) || cfg.IsAdmin(30) {
		t.Errorf("IsAdmin mismatch for %v", cfg.AdminTelegramIDs)
	}
	if addr, ok := cfg.Wallets.Address(catalog.CurrencyBTC); !ok || addr != "bc1qexample" {
		t.Errorf("BTC wallet = %q, %v", addr, ok)
	}
	if cfg.PollTimeout != 5*time.Second {
		t.Errorf("PollTimeout = %v", cfg.PollTimeout)
	}
	if cfg.MaxConcurrent != 1 {
		t.Errorf("MaxConcurrent = %d, want clamp to 1", cfg.MaxConcurrent)
	}
	if !cfg.UsePolling() {
		t.Error("expected polling without WEBHOOK_URL")
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	if got := getEnvInt("SOME_INT", 7); got != 7 {
		t.Errorf("getEnvInt fallback = %d, want 7", got)
	}
	t.Setenv("SOME_INT", "42")
	if got := getEnvInt("SOME_INT", 7); got != 42 {
		t.Errorf("getEnvInt = %d, want 42", got)
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := &Config{StoreDriver: "mongo", JWTSecret: "x"}
	cfg.Validate(zap.NewNop())
	if cfg.StoreDriver != "postgres" {
		t.Errorf("StoreDriver = %q, want postgres", cfg.StoreDriver)
	}
}
