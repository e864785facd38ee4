package config

import (
	"testing"
	"time"
)

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when JWT_SECRET is empty")
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("SELLER_RESTRICTED_MODE", "")
	t.Setenv("WS_PRESENCE_TTL", "")
	t.Setenv("NOTIFICATION_PURGE_CRON", defaultPurgeCron)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AppEnv != "development" || !cfg.IsDevelopment() {
		t.Fatalf("expected development env, got %q", cfg.AppEnv)
	}
	if !cfg.SellerRestrictedMode {
		t.Fatal("expected seller restricted mode to default to true")
	}
	if cfg.PresenceTTL != time.Minute {
		t.Fatalf("expected presence ttl 1m, got %s", cfg.PresenceTTL)
	}
}

func TestValidateRejectsBadCron(t *testing.T) {
	cfg := &Config{NotificationPurgeCron: "every five minutes", PresenceTTL: time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid cron to be rejected")
	}
}

func TestGetEnvBoolFallsBackOnGarbage(t *testing.T) {
	t.Setenv("ONLYIF_TEST_BOOL", "maybe")
	if got := getEnvBool("ONLYIF_TEST_BOOL", true); !got {
		t.Fatal("expected fallback true")
	}
	t.Setenv("ONLYIF_TEST_BOOL", "off")
	if got := getEnvBool("ONLYIF_TEST_BOOL", true); got {
		t.Fatal("expected false for off")
	}
}
