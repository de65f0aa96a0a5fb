package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"API_ADDR", "PORTAL_MESSAGE_LIMIT", "REDIS_URL", "BLOB_USE_SSL", "BLOB_PRESIGN_TTL"} {
		t.Setenv(key, "")
	}
	cfg := fromEnv()
	if cfg.Addr != ":8790" || cfg.MessageLimit != 50 || cfg.RedisURL != "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.BlobUseSSL || cfg.BlobPresignTTL != 15*time.Minute {
		t.Fatalf("unexpected blob defaults: %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORTAL_MESSAGE_LIMIT", "20")
	t.Setenv("PORTAL_ACCOUNT_CACHE_TTL", "90s")
	t.Setenv("BLOB_USE_SSL", "false")
	t.Setenv("PORTAL_WRITE_RETRIES", "many")

	cfg := fromEnv()
	if cfg.MessageLimit != 20 {
		t.Fatalf("MessageLimit = %d, want 20", cfg.MessageLimit)
	}
	if cfg.AccountCacheTTL != 90*time.Second {
		t.Fatalf("AccountCacheTTL = %v, want 90s", cfg.AccountCacheTTL)
	}
	if cfg.BlobUseSSL {
		t.Fatal("expected BLOB_USE_SSL=false to apply")
	}
	if cfg.WriteRetries != 3 {
		t.Fatalf("WriteRetries = %d, want fallback 3", cfg.WriteRetries)
	}
}
