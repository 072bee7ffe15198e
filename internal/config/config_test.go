package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"EDISCOVERY_DATA_ROOT", "EDISCOVERY_POLICY_PATH", "EDISCOVERY_WORKERS",
		"EDISCOVERY_BATCH_SIZE", "EDISCOVERY_ONLINE_MODE",
		"EDISCOVERY_PRIVILEGE_THRESHOLD_HIGH", "EDISCOVERY_PRIVILEGE_THRESHOLD_LOW",
		"EDISCOVERY_PRIVILEGE_REASONING_EFFORT", "EDISCOVERY_PRIVILEGE_LOG_FULL_COT",
		"EDISCOVERY_BREAKER_FAILURE_THRESHOLD", "EDISCOVERY_BREAKER_COOLDOWN_SEC",
		"EDISCOVERY_SEARCH_RRF_K", "EDISCOVERY_VAULT_REDIS_ADDR", "EDISCOVERY_VAULT_KEY",
		"GOOGLE_CLOUD_PROJECT", "VERTEX_AI_LOCATION", "VERTEX_AI_MODEL",
		"VERTEX_AI_EMBEDDING_MODEL", "DOCUMENT_AI_PROCESSOR_ID", "DOCUMENT_AI_LOCATION",
		"DATABASE_URL",
	} {
		os.Unsetenv(key)
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("EDISCOVERY_DATA_ROOT", "/tmp/ediscovery-data")
	t.Setenv("EDISCOVERY_POLICY_PATH", "/tmp/policy.txt")
}

func TestLoad_MissingDataRoot(t *testing.T) {
	clearEnv(t)
	t.Setenv("EDISCOVERY_POLICY_PATH", "/tmp/policy.txt")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing EDISCOVERY_DATA_ROOT")
	}
}

func TestLoad_MissingPolicyPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("EDISCOVERY_DATA_ROOT", "/tmp/ediscovery-data")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing EDISCOVERY_POLICY_PATH")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.BatchSize != 1000 {
		t.Errorf("BatchSize = %d, want 1000", cfg.BatchSize)
	}
	if cfg.OnlineMode {
		t.Errorf("OnlineMode = true, want false")
	}
	if cfg.PrivilegeThresholdHigh != 0.85 {
		t.Errorf("PrivilegeThresholdHigh = %f, want 0.85", cfg.PrivilegeThresholdHigh)
	}
	if cfg.PrivilegeThresholdLow != 0.50 {
		t.Errorf("PrivilegeThresholdLow = %f, want 0.50", cfg.PrivilegeThresholdLow)
	}
	if cfg.PrivilegeReasoningEffort != "dynamic" {
		t.Errorf("PrivilegeReasoningEffort = %q, want %q", cfg.PrivilegeReasoningEffort, "dynamic")
	}
	if cfg.PrivilegeLogFullCoT {
		t.Errorf("PrivilegeLogFullCoT = true, want false")
	}
	if cfg.BreakerFailureThreshold != 5 {
		t.Errorf("BreakerFailureThreshold = %d, want 5", cfg.BreakerFailureThreshold)
	}
	if cfg.BreakerCooldownSec != 60 {
		t.Errorf("BreakerCooldownSec = %d, want 60", cfg.BreakerCooldownSec)
	}
	if cfg.SearchRRFK != 60 {
		t.Errorf("SearchRRFK = %d, want 60", cfg.SearchRRFK)
	}
	if cfg.Workers < 1 {
		t.Errorf("Workers = %d, want >= 1", cfg.Workers)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("EDISCOVERY_BATCH_SIZE", "250")
	t.Setenv("EDISCOVERY_WORKERS", "4")
	t.Setenv("EDISCOVERY_SEARCH_RRF_K", "30")
	t.Setenv("EDISCOVERY_PRIVILEGE_LOG_FULL_COT", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.BatchSize != 250 {
		t.Errorf("BatchSize = %d, want 250", cfg.BatchSize)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if cfg.SearchRRFK != 30 {
		t.Errorf("SearchRRFK = %d, want 30", cfg.SearchRRFK)
	}
	if !cfg.PrivilegeLogFullCoT {
		t.Errorf("PrivilegeLogFullCoT = false, want true")
	}
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("EDISCOVERY_BATCH_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.BatchSize != 1000 {
		t.Errorf("BatchSize = %d, want 1000 (fallback)", cfg.BatchSize)
	}
}

func TestLoad_ThresholdOrderRejected(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("EDISCOVERY_PRIVILEGE_THRESHOLD_LOW", "0.9")
	t.Setenv("EDISCOVERY_PRIVILEGE_THRESHOLD_HIGH", "0.5")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when threshold_low > threshold_high")
	}
}

func TestLoad_OnlineModeRequiresProject(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("EDISCOVERY_ONLINE_MODE", "true")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when online_mode=true without GOOGLE_CLOUD_PROJECT")
	}
}

func TestLoad_ExplicitWorkersZeroRejected(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("EDISCOVERY_WORKERS", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for EDISCOVERY_WORKERS=0")
	}
}
