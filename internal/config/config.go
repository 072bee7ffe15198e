// Package config loads the document-processing core's configuration from
// environment variables into a single immutable Config value.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// Config holds all core configuration (spec §6). Immutable after Load
// returns.
type Config struct {
	DataRoot   string
	Workers    int
	BatchSize  int
	OnlineMode bool

	PrivilegeThresholdHigh   float64
	PrivilegeThresholdLow    float64
	PrivilegeReasoningEffort string
	PrivilegeLogFullCoT      bool
	PolicyPath               string

	BreakerFailureThreshold int
	BreakerCooldownSec      int

	SearchRRFK int

	VaultRedisAddr string
	VaultKey       string

	GCPProject       string
	VertexAILocation string
	VertexAIModel    string
	EmbeddingModel   string
	DocAIProcessorID string
	DocAILocation    string

	DatabaseURL string
}

// Load reads configuration from environment variables. data_root and the
// privilege policy path are required; everything else carries the spec's
// documented default.
func Load() (*Config, error) {
	dataRoot := os.Getenv("EDISCOVERY_DATA_ROOT")
	if dataRoot == "" {
		return nil, fmt.Errorf("config.Load: EDISCOVERY_DATA_ROOT is required")
	}

	policyPath := os.Getenv("EDISCOVERY_POLICY_PATH")
	if policyPath == "" {
		return nil, fmt.Errorf("config.Load: EDISCOVERY_POLICY_PATH is required")
	}

	defaultWorkers := runtime.GOMAXPROCS(0) - 1
	if defaultWorkers < 1 {
		defaultWorkers = 1
	}

	cfg := &Config{
		DataRoot:   dataRoot,
		Workers:    envInt("EDISCOVERY_WORKERS", defaultWorkers),
		BatchSize:  envInt("EDISCOVERY_BATCH_SIZE", 1000),
		OnlineMode: envBool("EDISCOVERY_ONLINE_MODE", false),

		PrivilegeThresholdHigh:   envFloat("EDISCOVERY_PRIVILEGE_THRESHOLD_HIGH", 0.85),
		PrivilegeThresholdLow:    envFloat("EDISCOVERY_PRIVILEGE_THRESHOLD_LOW", 0.50),
		PrivilegeReasoningEffort: envStr("EDISCOVERY_PRIVILEGE_REASONING_EFFORT", "dynamic"),
		PrivilegeLogFullCoT:      envBool("EDISCOVERY_PRIVILEGE_LOG_FULL_COT", false),
		PolicyPath:               policyPath,

		BreakerFailureThreshold: envInt("EDISCOVERY_BREAKER_FAILURE_THRESHOLD", 5),
		BreakerCooldownSec:      envInt("EDISCOVERY_BREAKER_COOLDOWN_SEC", 60),

		SearchRRFK: envInt("EDISCOVERY_SEARCH_RRF_K", 60),

		VaultRedisAddr: envStr("EDISCOVERY_VAULT_REDIS_ADDR", ""),
		VaultKey:       envStr("EDISCOVERY_VAULT_KEY", ""),

		GCPProject:       envStr("GOOGLE_CLOUD_PROJECT", ""),
		VertexAILocation: envStr("VERTEX_AI_LOCATION", "us-central1"),
		VertexAIModel:    envStr("VERTEX_AI_MODEL", "gemini-2.0-flash"),
		EmbeddingModel:   envStr("VERTEX_AI_EMBEDDING_MODEL", "text-embedding-004"),
		DocAIProcessorID: envStr("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocAILocation:    envStr("DOCUMENT_AI_LOCATION", "us"),

		DatabaseURL: envStr("DATABASE_URL", ""),
	}

	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("config.Load: EDISCOVERY_WORKERS must be > 0, got %d", cfg.Workers)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("config.Load: EDISCOVERY_BATCH_SIZE must be > 0, got %d", cfg.BatchSize)
	}
	if cfg.PrivilegeThresholdLow > cfg.PrivilegeThresholdHigh {
		return nil, fmt.Errorf("config.Load: privilege.threshold_low (%f) must be <= threshold_high (%f)", cfg.PrivilegeThresholdLow, cfg.PrivilegeThresholdHigh)
	}
	if cfg.OnlineMode && cfg.GCPProject == "" {
		return nil, fmt.Errorf("config.Load: GOOGLE_CLOUD_PROJECT is required when EDISCOVERY_ONLINE_MODE is true")
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
