package config

import (
	"os"
	"strconv"
	"time"

	"iaicore/internal/errors"
)

// Config represents the complete engine configuration
type Config struct {
	Evaluator    EvaluatorConfig
	Challenger   ChallengerConfig
	Authority    AuthorityConfig
	Orchestrator OrchestratorConfig
	Audit        AuditConfig
	Server       ServerConfig
}

// EvaluatorConfig holds statistical evaluation settings
type EvaluatorConfig struct {
	ConfidenceLevel    float64       // two-sided CI level, default 0.95
	Alpha              float64       // significance test alpha, default 0.05
	MinSampleSize      int           // below this, InsufficientSample
	SubPeriods         int           // K disjoint stability sub-periods
	StabilityThreshold float64       // min sign-agreement fraction
	Timeout            time.Duration
}

// ChallengerConfig holds strain detection thresholds
type ChallengerConfig struct {
	WindowSize       int     // rolling window for early/recent comparison
	SlopeRatio       float64 // recent slope > ratio * early slope fires
	VarianceRatio    float64 // recent variance > ratio * baseline fires
	SwitchRateCoV    float64 // coefficient of variation bound
	RecoveryBound    float64 // post-shift mean outcome deficit bound
	MaxParamDeltaPct float64 // bound on proposed parameter deltas
}

// AuthorityConfig holds review policy settings
type AuthorityConfig struct {
	Strictness    string // strict | balanced | permissive
	ReviewTimeout time.Duration
	LLMBaseURL    string
	LLMModel      string
	LLMAPIKey     string
}

// OrchestratorConfig holds loop control settings
type OrchestratorConfig struct {
	MaxGenerations  int
	EvalParallelism int
}

// AuditConfig holds audit sink settings
type AuditConfig struct {
	Backend     string // jsonl | sqlite | postgres
	JSONLPath   string
	SQLitePath  string
	PostgresURL string
}

// ServerConfig holds inspection API settings
type ServerConfig struct {
	Port    string
	OpsPort string
	GinMode string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Evaluator: EvaluatorConfig{
			ConfidenceLevel:    envFloat("EVAL_CONFIDENCE_LEVEL", 0.95),
			Alpha:              envFloat("EVAL_ALPHA", 0.05),
			MinSampleSize:      envInt("EVAL_MIN_SAMPLE", 30),
			SubPeriods:         envInt("EVAL_SUB_PERIODS", 4),
			StabilityThreshold: envFloat("EVAL_STABILITY_THRESHOLD", 0.60),
			Timeout:            envDuration("EVAL_TIMEOUT", 60*time.Second),
		},
		Challenger: ChallengerConfig{
			WindowSize:       envInt("CHALLENGER_WINDOW", 100),
			SlopeRatio:       envFloat("CHALLENGER_SLOPE_RATIO", 1.2),
			VarianceRatio:    envFloat("CHALLENGER_VARIANCE_RATIO", 1.5),
			SwitchRateCoV:    envFloat("CHALLENGER_SWITCH_COV", 0.15),
			RecoveryBound:    envFloat("CHALLENGER_RECOVERY_BOUND", 0.15),
			MaxParamDeltaPct: envFloat("CHALLENGER_MAX_DELTA_PCT", 20.0),
		},
		Authority: AuthorityConfig{
			Strictness:    envString("AUTHORITY_STRICTNESS", "strict"),
			ReviewTimeout: envDuration("AUTHORITY_TIMEOUT", 30*time.Second),
			LLMBaseURL:    os.Getenv("AUTHORITY_LLM_BASE_URL"),
			LLMModel:      envString("AUTHORITY_LLM_MODEL", "gpt-4o-mini"),
			LLMAPIKey:     os.Getenv("AUTHORITY_LLM_API_KEY"),
		},
		Orchestrator: OrchestratorConfig{
			MaxGenerations:  envInt("MAX_GENERATIONS", 5),
			EvalParallelism: envInt("EVAL_PARALLELISM", 4),
		},
		Audit: AuditConfig{
			Backend:     envString("AUDIT_BACKEND", "jsonl"),
			JSONLPath:   envString("AUDIT_JSONL_PATH", "runs/audit.jsonl"),
			SQLitePath:  envString("AUDIT_SQLITE_PATH", "runs/audit.db"),
			PostgresURL: os.Getenv("AUDIT_POSTGRES_URL"),
		},
		Server: ServerConfig{
			Port:    envString("SERVER_PORT", "8080"),
			OpsPort: envString("OPS_PORT", "8081"),
			GinMode: envString("GIN_MODE", "release"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Evaluator.ConfidenceLevel <= 0 || c.Evaluator.ConfidenceLevel >= 1 {
		return errors.ConfigInvalid("EVAL_CONFIDENCE_LEVEL must be in (0,1)")
	}
	if c.Evaluator.Alpha <= 0 || c.Evaluator.Alpha >= 1 {
		return errors.ConfigInvalid("EVAL_ALPHA must be in (0,1)")
	}
	if c.Evaluator.MinSampleSize < 2 {
		return errors.ConfigInvalid("EVAL_MIN_SAMPLE must be at least 2")
	}
	if c.Evaluator.SubPeriods < 3 {
		return errors.ConfigInvalid("EVAL_SUB_PERIODS must be at least 3")
	}
	switch c.Authority.Strictness {
	case "strict", "balanced", "permissive":
	default:
		return errors.ConfigInvalid("AUTHORITY_STRICTNESS must be strict, balanced, or permissive")
	}
	switch c.Audit.Backend {
	case "jsonl", "sqlite", "postgres":
	default:
		return errors.ConfigInvalid("AUDIT_BACKEND must be jsonl, sqlite, or postgres")
	}
	if c.Audit.Backend == "postgres" && c.Audit.PostgresURL == "" {
		return errors.ConfigInvalid("AUDIT_POSTGRES_URL required for postgres backend")
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
