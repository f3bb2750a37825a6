package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// NLU configuration (OpenAI-compatible protocol).
	// All providers (openai, deepseek, siliconflow, dashscope, ollama) use the same config.
	NLUProvider string // Provider identifier
	NLUAPIKey   string // NLU API key; classification falls back to rules when empty
	NLUBaseURL  string // NLU base URL (optional, has default per provider)
	NLUModel    string // Model name used for intent classification
	NLUTimeout  int    // NLU request timeout in seconds (default: 5)

	// Knowledge-base fallback configuration.
	KBBaseURL string // Knowledge base query endpoint; fallback disabled when empty
	KBTimeout int    // KB request timeout in seconds (default: 10)

	// Dialogue thresholds and windows.
	IntentConfidenceThreshold    float64 // Global floor if an intent has no per-intent threshold
	AmbiguityDetectionThreshold  float64 // Max top-2 confidence gap that still counts as ambiguous
	ConfidenceHigh               float64 // Band cutoffs for adaptive decisions
	ConfidenceMedium             float64
	ConfidenceLow                float64
	ConfidenceReject             float64
	SessionTTLHours              int // Default session expiry
	HistoryWindow                int // Turns returned in context recall
	TurnTimeoutMS                int // End-to-end per-turn deadline
	HandlerDefaultTimeoutMS      int // Per-handler invocation timeout
	CleanupIntervalHours         int // Cleanup scheduler period
	RetentionDaysConversations   int
	RetentionDaysAuditLogs       int
	RetentionDaysInvalidationLog int

	// Server configuration.
	Mode    string
	Addr    string
	Data    string
	Driver  string
	DSN     string
	Version string
	Port    int
}

// Provider default configurations for the NLU model.
// Used when INTENTD_NLU_BASE_URL is not explicitly set.
var nluProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-7B-Instruct",
	},
	"dashscope": {
		BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
		Model:   "qwen-max-latest",
	},
	"ollama": {
		BaseURL: "http://localhost:11434",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsNLUEnabled returns true if the LLM-backed classifier is configured.
func (p *Profile) IsNLUEnabled() bool {
	return p.NLUAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvOrDefaultFloat returns environment variable value as float64 or default value.
func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.NLUProvider = getEnvOrDefault("INTENTD_NLU_PROVIDER", "openai")
	p.NLUAPIKey = getEnvOrDefault("INTENTD_NLU_API_KEY", "")
	p.NLUBaseURL = getEnvOrDefault("INTENTD_NLU_BASE_URL", "")
	p.NLUModel = getEnvOrDefault("INTENTD_NLU_MODEL", "")
	p.NLUTimeout = getEnvOrDefaultInt("INTENTD_NLU_TIMEOUT_SECONDS", 5)

	if p.NLUProvider != "" {
		if _, ok := nluProviderDefaults[p.NLUProvider]; !ok {
			p.NLUProvider = "openai"
		}
	}
	if p.NLUBaseURL == "" || p.NLUModel == "" {
		if defaults, ok := nluProviderDefaults[p.NLUProvider]; ok {
			if p.NLUBaseURL == "" {
				p.NLUBaseURL = defaults.BaseURL
			}
			if p.NLUModel == "" {
				p.NLUModel = defaults.Model
			}
		}
	}

	p.KBBaseURL = getEnvOrDefault("INTENTD_KB_BASE_URL", "")
	p.KBTimeout = getEnvOrDefaultInt("INTENTD_KB_TIMEOUT_SECONDS", 10)

	p.IntentConfidenceThreshold = getEnvOrDefaultFloat("INTENTD_INTENT_CONFIDENCE_THRESHOLD", 0.70)
	p.AmbiguityDetectionThreshold = getEnvOrDefaultFloat("INTENTD_AMBIGUITY_DETECTION_THRESHOLD", 0.15)
	p.ConfidenceHigh = getEnvOrDefaultFloat("INTENTD_CONFIDENCE_HIGH", 0.85)
	p.ConfidenceMedium = getEnvOrDefaultFloat("INTENTD_CONFIDENCE_MEDIUM", 0.70)
	p.ConfidenceLow = getEnvOrDefaultFloat("INTENTD_CONFIDENCE_LOW", 0.55)
	p.ConfidenceReject = getEnvOrDefaultFloat("INTENTD_CONFIDENCE_REJECT", 0.40)
	p.SessionTTLHours = getEnvOrDefaultInt("INTENTD_SESSION_TTL_HOURS", 24)
	p.HistoryWindow = getEnvOrDefaultInt("INTENTD_HISTORY_WINDOW", 10)
	p.TurnTimeoutMS = getEnvOrDefaultInt("INTENTD_TURN_TIMEOUT_MS", 30000)
	p.HandlerDefaultTimeoutMS = getEnvOrDefaultInt("INTENTD_HANDLER_DEFAULT_TIMEOUT_MS", 30000)
	p.CleanupIntervalHours = getEnvOrDefaultInt("INTENTD_CLEANUP_INTERVAL_HOURS", 24)
	p.RetentionDaysConversations = getEnvOrDefaultInt("INTENTD_RETENTION_DAYS_CONVERSATIONS", 90)
	p.RetentionDaysAuditLogs = getEnvOrDefaultInt("INTENTD_RETENTION_DAYS_AUDIT_LOGS", 30)
	p.RetentionDaysInvalidationLog = getEnvOrDefaultInt("INTENTD_RETENTION_DAYS_INVALIDATION_LOG", 7)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies.
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/intentd"
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("intentd_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn required for postgres driver")
	}

	return nil
}
