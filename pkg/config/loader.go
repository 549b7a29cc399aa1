package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"tuxpilot/pkg/logx"
)

// Load builds the effective configuration: defaults, then the YAML file at
// path (optional), then TUXPILOT_* environment overrides, then validation.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, logx.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logx.Debugf("No config file at %s, using defaults", path)
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	logx.Infof("Loaded configuration from %s", path)
	return nil
}

// applyEnvOverrides layers TUXPILOT_* environment variables over the config.
// Every hot-path knob is reachable here so deployments can tune behavior
// without editing files.
func applyEnvOverrides(cfg *Config) {
	envInt("TUXPILOT_FAILURE_THRESHOLD", &cfg.Resilience.FailureThreshold)
	envDuration("TUXPILOT_RESET_TIMEOUT", &cfg.Resilience.ResetTimeout)
	envInt("TUXPILOT_MAX_RETRIES", &cfg.Resilience.MaxRetries)
	envDuration("TUXPILOT_RETRY_DELAY", &cfg.Resilience.RetryDelay)
	envDuration("TUXPILOT_AGENT_TIMEOUT", &cfg.Resilience.AgentTimeout)

	envInt("TUXPILOT_QUICK_MAX_RESULTS", &cfg.Strategies.QuickMaxResults)
	envInt("TUXPILOT_DEEP_MAX_RESULTS", &cfg.Strategies.DeepMaxResults)
	envInt("TUXPILOT_ADAPTIVE_MAX_RESULTS", &cfg.Strategies.AdaptiveMaxResults)
	envInt("TUXPILOT_SUB_RESEARCH_BUDGET", &cfg.Strategies.SubResearchBudget)

	envString("TUXPILOT_MODEL", &cfg.Models.Default)
	envString("TUXPILOT_MODEL_FAST", &cfg.Models.Fast)
	envString("TUXPILOT_MODEL_STRONG", &cfg.Models.Strong)
	envString("TUXPILOT_OLLAMA_URL", &cfg.Models.OllamaURL)

	envString("TUXPILOT_USAGE_DB", &cfg.Usage.DBPath)
	envString("TUXPILOT_EVENT_LOG_DIR", &cfg.EventLog.Dir)

	envBool("TUXPILOT_ENABLE_DEGRADATION", &cfg.EnableDegradation)
	envBool("TUXPILOT_ENABLE_MODEL_SELECTION", &cfg.EnableModelSelection)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logx.Warnf("Ignoring %s=%q: %v", key, v, err)
		return
	}
	*dst = n
}

func envBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logx.Warnf("Ignoring %s=%q: %v", key, v, err)
		return
	}
	*dst = b
}

// envDuration accepts Go duration strings ("90s") and bare milliseconds
// ("90000") since the knobs are documented in milliseconds.
func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if ms, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return
	}
	logx.Warnf("Ignoring %s=%q: not a duration or millisecond count", key, v)
}
