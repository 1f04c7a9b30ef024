package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that points the injected
// agent at an optional YAML configuration file.
const EnvConfigPath = "HONEYWIRE_CONFIG"

// LoadConfig loads configuration from a YAML file at the specified path.
// Fields missing from the file keep their defaults. The result is validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention HONEYWIRE_SECTION_FIELD (e.g., HONEYWIRE_HONEYAML_PATH) and
// always take precedence over the file.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// FromEnvironment builds the configuration of an injected agent. If
// HONEYWIRE_CONFIG names a file it is loaded first; otherwise the defaults
// are used. Environment overrides are applied in both cases.
func FromEnvironment() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return LoadConfigWithEnvOverrides(path)
	}

	cfg := Default()
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Malformed values are ignored and the previous value is kept.
func applyEnvOverrides(cfg *Config) {
	// Honeyaml overrides
	if val := os.Getenv("HONEYWIRE_HONEYAML_PATH"); val != "" {
		cfg.Honeyaml.Path = val
	}
	setDuration(&cfg.Honeyaml.PollInterval, "HONEYWIRE_HONEYAML_POLL_INTERVAL")
	setDuration(&cfg.Honeyaml.ReloadTimeout, "HONEYWIRE_HONEYAML_RELOAD_TIMEOUT")
	setBool(&cfg.Honeyaml.Watch, "HONEYWIRE_HONEYAML_WATCH")

	// Interception overrides
	if val := os.Getenv("HONEYWIRE_INTERCEPTION_DECEIVED_PORTS"); val != "" {
		if ports, err := parsePorts(val); err == nil {
			cfg.Interception.DeceivedPorts = ports
		}
	}
	if val := os.Getenv("HONEYWIRE_INTERCEPTION_TECHNOLOGIES"); val != "" {
		cfg.Interception.Technologies = splitList(val)
	}
	if val := os.Getenv("HONEYWIRE_INTERCEPTION_HTTP_VERSIONS"); val != "" {
		cfg.Interception.HTTPVersions = splitList(val)
	}
	setInt(&cfg.Interception.MaxDescriptor, "HONEYWIRE_INTERCEPTION_MAX_DESCRIPTOR")

	// Telemetry overrides
	if val := os.Getenv("HONEYWIRE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("HONEYWIRE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("HONEYWIRE_TELEMETRY_LOGGING_FILE"); val != "" {
		cfg.Telemetry.Logging.File = val
	}
	setBool(&cfg.Telemetry.Metrics.Enabled, "HONEYWIRE_TELEMETRY_METRICS_ENABLED")
	if val := os.Getenv("HONEYWIRE_TELEMETRY_METRICS_TEXTFILE_PATH"); val != "" {
		cfg.Telemetry.Metrics.TextfilePath = val
	}
	setDuration(&cfg.Telemetry.Metrics.FlushInterval, "HONEYWIRE_TELEMETRY_METRICS_FLUSH_INTERVAL")

	// Evidence overrides
	setBool(&cfg.Evidence.Enabled, "HONEYWIRE_EVIDENCE_ENABLED")
	if val := os.Getenv("HONEYWIRE_EVIDENCE_SQLITE_PATH"); val != "" {
		cfg.Evidence.SQLitePath = val
	}
	setInt(&cfg.Evidence.RetentionDays, "HONEYWIRE_EVIDENCE_RETENTION_DAYS")
	if val := os.Getenv("HONEYWIRE_EVIDENCE_MAX_RECORDS"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Evidence.MaxRecords = i
		}
	}
	if val := os.Getenv("HONEYWIRE_EVIDENCE_PRUNE_SCHEDULE"); val != "" {
		cfg.Evidence.PruneSchedule = val
	}
}

func setDuration(dst *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

// splitList splits a comma-separated list, dropping empty items.
func splitList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parsePorts(val string) ([]int, error) {
	items := splitList(val)
	ports := make([]int, 0, len(items))
	for _, item := range items {
		p, err := strconv.Atoi(item)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", item, err)
		}
		ports = append(ports, p)
	}
	return ports, nil
}
