package config

import "time"

// Default values for configuration fields.
const (
	// Honeyaml defaults
	DefaultHoneyamlPath          = "/var/opt/honeyaml.yaml"
	DefaultHoneyamlPollInterval  = 5 * time.Second
	DefaultHoneyamlReloadTimeout = 10 * time.Second
	DefaultHoneyamlWatch         = true

	// Interception defaults
	DefaultMaxDescriptor = 1000

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultLogFile   = "/var/log/deception.log"

	// Metrics defaults
	DefaultMetricsEnabled       = false
	DefaultMetricsNamespace     = "honeywire"
	DefaultMetricsSubsystem     = "agent"
	DefaultMetricsTextfilePath  = "/var/lib/node_exporter/textfile_collector/honeywire.prom"
	DefaultMetricsFlushInterval = 15 * time.Second

	// Evidence defaults
	DefaultEvidenceEnabled       = false
	DefaultEvidenceSQLitePath    = "/var/lib/honeywire/evidence.db"
	DefaultEvidenceBusyTimeout   = 5 * time.Second
	DefaultEvidenceAsyncBuffer   = 256
	DefaultEvidenceWriteTimeout  = 2 * time.Second
	DefaultEvidenceRetentionDays = 30
	DefaultEvidencePruneSchedule = "0 3 * * *"
)

// DefaultDeceivedPorts are the common HTTP development and production ports.
var DefaultDeceivedPorts = []int{80, 443, 3000, 5000, 5001, 8000, 8080, 8081, 8443}

// DefaultTechnologies are the argv[0] substrings of supported app servers.
var DefaultTechnologies = []string{"python", "python3", "java", "gunicorn"}

// DefaultHTTPVersions are the HTTP version tokens deception applies to.
var DefaultHTTPVersions = []string{"HTTP/1.0", "HTTP/1.1"}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	cfg := &Config{
		Honeyaml: HoneyamlConfig{Watch: DefaultHoneyamlWatch},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
		Evidence: EvidenceConfig{
			Enabled:       DefaultEvidenceEnabled,
			RetentionDays: DefaultEvidenceRetentionDays,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field of cfg. Booleans cannot be told apart
// from an explicit false, so their defaults come from Default instead.
func ApplyDefaults(cfg *Config) {
	// Honeyaml defaults
	if cfg.Honeyaml.Path == "" {
		cfg.Honeyaml.Path = DefaultHoneyamlPath
	}
	if cfg.Honeyaml.PollInterval == 0 {
		cfg.Honeyaml.PollInterval = DefaultHoneyamlPollInterval
	}
	if cfg.Honeyaml.ReloadTimeout == 0 {
		cfg.Honeyaml.ReloadTimeout = DefaultHoneyamlReloadTimeout
	}

	// Interception defaults
	if len(cfg.Interception.DeceivedPorts) == 0 {
		cfg.Interception.DeceivedPorts = append([]int(nil), DefaultDeceivedPorts...)
	}
	if len(cfg.Interception.Technologies) == 0 {
		cfg.Interception.Technologies = append([]string(nil), DefaultTechnologies...)
	}
	if len(cfg.Interception.HTTPVersions) == 0 {
		cfg.Interception.HTTPVersions = append([]string(nil), DefaultHTTPVersions...)
	}
	if cfg.Interception.MaxDescriptor == 0 {
		cfg.Interception.MaxDescriptor = DefaultMaxDescriptor
	}

	// Logging defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Logging.File == "" {
		cfg.Telemetry.Logging.File = DefaultLogFile
	}

	// Metrics defaults
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if cfg.Telemetry.Metrics.TextfilePath == "" {
		cfg.Telemetry.Metrics.TextfilePath = DefaultMetricsTextfilePath
	}
	if cfg.Telemetry.Metrics.FlushInterval == 0 {
		cfg.Telemetry.Metrics.FlushInterval = DefaultMetricsFlushInterval
	}

	// Evidence defaults
	if cfg.Evidence.SQLitePath == "" {
		cfg.Evidence.SQLitePath = DefaultEvidenceSQLitePath
	}
	if cfg.Evidence.BusyTimeout == 0 {
		cfg.Evidence.BusyTimeout = DefaultEvidenceBusyTimeout
	}
	if cfg.Evidence.AsyncBuffer == 0 {
		cfg.Evidence.AsyncBuffer = DefaultEvidenceAsyncBuffer
	}
	if cfg.Evidence.WriteTimeout == 0 {
		cfg.Evidence.WriteTimeout = DefaultEvidenceWriteTimeout
	}
	if cfg.Evidence.PruneSchedule == "" {
		cfg.Evidence.PruneSchedule = DefaultEvidencePruneSchedule
	}
}
