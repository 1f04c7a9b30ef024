package config

import "time"

// Config is the complete configuration of the deception agent.
type Config struct {
	// Honeyaml configures where deception rules come from and how often
	// they are reloaded.
	Honeyaml HoneyamlConfig `yaml:"honeyaml"`

	// Interception configures which processes and sockets are deceived.
	Interception InterceptionConfig `yaml:"interception"`

	// Telemetry configures logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Evidence configures recording of applied deceptions.
	Evidence EvidenceConfig `yaml:"evidence"`
}

// HoneyamlConfig locates the honeyaml rule file.
type HoneyamlConfig struct {
	// Path is the absolute path of the honeyaml file.
	Path string `yaml:"path"`

	// PollInterval is how often the file's modification time is checked.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ReloadTimeout bounds how long a reload waits for in-flight syscalls
	// to stop reading the old rules.
	ReloadTimeout time.Duration `yaml:"reload_timeout"`

	// Watch enables filesystem notifications that trigger an immediate
	// check between polls.
	Watch bool `yaml:"watch"`
}

// InterceptionConfig holds the fixed tables consulted by the interposer.
type InterceptionConfig struct {
	// DeceivedPorts are the listening ports whose connections are traced.
	DeceivedPorts []int `yaml:"deceived_ports"`

	// Technologies are substrings of argv[0] that make a process a target
	// (e.g., "python", "java").
	Technologies []string `yaml:"technologies"`

	// HTTPVersions are the version tokens deception applies to.
	HTTPVersions []string `yaml:"http_versions"`

	// MaxDescriptor is the exclusive upper bound of tracked descriptors.
	MaxDescriptor int `yaml:"max_descriptor"`
}

// TelemetryConfig contains logging and metrics settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the deception log.
type LoggingConfig struct {
	// Level is the minimum severity written: "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`

	// File is the log file. Every write takes an advisory lock on it, so
	// several deceived processes may share one file.
	File string `yaml:"file"`
}

// MetricsConfig configures Prometheus metrics. Metrics are written to a
// node-exporter textfile rather than served, so the deceived process never
// opens a listening socket of its own.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Namespace and Subsystem prefix every metric name.
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`

	// TextfilePath is the .prom file written on every flush. The process ID
	// is inserted before the extension so processes do not overwrite each
	// other.
	TextfilePath string `yaml:"textfile_path"`

	// FlushInterval is how often the textfile is rewritten.
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// EvidenceConfig configures the deception evidence store.
type EvidenceConfig struct {
	Enabled bool `yaml:"enabled"`

	// SQLitePath is the evidence database file.
	SQLitePath string `yaml:"sqlite_path"`

	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// AsyncBuffer is the capacity of the recorder queue. Events that do not
	// fit are dropped rather than delaying the intercepted call.
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds a single storage write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RetentionDays is how long events are kept. 0 keeps them forever.
	RetentionDays int `yaml:"retention_days"`

	// MaxRecords caps the number of stored events. 0 means unlimited.
	MaxRecords int64 `yaml:"max_records"`

	// PruneSchedule is a standard cron expression for retention pruning.
	PruneSchedule string `yaml:"prune_schedule"`
}
