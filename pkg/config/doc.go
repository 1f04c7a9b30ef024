// Package config provides configuration management for the honeywire agent.
//
// The agent configuration is separate from the honeyaml rule file: it says
// where the rule file lives, which processes and ports are deceived, and how
// the agent logs, exports metrics and records evidence. The honeyaml file
// itself is parsed by package honeywire/parser.
//
// # Configuration Loading
//
// An injected agent has no command line, so it is configured from the
// environment:
//
//	cfg, err := config.FromEnvironment()
//
// If HONEYWIRE_CONFIG names a YAML file, that file is loaded first. The
// honeyctl command loads files directly:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("/etc/honeywire/agent.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention HONEYWIRE_SECTION_FIELD.
// For example:
//
//   - HONEYWIRE_HONEYAML_PATH overrides honeyaml.path
//   - HONEYWIRE_INTERCEPTION_DECEIVED_PORTS overrides interception.deceived_ports (comma-separated)
//   - HONEYWIRE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Example Configuration
//
//	honeyaml:
//	  path: /var/opt/honeyaml.yaml
//	  poll_interval: 5s
//	  reload_timeout: 10s
//	interception:
//	  deceived_ports: [80, 443, 8080]
//	  technologies: [python, gunicorn]
//	telemetry:
//	  logging:
//	    level: info
//	    file: /var/log/deception.log
//	evidence:
//	  enabled: true
//	  sqlite_path: /var/lib/honeywire/evidence.db
package config
