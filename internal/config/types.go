// Package config loads the daemon configuration from YAML and
// environment variables. Hard access bounds have ceilings here that user
// configuration can lower but never raise.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/boundaryd/internal/embeddings"
	"github.com/fyrsmithlabs/boundaryd/internal/handle"
	"github.com/fyrsmithlabs/boundaryd/internal/logging"
	"github.com/fyrsmithlabs/boundaryd/internal/secrets"
	"github.com/fyrsmithlabs/boundaryd/internal/telemetry"
	"github.com/fyrsmithlabs/boundaryd/internal/vectorstore"
)

// Hard ceilings. Configured values above these are clamped down.
const (
	CeilingSpanLines     = 200
	CeilingSpanBytes     = 8 * 1024
	CeilingListItems     = 1000
	CeilingSearchResults = 10
	CeilingCodeBytes     = 10 * 1024
	CeilingExecTimeout   = 5 * time.Second
	CeilingMemoryBytes   = 256 * 1024 * 1024
	CeilingOutputBytes   = 10 * 1024 * 1024
)

// Config is the complete daemon configuration.
type Config struct {
	Server      ServerConfig       `koanf:"server"`
	Logging     logging.Config     `koanf:"logging"`
	Telemetry   telemetry.Config   `koanf:"telemetry"`
	Session     SessionConfig      `koanf:"session"`
	Limits      LimitsConfig       `koanf:"limits"`
	Sandbox     SandboxConfig      `koanf:"sandbox"`
	VectorStore vectorstore.Config `koanf:"vectorstore"`
	Embeddings  embeddings.Config  `koanf:"embeddings"`
	Secrets     secrets.Config     `koanf:"secrets"`
	Audit       AuditConfig        `koanf:"audit"`
}

// ServerConfig covers the ops HTTP listener. The MCP surface itself runs
// on stdio and needs no address.
type ServerConfig struct {
	// OpsAddr is the health/metrics listen address. Empty disables the
	// listener.
	OpsAddr string `koanf:"ops_addr"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SessionConfig sets per-session defaults. Individual sessions may
// request smaller budgets, never larger ones.
type SessionConfig struct {
	// IdleTimeout expires sessions with no activity.
	IdleTimeout time.Duration `koanf:"idle_timeout"`

	// MaxToolCalls is the default per-session call budget.
	MaxToolCalls int `koanf:"max_tool_calls"`

	// MaxOutputBytes is the default per-session output budget.
	MaxOutputBytes int64 `koanf:"max_output_bytes"`

	// CallsPerSecond optionally rate-limits tool calls. Zero disables.
	CallsPerSecond float64 `koanf:"calls_per_second"`
}

// LimitsConfig bounds individual read operations.
type LimitsConfig struct {
	// MaxFileSize rejects handle creation for larger files.
	MaxFileSize int64 `koanf:"max_file_size"`

	// MaxSpanLines bounds one span read.
	MaxSpanLines int `koanf:"max_span_lines"`

	// MaxSpanBytes bounds one span read.
	MaxSpanBytes int `koanf:"max_span_bytes"`

	// MaxListItems bounds listing and manifest sizes.
	MaxListItems int `koanf:"max_list_items"`

	// MaxSearchResults bounds one search result set.
	MaxSearchResults int `koanf:"max_search_results"`
}

// SandboxConfig bounds code execution.
type SandboxConfig struct {
	// Profile is "strict" (default) or "trusted".
	Profile string `koanf:"profile"`

	// MaxCodeBytes rejects larger submissions.
	MaxCodeBytes int `koanf:"max_code_bytes"`

	// Timeout is the wall-clock execution ceiling.
	Timeout time.Duration `koanf:"timeout"`

	// MaxMemoryBytes is the execution memory ceiling.
	MaxMemoryBytes uint64 `koanf:"max_memory_bytes"`

	// MaxStdoutBytes caps captured print output.
	MaxStdoutBytes int `koanf:"max_stdout_bytes"`
}

// AuditConfig covers provenance export over NATS.
type AuditConfig struct {
	// Enabled turns on NATS publishing of provenance entries.
	Enabled bool `koanf:"enabled"`

	// URL is the NATS server URL.
	URL string `koanf:"url"`

	// SubjectPrefix prefixes the per-session audit subjects.
	SubjectPrefix string `koanf:"subject_prefix"`
}

// applyDefaults fills missing values and clamps hard-bounded ones.
func applyDefaults(cfg *Config) {
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Session.IdleTimeout == 0 {
		cfg.Session.IdleTimeout = 5 * time.Minute
	}
	if cfg.Session.MaxToolCalls == 0 {
		cfg.Session.MaxToolCalls = 100
	}
	if cfg.Session.MaxOutputBytes <= 0 || cfg.Session.MaxOutputBytes > CeilingOutputBytes {
		cfg.Session.MaxOutputBytes = CeilingOutputBytes
	}

	if cfg.Limits.MaxFileSize == 0 {
		cfg.Limits.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.Limits.MaxSpanLines <= 0 || cfg.Limits.MaxSpanLines > CeilingSpanLines {
		cfg.Limits.MaxSpanLines = CeilingSpanLines
	}
	if cfg.Limits.MaxSpanBytes <= 0 || cfg.Limits.MaxSpanBytes > CeilingSpanBytes {
		cfg.Limits.MaxSpanBytes = CeilingSpanBytes
	}
	if cfg.Limits.MaxListItems <= 0 || cfg.Limits.MaxListItems > CeilingListItems {
		cfg.Limits.MaxListItems = CeilingListItems
	}
	if cfg.Limits.MaxSearchResults <= 0 || cfg.Limits.MaxSearchResults > CeilingSearchResults {
		cfg.Limits.MaxSearchResults = CeilingSearchResults
	}

	if cfg.Sandbox.Profile == "" {
		cfg.Sandbox.Profile = "strict"
	}
	if cfg.Sandbox.MaxCodeBytes <= 0 || cfg.Sandbox.MaxCodeBytes > CeilingCodeBytes {
		cfg.Sandbox.MaxCodeBytes = CeilingCodeBytes
	}
	if cfg.Sandbox.Timeout <= 0 || cfg.Sandbox.Timeout > CeilingExecTimeout {
		cfg.Sandbox.Timeout = CeilingExecTimeout
	}
	if cfg.Sandbox.MaxMemoryBytes == 0 || cfg.Sandbox.MaxMemoryBytes > CeilingMemoryBytes {
		cfg.Sandbox.MaxMemoryBytes = CeilingMemoryBytes
	}
	if cfg.Sandbox.MaxStdoutBytes == 0 {
		cfg.Sandbox.MaxStdoutBytes = 1 << 20
	}

	if cfg.Audit.SubjectPrefix == "" {
		cfg.Audit.SubjectPrefix = "boundaryd.audit"
	}
	if cfg.Audit.Enabled && cfg.Audit.URL == "" {
		cfg.Audit.URL = "nats://127.0.0.1:4222"
	}

	// An untouched secrets section means scrubbing on with the built-in
	// rules. Any explicit setting is taken as-is.
	if !cfg.Secrets.Enabled && cfg.Secrets.Redaction == "" && len(cfg.Secrets.Rules) == 0 {
		cfg.Secrets = secrets.DefaultConfig()
	} else if len(cfg.Secrets.Rules) == 0 {
		cfg.Secrets.Rules = secrets.DefaultRules()
	}
}

// Validate rejects configurations no deployment should run with.
func (c *Config) Validate() error {
	if c.Session.MaxToolCalls < 0 {
		return fmt.Errorf("session.max_tool_calls must be positive")
	}
	if c.Sandbox.Profile != "strict" && c.Sandbox.Profile != "trusted" {
		return fmt.Errorf("sandbox.profile must be strict or trusted, got %q", c.Sandbox.Profile)
	}
	switch c.VectorStore.Provider {
	case "", "chromem", "qdrant":
	default:
		return fmt.Errorf("vectorstore.provider must be chromem or qdrant, got %q", c.VectorStore.Provider)
	}
	return nil
}

// HandleLimits maps the configured read bounds onto the handle table's
// limit set.
func (c *Config) HandleLimits() handle.Limits {
	return handle.Limits{
		MaxFileSize:  c.Limits.MaxFileSize,
		MaxSpanLines: c.Limits.MaxSpanLines,
		MaxSpanBytes: c.Limits.MaxSpanBytes,
	}
}
