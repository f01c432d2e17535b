// Package secrets redacts credential material from text before it crosses
// the gateway boundary. Returned spans, chunks, and sandbox output pass
// through the scrubber so a session cannot exfiltrate tokens that happen to
// live inside its allowed roots.
package secrets

import (
	"fmt"
	"regexp"
	"sync"
)

// Rule is one detection pattern.
type Rule struct {
	// ID identifies the rule in findings.
	ID string `koanf:"id"`
	// Pattern is the regexp matched against content.
	Pattern string `koanf:"pattern"`
}

// Finding reports redactions for one rule. The matched values are
// deliberately absent.
type Finding struct {
	RuleID string `json:"rule_id"`
	Count  int    `json:"count"`
}

// Scrubber detects and redacts secrets.
type Scrubber interface {
	// Scrub returns content with secrets replaced and per-rule counts.
	Scrub(content string) (string, []Finding)
	// Enabled reports whether scrubbing is active.
	Enabled() bool
}

// Config configures the scrubber.
type Config struct {
	Enabled   bool   `koanf:"enabled"`
	Redaction string `koanf:"redaction"`
	Rules     []Rule `koanf:"rules"`
}

// DefaultConfig enables the built-in rule set.
func DefaultConfig() Config {
	return Config{Enabled: true, Redaction: "[REDACTED]", Rules: DefaultRules()}
}

// DefaultRules covers self-identifying token prefixes and key blocks.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "aws-access-key-id", Pattern: `(?:A3T[A-Z0-9]|AKIA|ASIA|AROA)[A-Z0-9]{16}`},
		{ID: "github-token", Pattern: `gh[pous]_[A-Za-z0-9]{36}`},
		{ID: "github-fine-grained", Pattern: `github_pat_[A-Za-z0-9_]{22,}`},
		{ID: "gitlab-token", Pattern: `glpat-[A-Za-z0-9\-]{20,}`},
		{ID: "slack-token", Pattern: `xox[baprs]-[A-Za-z0-9\-]{10,}`},
		{ID: "stripe-key", Pattern: `(?:sk|pk)_(?:live|test)_[A-Za-z0-9]{24,}`},
		{ID: "anthropic-api-key", Pattern: `sk-ant-[A-Za-z0-9_\-]{90,}`},
		{ID: "openai-api-key", Pattern: `sk-[A-Za-z0-9]{48,}`},
		{ID: "npm-token", Pattern: `npm_[A-Za-z0-9]{36}`},
		{ID: "jwt", Pattern: `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`},
		{ID: "private-key", Pattern: `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`},
		{ID: "database-url", Pattern: `(?i)(?:postgres|mysql|mongodb|redis|amqp)://[^:\s]+:[^@\s]+@[^\s]+`},
	}
}

type scrubber struct {
	mu        sync.RWMutex
	enabled   bool
	redaction string
	compiled  map[string]*regexp.Regexp
}

// New compiles the configured rules.
func New(cfg Config) (Scrubber, error) {
	s := &scrubber{
		enabled:   cfg.Enabled,
		redaction: cfg.Redaction,
		compiled:  make(map[string]*regexp.Regexp, len(cfg.Rules)),
	}
	if s.redaction == "" {
		s.redaction = "[REDACTED]"
	}
	for _, r := range cfg.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		s.compiled[r.ID] = re
	}
	return s, nil
}

// MustNew panics on invalid rules; for use with the built-in set.
func MustNew(cfg Config) Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *scrubber) Enabled() bool {
	return s.enabled
}

func (s *scrubber) Scrub(content string) (string, []Finding) {
	if !s.enabled || content == "" {
		return content, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var findings []Finding
	for id, re := range s.compiled {
		n := 0
		content = re.ReplaceAllStringFunc(content, func(string) string {
			n++
			return s.redaction
		})
		if n > 0 {
			findings = append(findings, Finding{RuleID: id, Count: n})
		}
	}
	return content, findings
}
