package sqlguard

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Mode represents the enforcement mode of the guard.
type Mode string

const (
	// ModeOff disables statement checking entirely.
	ModeOff Mode = "off"

	// ModeLog evaluates every statement and audits violations but lets
	// them through. Useful while validating the taxonomy against real
	// traffic.
	ModeLog Mode = "log"

	// ModeEnforce evaluates every statement and blocks violations.
	ModeEnforce Mode = "enforce"
)

// DefaultMode is the default enforcement mode (security-first approach).
const DefaultMode = ModeEnforce

// ValidModes returns all valid enforcement modes.
func ValidModes() []Mode {
	return []Mode{ModeOff, ModeLog, ModeEnforce}
}

// IsValid checks if the mode is a valid enforcement mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeOff, ModeLog, ModeEnforce:
		return true
	default:
		return false
	}
}

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// ParseMode parses a string into a Mode, returning an error if invalid.
func ParseMode(s string) (Mode, error) {
	mode := Mode(s)
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid enforcement mode: %q, valid modes are: off, log, enforce", s)
	}
	return mode, nil
}

// StackingPolicy controls how semicolon-separated batches are treated by the
// injection scanner.
type StackingPolicy string

const (
	// StackingReject treats any semicolon followed by further content as an
	// injection finding, whatever the second statement is.
	StackingReject StackingPolicy = "reject"

	// StackingAllowReads drops the stacking finding when every statement in
	// the batch is itself a clean read. Mutating keywords, transaction
	// control, or any other signature anywhere in the batch still reject.
	StackingAllowReads StackingPolicy = "allow-reads"
)

// DefaultStackingPolicy rejects batches outright.
const DefaultStackingPolicy = StackingReject

// IsValid checks if the policy is a known stacking policy.
func (p StackingPolicy) IsValid() bool {
	switch p {
	case StackingReject, StackingAllowReads:
		return true
	default:
		return false
	}
}

// String returns the string representation of the policy.
func (p StackingPolicy) String() string {
	return string(p)
}

// ParseStackingPolicy parses a string into a StackingPolicy.
func ParseStackingPolicy(s string) (StackingPolicy, error) {
	policy := StackingPolicy(s)
	if !policy.IsValid() {
		return "", fmt.Errorf("invalid stacking policy: %q, valid policies are: reject, allow-reads", s)
	}
	return policy, nil
}

// Config holds the read-only enforcement configuration.
type Config struct {
	// Mode is the enforcement mode for incoming statements.
	// Default: enforce
	Mode Mode `json:"mode" yaml:"mode"`

	// StackingPolicy controls how multi-statement batches are treated.
	// Default: reject
	StackingPolicy StackingPolicy `json:"stacking_policy" yaml:"stacking_policy"`

	// LogDecisions determines whether every violation is logged.
	// Default: true
	LogDecisions bool `json:"log_decisions" yaml:"log_decisions"`

	// AuditEnabled determines whether violations emit audit events.
	// Default: true
	AuditEnabled bool `json:"audit_enabled" yaml:"audit_enabled"`

	// MaxStatementLength is the maximum statement length to analyze (bytes).
	// Longer statements are truncated for analysis.
	// Default: 1MB (1048576)
	MaxStatementLength int `json:"max_statement_length" yaml:"max_statement_length"`

	// ConnectorOverrides allows per-connector configuration overrides.
	// Key is the connector name (e.g. "postgres", "mysql").
	ConnectorOverrides map[string]ConnectorOverride `json:"connector_overrides,omitempty" yaml:"connector_overrides,omitempty"`
}

// ConnectorOverride holds per-connector enforcement configuration.
type ConnectorOverride struct {
	// Mode overrides the default enforcement mode for this connector.
	Mode Mode `json:"mode" yaml:"mode"`

	// Enabled allows disabling enforcement for specific connectors.
	// Default: true
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DefaultConfig returns the default configuration: enforce mode, batches
// rejected, violations logged and audited.
func DefaultConfig() Config {
	return Config{
		Mode:               ModeEnforce,
		StackingPolicy:     StackingReject,
		LogDecisions:       true,
		AuditEnabled:       true,
		MaxStatementLength: 1048576, // 1MB
		ConnectorOverrides: make(map[string]ConnectorOverride),
	}
}

// Environment variable names for guard configuration.
const (
	// EnvGuardMode sets the enforcement mode.
	// Valid values: "off", "log", "enforce"
	// Default: "enforce"
	EnvGuardMode = "SQLWARD_GUARD_MODE"

	// EnvStackingPolicy sets the multi-statement batch policy.
	// Valid values: "reject", "allow-reads"
	// Default: "reject"
	EnvStackingPolicy = "SQLWARD_STACKING_POLICY"
)

// ConfigFromEnv creates a configuration from environment variables.
//
// Environment variables:
//   - SQLWARD_GUARD_MODE: off, log, enforce (default: enforce)
//   - SQLWARD_STACKING_POLICY: reject, allow-reads (default: reject)
//
// Invalid values are logged and fall back to defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if modeStr := os.Getenv(EnvGuardMode); modeStr != "" {
		mode, err := ParseMode(strings.ToLower(modeStr))
		if err != nil {
			log.Printf("[Guard] WARNING: Invalid %s=%q, using default 'enforce'. Valid values: off, log, enforce",
				EnvGuardMode, modeStr)
		} else {
			cfg.Mode = mode
			log.Printf("[Guard] Enforcement mode set to %q from environment", mode)
		}
	}

	if policyStr := os.Getenv(EnvStackingPolicy); policyStr != "" {
		policy, err := ParseStackingPolicy(strings.ToLower(policyStr))
		if err != nil {
			log.Printf("[Guard] WARNING: Invalid %s=%q, using default 'reject'. Valid values: reject, allow-reads",
				EnvStackingPolicy, policyStr)
		} else {
			cfg.StackingPolicy = policy
			log.Printf("[Guard] Stacking policy set to %q from environment", policy)
		}
	}

	return cfg
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs []string

	if !c.Mode.IsValid() {
		errs = append(errs, fmt.Sprintf("invalid mode: %q", c.Mode))
	}

	if !c.StackingPolicy.IsValid() {
		errs = append(errs, fmt.Sprintf("invalid stacking_policy: %q", c.StackingPolicy))
	}

	if c.MaxStatementLength <= 0 {
		errs = append(errs, "max_statement_length must be positive")
	}

	for name, override := range c.ConnectorOverrides {
		if !override.Mode.IsValid() && override.Mode != "" {
			errs = append(errs, fmt.Sprintf("invalid mode for connector %q: %q", name, override.Mode))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ModeForConnector returns the enforcement mode for a specific connector.
// Uses the connector override if configured, otherwise the default.
func (c *Config) ModeForConnector(connectorName string) Mode {
	if override, ok := c.ConnectorOverrides[connectorName]; ok {
		if override.Mode != "" {
			return override.Mode
		}
	}
	return c.Mode
}

// IsConnectorEnabled returns whether enforcement is enabled for a connector.
func (c *Config) IsConnectorEnabled(connectorName string) bool {
	if override, ok := c.ConnectorOverrides[connectorName]; ok {
		return override.Enabled
	}
	return true // Enabled by default
}

// WithMode returns a copy of the config with the enforcement mode set.
func (c Config) WithMode(mode Mode) Config {
	c.Mode = mode
	return c
}

// WithStackingPolicy returns a copy of the config with the stacking policy set.
func (c Config) WithStackingPolicy(policy StackingPolicy) Config {
	c.StackingPolicy = policy
	return c
}

// WithConnectorOverride returns a copy of the config with an override added.
func (c Config) WithConnectorOverride(connectorName string, override ConnectorOverride) Config {
	// Deep copy the map to avoid modifying the original
	newOverrides := make(map[string]ConnectorOverride)
	for k, v := range c.ConnectorOverrides {
		newOverrides[k] = v
	}
	newOverrides[connectorName] = override
	c.ConnectorOverrides = newOverrides
	return c
}
