package sqlguard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

// PolicyViolationError is returned by the enforcer when a statement is
// rejected in enforce mode. The full decision rides along so handlers can
// report the reasons without re-evaluating the statement.
type PolicyViolationError struct {
	Decision *Decision
}

// Error implements the error interface.
func (e *PolicyViolationError) Error() string {
	if e.Decision == nil || len(e.Decision.Reasons) == 0 {
		return "read-only policy violation"
	}
	return "read-only policy violation: " + strings.Join(e.Decision.Reasons, "; ")
}

// IsPolicyViolation reports whether err (or any error it wraps) is a
// PolicyViolationError.
func IsPolicyViolation(err error) bool {
	var pve *PolicyViolationError
	return errors.As(err, &pve)
}

// Enforcer applies the read-only policy to statements before they reach a
// connector. It wraps a Guard with mode handling (off, log, enforce),
// per-connector overrides, violation counters, and audit emission.
//
// The guard itself never blocks anything. Blocking is the enforcer's job:
// in enforce mode a violating statement yields a PolicyViolationError, in
// log mode it is recorded and allowed through, and in off mode the guard
// is not consulted at all.
type Enforcer struct {
	config      Config
	guard       *Guard
	customGuard bool

	// mu protects the counters and config below
	mu sync.RWMutex

	// Metrics
	checksTotal     int64
	violationsTotal int64
	blockedTotal    int64
}

// EnforcerOption is a function type for configuring the enforcer.
type EnforcerOption func(*Enforcer)

// WithEnforcerConfig sets the enforcer configuration.
func WithEnforcerConfig(config Config) EnforcerOption {
	return func(e *Enforcer) {
		e.config = config
	}
}

// WithEnforcerGuard sets a custom guard. When set, the guard is not rebuilt
// on UpdateConfig; the caller owns its tuning.
func WithEnforcerGuard(guard *Guard) EnforcerOption {
	return func(e *Enforcer) {
		e.guard = guard
		e.customGuard = true
	}
}

// NewEnforcer creates a policy enforcer with the given options.
func NewEnforcer(opts ...EnforcerOption) (*Enforcer, error) {
	e := &Enforcer{
		config: DefaultConfig(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid guard config: %w", err)
	}

	if e.guard == nil {
		e.guard = guardForConfig(e.config)
	}

	return e, nil
}

// guardForConfig builds a guard whose tunables come from the enforcer config.
func guardForConfig(cfg Config) *Guard {
	return NewGuard(
		WithStackingPolicy(cfg.StackingPolicy),
		WithMaxInputLength(cfg.MaxStatementLength),
	)
}

// CheckStatement evaluates a statement against the read-only policy for the
// named connector. The returned decision is always populated (never nil on a
// nil error). In enforce mode a violation additionally returns a
// PolicyViolationError; in log mode the violation is logged and audited but
// the error is nil, so callers proceed to execute the statement.
//
// clientID is recorded in logs and audit events; it may be empty.
func (e *Enforcer) CheckStatement(ctx context.Context, connectorName, clientID, sql string) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.checksTotal++
	cfg := e.config
	guard := e.guard
	e.mu.Unlock()

	if !cfg.IsConnectorEnabled(connectorName) {
		return &Decision{Allowed: true}, nil
	}

	mode := cfg.ModeForConnector(connectorName)
	if mode == ModeOff {
		return &Decision{Allowed: true}, nil
	}

	decision := guard.Evaluate(sql)
	if !decision.Violation() {
		return decision, nil
	}

	blocked := mode == ModeEnforce

	e.mu.Lock()
	e.violationsTotal++
	if blocked {
		e.blockedTotal++
	}
	e.mu.Unlock()

	if cfg.LogDecisions {
		log.Printf("[Guard] Policy violation on connector '%s' (client=%s, blocked=%v): %s",
			connectorName, clientID, blocked, strings.Join(decision.Reasons, "; "))
	}

	if cfg.AuditEnabled {
		if event := NewAuditEvent(decision, connectorName, blocked); event != nil {
			EmitAuditEvent(event.WithUserContext("", clientID, ""))
		}
	}

	if blocked {
		return decision, &PolicyViolationError{Decision: decision}
	}
	return decision, nil
}

// CheckWriteStatement evaluates a statement headed for the write path.
// Mutating keywords are legitimate there, so only injection signatures and
// transaction escapes are treated as violations. Mode handling, logging,
// and audit emission follow CheckStatement.
func (e *Enforcer) CheckWriteStatement(ctx context.Context, connectorName, clientID, sql string) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.checksTotal++
	cfg := e.config
	guard := e.guard
	e.mu.Unlock()

	if !cfg.IsConnectorEnabled(connectorName) {
		return &Decision{Allowed: true}, nil
	}

	mode := cfg.ModeForConnector(connectorName)
	if mode == ModeOff {
		return &Decision{Allowed: true}, nil
	}

	decision := guard.EvaluateWrite(sql)
	if !decision.Violation() {
		return decision, nil
	}

	blocked := mode == ModeEnforce

	e.mu.Lock()
	e.violationsTotal++
	if blocked {
		e.blockedTotal++
	}
	e.mu.Unlock()

	if cfg.LogDecisions {
		log.Printf("[Guard] Write-path violation on connector '%s' (client=%s, blocked=%v): %s",
			connectorName, clientID, blocked, strings.Join(decision.Reasons, "; "))
	}

	if cfg.AuditEnabled {
		if event := NewAuditEvent(decision, connectorName, blocked); event != nil {
			EmitAuditEvent(event.WithUserContext("", clientID, ""))
		}
	}

	if blocked {
		return decision, &PolicyViolationError{Decision: decision}
	}
	return decision, nil
}

// EnforcerMetrics contains counters from the enforcer.
type EnforcerMetrics struct {
	// ChecksTotal is the total number of statements checked
	ChecksTotal int64 `json:"checks_total"`

	// ViolationsTotal is the number of statements that violated the policy
	ViolationsTotal int64 `json:"violations_total"`

	// BlockedTotal is the number of statements rejected (enforce mode only)
	BlockedTotal int64 `json:"blocked_total"`
}

// GetMetrics returns current enforcer counters. Thread-safe.
func (e *Enforcer) GetMetrics() EnforcerMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return EnforcerMetrics{
		ChecksTotal:     e.checksTotal,
		ViolationsTotal: e.violationsTotal,
		BlockedTotal:    e.blockedTotal,
	}
}

// ResetMetrics zeroes all counters. Thread-safe.
func (e *Enforcer) ResetMetrics() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checksTotal = 0
	e.violationsTotal = 0
	e.blockedTotal = 0
}

// GetConfig returns a copy of the current configuration. Thread-safe.
func (e *Enforcer) GetConfig() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// UpdateConfig replaces the enforcer configuration at runtime. The guard is
// rebuilt from the new config unless a custom guard was provided.
// Thread-safe.
func (e *Enforcer) UpdateConfig(config Config) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid guard config: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.config = config
	if !e.customGuard {
		e.guard = guardForConfig(config)
	}
	return nil
}

// Global enforcer instance for the gateway.
// Protected by globalEnforcerMu for thread safety.
var (
	globalEnforcer   *Enforcer
	globalEnforcerMu sync.RWMutex
)

// GetGlobalEnforcer returns the global enforcer, creating a default one on
// first use. Thread-safe.
func GetGlobalEnforcer() *Enforcer {
	globalEnforcerMu.RLock()
	if globalEnforcer != nil {
		globalEnforcerMu.RUnlock()
		return globalEnforcer
	}
	globalEnforcerMu.RUnlock()

	globalEnforcerMu.Lock()
	defer globalEnforcerMu.Unlock()

	// Double-check after acquiring write lock
	if globalEnforcer != nil {
		return globalEnforcer
	}

	enforcer, err := NewEnforcer()
	if err != nil {
		// Should not happen with the default config; fall back to a
		// disabled enforcer rather than panic at startup.
		log.Printf("[Guard] WARNING: failed to create default enforcer: %v", err)
		cfg := DefaultConfig()
		cfg.Mode = ModeOff
		enforcer = &Enforcer{config: cfg, guard: NewGuard()}
	}

	globalEnforcer = enforcer
	return globalEnforcer
}

// SetGlobalEnforcer replaces the global enforcer. Used during gateway
// initialization and in tests. Thread-safe.
func SetGlobalEnforcer(enforcer *Enforcer) {
	globalEnforcerMu.Lock()
	defer globalEnforcerMu.Unlock()
	globalEnforcer = enforcer
}

// InitGlobalEnforcer initializes the global enforcer with the given
// configuration. Call once during gateway startup.
func InitGlobalEnforcer(cfg Config) error {
	enforcer, err := NewEnforcer(WithEnforcerConfig(cfg))
	if err != nil {
		return err
	}

	SetGlobalEnforcer(enforcer)
	log.Printf("[Guard] Global enforcer initialized: mode=%s stacking_policy=%s",
		cfg.Mode, cfg.StackingPolicy)
	return nil
}
