package sqlguard

import (
	"sync"
	"time"
)

// AuditEvent represents a read-only policy violation for audit logging.
// Events flow through the configured callback into the gateway's audit
// pipeline (structured log, archive, alerting).
type AuditEvent struct {
	// Type identifies this as a policy violation event
	Type string `json:"type"`

	// Timestamp when the violation was detected (UTC)
	Timestamp time.Time `json:"timestamp"`

	// Severity of the violation (critical, high, medium, low)
	Severity string `json:"severity"`

	// UserID from the request context (if available)
	UserID string `json:"user_id,omitempty"`

	// ClientID from the request context
	ClientID string `json:"client_id,omitempty"`

	// TenantID for multi-tenant isolation
	TenantID string `json:"tenant_id,omitempty"`

	// ConnectorName the statement was aimed at
	ConnectorName string `json:"connector_name"`

	// Keywords holds the mutating keyword and category labels found
	Keywords []string `json:"keywords,omitempty"`

	// Patterns holds the names of the injection signatures that matched
	Patterns []string `json:"patterns,omitempty"`

	// Bypass indicates a transaction escape attempt. These warrant stricter
	// alerting than a plain write: the stacking is deliberate.
	Bypass bool `json:"bypass"`

	// Blocked indicates whether the statement was rejected (vs just logged)
	Blocked bool `json:"blocked"`

	// CheckDuration in nanoseconds
	CheckDuration time.Duration `json:"check_duration_ns"`

	// RequestID for tracing (if available)
	RequestID string `json:"request_id,omitempty"`

	// StatementSnippet is a sanitized excerpt of the statement (for forensics)
	StatementSnippet string `json:"statement_snippet,omitempty"`
}

// AuditEventType is the type string for policy violation audit events.
const AuditEventType = "readonly_policy_violation"

// Severity levels for policy violations
const (
	SeverityCritical = "critical" // Adversarial pattern (bypass, stacking, privilege change)
	SeverityHigh     = "high"     // Definite write or data extraction attempt
	SeverityMedium   = "medium"   // Suspicious pattern, may be a clumsy query
	SeverityLow      = "low"      // Minor pattern match
)

// DecisionSeverity maps a decision to a severity level. Transaction bypass
// and privilege or server-level changes rank above plain writes because they
// indicate an attempt to defeat the gate, not a misdirected write.
func DecisionSeverity(d *Decision) string {
	switch {
	case d == nil:
		return SeverityLow
	case d.Bypass:
		return SeverityCritical
	case d.Keywords.Has(CategoryPermission.String()), d.Keywords.Has(CategorySystem.String()):
		return SeverityCritical
	case d.Keywords.Has(CategoryDDL.String()):
		return SeverityCritical
	case d.Keywords.Has(CategoryDML.String()):
		return SeverityHigh
	}

	severity := SeverityLow
	for _, f := range d.Findings {
		switch f.Category {
		case RiskStackedQueries:
			return SeverityCritical
		case RiskUnionBased, RiskTimeBased:
			severity = SeverityHigh
		case RiskTautology, RiskCommentTermination:
			if severity != SeverityHigh {
				severity = SeverityMedium
			}
		}
	}
	return severity
}

// NewAuditEvent creates an audit event from a decision. Returns nil for
// clean decisions.
func NewAuditEvent(d *Decision, connectorName string, blocked bool) *AuditEvent {
	if d == nil || !d.Violation() {
		return nil
	}

	patterns := make([]string, 0, len(d.Findings))
	for _, f := range d.Findings {
		patterns = append(patterns, f.Pattern)
	}

	return &AuditEvent{
		Type:             AuditEventType,
		Timestamp:        time.Now().UTC(),
		Severity:         DecisionSeverity(d),
		ConnectorName:    connectorName,
		Keywords:         d.Keywords.Labels(),
		Patterns:         patterns,
		Bypass:           d.Bypass,
		Blocked:          blocked,
		CheckDuration:    d.Duration,
		StatementSnippet: d.Statement,
	}
}

// WithUserContext adds user context to the audit event.
func (e *AuditEvent) WithUserContext(userID, clientID, tenantID string) *AuditEvent {
	e.UserID = userID
	e.ClientID = clientID
	e.TenantID = tenantID
	return e
}

// WithRequestID adds a request ID for tracing.
func (e *AuditEvent) WithRequestID(requestID string) *AuditEvent {
	e.RequestID = requestID
	return e
}

// ToAuditDetails converts the event to a map suitable for audit sinks.
func (e *AuditEvent) ToAuditDetails() map[string]interface{} {
	return map[string]interface{}{
		"connector_name":    e.ConnectorName,
		"severity":          e.Severity,
		"keywords":          e.Keywords,
		"patterns":          e.Patterns,
		"bypass":            e.Bypass,
		"blocked":           e.Blocked,
		"check_duration":    e.CheckDuration.String(),
		"request_id":        e.RequestID,
		"statement_snippet": e.StatementSnippet,
	}
}

// AuditCallback is a function type for audit event callbacks. It lets the
// enforcer hand events to the gateway's audit pipeline without a circular
// dependency.
type AuditCallback func(event *AuditEvent)

// DefaultAuditCallback is a no-op callback used when no audit system is configured.
var DefaultAuditCallback AuditCallback = func(event *AuditEvent) {}

// globalAuditCallback holds the configured audit callback.
// Protected by auditCallbackMu for thread safety.
var (
	globalAuditCallback AuditCallback = DefaultAuditCallback
	auditCallbackMu     sync.RWMutex
)

// SetAuditCallback configures the global audit callback. This should be
// called during gateway initialization to connect policy decisions to the
// audit pipeline. Thread-safe: can be called from any goroutine.
func SetAuditCallback(callback AuditCallback) {
	auditCallbackMu.Lock()
	defer auditCallbackMu.Unlock()
	if callback == nil {
		globalAuditCallback = DefaultAuditCallback
		return
	}
	globalAuditCallback = callback
}

// EmitAuditEvent sends a violation event to the configured audit system.
// Thread-safe: can be called from any goroutine.
func EmitAuditEvent(event *AuditEvent) {
	if event == nil {
		return
	}
	auditCallbackMu.RLock()
	cb := globalAuditCallback
	auditCallbackMu.RUnlock()
	cb(event)
}
