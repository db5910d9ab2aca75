package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// defaultMaxInputLength bounds how much text the analyzers look at.
	defaultMaxInputLength = 1048576 // 1MB

	// defaultSnippetLength bounds statement excerpts kept for logging.
	defaultSnippetLength = 100
)

// Guard bundles the three analyzers with their keyword taxonomy and
// signature tables. The tables are fixed at construction and never mutated,
// so a single Guard is safe for unlimited concurrent use.
type Guard struct {
	keywords    []*KeywordRule
	patterns    []*Pattern
	stacking    StackingPolicy
	maxInputLen int
	snippetLen  int
}

// GuardOption is a functional option for configuring a Guard.
type GuardOption func(*Guard)

// WithKeywordRules replaces the mutating keyword taxonomy.
func WithKeywordRules(rules []*KeywordRule) GuardOption {
	return func(g *Guard) {
		g.keywords = rules
	}
}

// WithPatterns replaces the injection signature table.
func WithPatterns(patterns []*Pattern) GuardOption {
	return func(g *Guard) {
		g.patterns = patterns
	}
}

// WithStackingPolicy sets how semicolon-separated batches are treated.
func WithStackingPolicy(policy StackingPolicy) GuardOption {
	return func(g *Guard) {
		g.stacking = policy
	}
}

// WithMaxInputLength sets the maximum input length to analyze.
func WithMaxInputLength(maxLen int) GuardOption {
	return func(g *Guard) {
		g.maxInputLen = maxLen
	}
}

// WithSnippetLength sets the length of statement excerpts in results.
func WithSnippetLength(length int) GuardOption {
	return func(g *Guard) {
		g.snippetLen = length
	}
}

// NewGuard creates a guard with the built-in taxonomy and the given options.
func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{
		keywords:    defaultKeywordRules(),
		patterns:    defaultInjectionPatterns(),
		stacking:    DefaultStackingPolicy,
		maxInputLen: defaultMaxInputLength,
		snippetLen:  defaultSnippetLength,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// defaultGuard backs the package-level analyzer functions. Its tables are
// built once at startup and treated as read-only configuration.
var defaultGuard = NewGuard()

// Decision is the combined verdict of the three analyzers over one
// statement. It is a pure record of what was found; whether a violation is
// blocked or merely logged is the Enforcer's call.
type Decision struct {
	// Allowed is true only when no analyzer found anything.
	Allowed bool `json:"allowed"`

	// Keywords holds the mutating keyword and category labels found.
	Keywords KeywordSet `json:"keywords,omitempty"`

	// Findings holds the injection signatures that matched.
	Findings []Finding `json:"findings,omitempty"`

	// Bypass is true when a transaction escape attempt was detected.
	Bypass bool `json:"bypass"`

	// Reasons lists every violation in human-readable form, for logs and
	// error responses.
	Reasons []string `json:"reasons,omitempty"`

	// Statement is a sanitized excerpt of the input, for forensics.
	Statement string `json:"statement,omitempty"`

	// Duration is how long the combined evaluation took.
	Duration time.Duration `json:"duration_ns"`
}

// Violation reports whether any analyzer flagged the statement.
func (d *Decision) Violation() bool {
	return len(d.Keywords) > 0 || len(d.Findings) > 0 || d.Bypass
}

// Evaluate runs all three analyzers over sql and combines their verdicts.
// The checks are independent; each sees the original input.
func (g *Guard) Evaluate(sql string) *Decision {
	start := time.Now()

	d := &Decision{
		Keywords:  g.DetectMutatingKeywords(sql),
		Findings:  g.CheckSQLInjectionRisk(sql),
		Bypass:    g.DetectTransactionBypassAttempt(sql),
		Statement: g.sanitizeStatement(sql),
	}

	if len(d.Keywords) > 0 {
		d.Reasons = append(d.Reasons, fmt.Sprintf("mutating keywords: %s", strings.Join(d.Keywords.Labels(), ", ")))
	}
	for _, f := range d.Findings {
		d.Reasons = append(d.Reasons, fmt.Sprintf("injection signature %s (%s)", f.Pattern, f.Category))
	}
	if d.Bypass {
		d.Reasons = append(d.Reasons, "transaction bypass attempt")
	}

	d.Allowed = !d.Violation()
	d.Duration = time.Since(start)
	return d
}

// Evaluate runs the default guard over sql.
func Evaluate(sql string) *Decision {
	return defaultGuard.Evaluate(sql)
}

// EvaluateWrite classifies a statement bound for the write path. Mutating
// keywords are expected there, so the keyword detector is skipped; only
// injection signatures and transaction escapes count as violations.
func (g *Guard) EvaluateWrite(sql string) *Decision {
	start := time.Now()

	d := &Decision{
		Findings:  g.CheckSQLInjectionRisk(sql),
		Bypass:    g.DetectTransactionBypassAttempt(sql),
		Statement: g.sanitizeStatement(sql),
	}

	for _, f := range d.Findings {
		d.Reasons = append(d.Reasons, fmt.Sprintf("injection signature %s (%s)", f.Pattern, f.Category))
	}
	if d.Bypass {
		d.Reasons = append(d.Reasons, "transaction bypass attempt")
	}

	d.Allowed = !d.Violation()
	d.Duration = time.Since(start)
	return d
}

// EvaluateWrite runs the default guard's write-path evaluation over sql.
func EvaluateWrite(sql string) *Decision {
	return defaultGuard.EvaluateWrite(sql)
}

// truncate bounds the analyzed text to the configured maximum.
func (g *Guard) truncate(sql string) string {
	if len(sql) > g.maxInputLen {
		return sql[:g.maxInputLen]
	}
	return sql
}

// snippet extracts a sanitized excerpt of the matched region.
func (g *Guard) snippet(text string, loc []int) string {
	start, end := loc[0], loc[1]
	if end-start > g.snippetLen {
		end = start + g.snippetLen
	}
	return sanitizeForLog(text[start:end])
}

// sanitizeStatement creates a safe excerpt of the input for logging.
func (g *Guard) sanitizeStatement(sql string) string {
	if len(sql) <= g.snippetLen {
		return sanitizeForLog(sql)
	}
	return sanitizeForLog(sql[:g.snippetLen]) + "..."
}

// Precompiled masking regexes for performance
var (
	passwordMaskRegex = regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"]?[^'"\s]+['"]?`)
	apiKeyMaskRegex   = regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key)\s*[=:]\s*['"]?[^'"\s]+['"]?`)
	tokenMaskRegex    = regexp.MustCompile(`(?i)(token|bearer)\s*[=:]\s*['"]?[^'"\s]+['"]?`)
)

// sanitizeForLog removes or masks sensitive patterns in the input.
func sanitizeForLog(input string) string {
	input = strings.ReplaceAll(input, "\n", " ")

	input = passwordMaskRegex.ReplaceAllString(input, "[REDACTED_PASSWORD]")
	input = apiKeyMaskRegex.ReplaceAllString(input, "[REDACTED_KEY]")
	input = tokenMaskRegex.ReplaceAllString(input, "[REDACTED_TOKEN]")

	return input
}

// TestOnlyPattern creates a pattern for testing purposes.
// This function should only be used in tests.
func TestOnlyPattern(name string, regex string, category RiskCategory) *Pattern {
	return &Pattern{
		Name:        name,
		Category:    category,
		Regex:       regexp.MustCompile(regex),
		Description: "Test pattern",
		Severity:    5,
	}
}
