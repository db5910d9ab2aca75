package sqlguard

import (
	"regexp"
	"strings"
)

// RiskCategory classifies the kind of injection signature a pattern detects.
type RiskCategory string

const (
	// RiskTautology represents always-true comparisons (OR 1=1).
	RiskTautology RiskCategory = "tautology"

	// RiskStackedQueries represents a second statement after a semicolon.
	RiskStackedQueries RiskCategory = "stacked_queries"

	// RiskUnionBased represents UNION SELECT data extraction.
	RiskUnionBased RiskCategory = "union_based"

	// RiskCommentTermination represents a comment cutting off the rest of a
	// statement right after injected content.
	RiskCommentTermination RiskCategory = "comment_termination"

	// RiskTimeBased represents time-delay probes (pg_sleep, SLEEP, BENCHMARK).
	RiskTimeBased RiskCategory = "time_based"
)

// Finding describes one injection signature matched in a statement. A
// statement can produce several findings; one is enough to reject it.
type Finding struct {
	// Pattern is the name of the signature that matched.
	Pattern string `json:"pattern"`

	// Category classifies the signature.
	Category RiskCategory `json:"category"`

	// Snippet is a sanitized excerpt of the matched region, for logging.
	Snippet string `json:"snippet,omitempty"`

	// Severity indicates the risk level (1-10).
	Severity int `json:"severity"`
}

// Pattern represents one injection signature.
type Pattern struct {
	// Name is a stable identifier for the signature.
	Name string

	// Category classifies the signature.
	Category RiskCategory

	// Regex is the compiled signature.
	Regex *regexp.Regexp

	// Description explains what the signature detects.
	Description string

	// Severity indicates the risk level (1-10).
	Severity int

	// MatchRaw matches against the raw input instead of the normalized text.
	// Comment-termination signatures need the comment markers that
	// normalization strips away.
	MatchRaw bool
}

// defaultInjectionPatterns returns the built-in injection signatures. Kept
// deliberately over-inclusive: a false positive blocks one query, a false
// negative mutates the database.
func defaultInjectionPatterns() []*Pattern {
	return []*Pattern{
		// Tautologies
		{
			Name:        "or_numeric_tautology",
			Category:    RiskTautology,
			Regex:       regexp.MustCompile(`(?i)\bOR\s+['"]?\d+['"]?\s*=\s*['"]?\d+['"]?`),
			Description: "Detects OR with a literal numeric comparison (OR 1=1)",
			Severity:    8,
		},
		{
			Name:        "or_string_tautology",
			Category:    RiskTautology,
			Regex:       regexp.MustCompile(`(?i)\bOR\s+['"][^'"]*['"]\s*=\s*['"][^'"]*['"]`),
			Description: "Detects OR comparing two string literals (OR 'a'='a')",
			Severity:    8,
		},

		// Stacked statements
		{
			Name:        "stacked_statement",
			Category:    RiskStackedQueries,
			Regex:       regexp.MustCompile(`;\s*\S`),
			Description: "Detects a semicolon followed by further statement content",
			Severity:    9,
		},

		// Set operations
		{
			Name:        "union_select",
			Category:    RiskUnionBased,
			Regex:       regexp.MustCompile(`(?i)\bUNION\s+(ALL\s+)?SELECT\b`),
			Description: "Detects UNION SELECT used to pull rows from unrelated tables",
			Severity:    9,
		},

		// Comment termination
		{
			Name:        "comment_termination",
			Category:    RiskCommentTermination,
			Regex:       regexp.MustCompile(`['";]\s*--`),
			Description: "Detects a line comment right after a quote or statement boundary",
			Severity:    8,
			MatchRaw:    true,
		},

		// Time-delay probes
		{
			Name:        "pg_sleep",
			Category:    RiskTimeBased,
			Regex:       regexp.MustCompile(`(?i)\bPG_SLEEP\s*\(`),
			Description: "Detects the PostgreSQL pg_sleep function",
			Severity:    9,
		},
		{
			Name:        "sleep_function",
			Category:    RiskTimeBased,
			Regex:       regexp.MustCompile(`(?i)\bSLEEP\s*\(\s*\d+\s*\)`),
			Description: "Detects the MySQL SLEEP function",
			Severity:    9,
		},
		{
			Name:        "benchmark_function",
			Category:    RiskTimeBased,
			Regex:       regexp.MustCompile(`(?i)\bBENCHMARK\s*\(\s*\d+\s*,`),
			Description: "Detects the MySQL BENCHMARK function",
			Severity:    9,
		},
		{
			Name:        "waitfor_delay",
			Category:    RiskTimeBased,
			Regex:       regexp.MustCompile(`(?i)\bWAITFOR\s+DELAY\s+['"][^'"]+['"]`),
			Description: "Detects SQL Server WAITFOR DELAY",
			Severity:    9,
		},
	}
}

// CheckSQLInjectionRisk scans sql for heuristic injection signatures and
// returns every match. An empty result means no signature fired; plain reads
// (SELECT, JOIN, CTE, aggregates) must come back empty.
func (g *Guard) CheckSQLInjectionRisk(sql string) []Finding {
	if sql == "" {
		return nil
	}

	raw := g.truncate(sql)
	normalized := Normalize(raw)

	var findings []Finding
	for _, p := range g.patterns {
		text := normalized
		if p.MatchRaw {
			text = raw
		}
		loc := p.Regex.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if p.Category == RiskStackedQueries && g.stacking == StackingAllowReads && g.batchIsReadOnly(normalized) {
			continue
		}
		findings = append(findings, Finding{
			Pattern:  p.Name,
			Category: p.Category,
			Snippet:  g.snippet(text, loc),
			Severity: p.Severity,
		})
	}
	return findings
}

// CheckSQLInjectionRisk runs the default guard's injection scan.
func CheckSQLInjectionRisk(sql string) []Finding {
	return defaultGuard.CheckSQLInjectionRisk(sql)
}

// batchIsReadOnly reports whether every semicolon-separated statement in the
// normalized batch is itself a clean read. Only consulted under the
// allow-reads stacking policy: any mutating keyword, transaction-control
// keyword, or other injection signature anywhere in the batch keeps the
// stacking finding alive.
func (g *Guard) batchIsReadOnly(normalized string) bool {
	if txnControlRegex.MatchString(normalized) {
		return false
	}
	for _, stmt := range strings.Split(normalized, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if len(g.DetectMutatingKeywords(stmt)) > 0 {
			return false
		}
		for _, p := range g.patterns {
			if p.Category == RiskStackedQueries {
				continue
			}
			if p.Regex.MatchString(stmt) {
				return false
			}
		}
	}
	return true
}
