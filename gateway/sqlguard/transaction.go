package sqlguard

import "regexp"

var (
	// txnControlRegex matches explicit transaction control. BEGIN alone
	// counts: PostgreSQL starts a transaction with a bare BEGIN.
	txnControlRegex = regexp.MustCompile(`(?i)\b(?:COMMIT|ROLLBACK|BEGIN|START\s+TRANSACTION)\b`)

	// stackedContentRegex matches a statement boundary with more content
	// after it. A trailing semicolon on its own does not match.
	stackedContentRegex = regexp.MustCompile(`;\s*\S`)
)

// DetectTransactionBypassAttempt reports whether sql tries to escape an
// enforced read-only transaction wrapper: an explicit transaction-control
// keyword (COMMIT, ROLLBACK, BEGIN, START TRANSACTION) combined with either
// a further statement after a semicolon or a mutating keyword after the
// control keyword. A bare COMMIT with nothing following it returns false;
// comments between the statements never suppress detection.
func (g *Guard) DetectTransactionBypassAttempt(sql string) bool {
	if sql == "" {
		return false
	}

	normalized := Normalize(g.truncate(sql))
	loc := txnControlRegex.FindStringIndex(normalized)
	if loc == nil {
		return false
	}

	if stackedContentRegex.MatchString(normalized) {
		return true
	}

	// No semicolon boundary: a mutating keyword after the control keyword
	// still signals an escape ("COMMIT CREATE TABLE ...").
	rest := normalized[loc[1]:]
	for _, rule := range g.keywords {
		if rule.Regex.MatchString(rest) {
			return true
		}
	}
	return false
}

// DetectTransactionBypassAttempt runs the default guard's bypass detection.
func DetectTransactionBypassAttempt(sql string) bool {
	return defaultGuard.DetectTransactionBypassAttempt(sql)
}
