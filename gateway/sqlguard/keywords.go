package sqlguard

import (
	"regexp"
	"sort"
)

// Category classifies a mutating keyword by the kind of change it makes.
type Category string

const (
	// CategoryDDL covers schema changes (CREATE, ALTER, DROP, TRUNCATE).
	CategoryDDL Category = "DDL"

	// CategoryDML covers row data changes (INSERT, UPDATE, DELETE, MERGE).
	CategoryDML Category = "DML"

	// CategoryPermission covers privilege and account management
	// (GRANT, REVOKE, CREATE/DROP USER, CREATE/DROP ROLE).
	CategoryPermission Category = "PERMISSION"

	// CategorySystem covers server administration and server-side file I/O
	// (SET GLOBAL, FLUSH, LOAD DATA, INTO OUTFILE, COPY).
	CategorySystem Category = "SYSTEM"
)

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// KeywordSet is the set of keyword and category labels found in one
// statement. Both the literal keyword (e.g. "CREATE") and its category tag
// (e.g. "DDL") are members. A fresh set is built on every call; callers own
// the result.
type KeywordSet map[string]bool

// Has reports whether the set contains the given label.
func (s KeywordSet) Has(label string) bool {
	return s[label]
}

// Labels returns the members of the set in sorted order.
func (s KeywordSet) Labels() []string {
	labels := make([]string, 0, len(s))
	for label := range s {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Categories returns only the category tags present in the set, sorted.
func (s KeywordSet) Categories() []Category {
	var cats []Category
	for _, c := range []Category{CategoryDDL, CategoryDML, CategoryPermission, CategorySystem} {
		if s[c.String()] {
			cats = append(cats, c)
		}
	}
	return cats
}

// KeywordRule binds one keyword or phrase to the category tags it carries.
// The rule's regex matches the keyword as a whole word over normalized text,
// so a keyword embedded in an identifier (created_at, audit_delete_log) never
// matches.
type KeywordRule struct {
	// Keyword is the canonical label added to the result set on a match.
	Keyword string

	// Categories are the category labels added alongside the keyword.
	Categories []Category

	// Regex is the compiled whole-word matcher.
	Regex *regexp.Regexp
}

// defaultKeywordRules returns the built-in mutating keyword taxonomy. The
// taxonomy is data: adding a keyword is a new row here, not a new branch in
// the detector. Multi-word phrases match with any whitespace between the
// words. COPY alone is anchored to a statement start because "copy" is a
// common column name; every other keyword matches anywhere in the text,
// which over-detects by intent.
func defaultKeywordRules() []*KeywordRule {
	return []*KeywordRule{
		// Schema changes
		{Keyword: "CREATE", Categories: []Category{CategoryDDL}, Regex: regexp.MustCompile(`(?i)\bCREATE\b`)},
		{Keyword: "ALTER", Categories: []Category{CategoryDDL}, Regex: regexp.MustCompile(`(?i)\bALTER\b`)},
		{Keyword: "DROP", Categories: []Category{CategoryDDL}, Regex: regexp.MustCompile(`(?i)\bDROP\b`)},
		{Keyword: "TRUNCATE", Categories: []Category{CategoryDDL}, Regex: regexp.MustCompile(`(?i)\bTRUNCATE\b`)},

		// Row data changes
		{Keyword: "INSERT", Categories: []Category{CategoryDML}, Regex: regexp.MustCompile(`(?i)\bINSERT\b`)},
		{Keyword: "UPDATE", Categories: []Category{CategoryDML}, Regex: regexp.MustCompile(`(?i)\bUPDATE\b`)},
		{Keyword: "DELETE", Categories: []Category{CategoryDML}, Regex: regexp.MustCompile(`(?i)\bDELETE\b`)},
		{Keyword: "MERGE", Categories: []Category{CategoryDML}, Regex: regexp.MustCompile(`(?i)\bMERGE\b`)},

		// Privileges and accounts
		{Keyword: "GRANT", Categories: []Category{CategoryPermission}, Regex: regexp.MustCompile(`(?i)\bGRANT\b`)},
		{Keyword: "REVOKE", Categories: []Category{CategoryPermission}, Regex: regexp.MustCompile(`(?i)\bREVOKE\b`)},
		{Keyword: "CREATE USER", Categories: []Category{CategoryPermission}, Regex: regexp.MustCompile(`(?i)\bCREATE\s+USER\b`)},
		{Keyword: "DROP USER", Categories: []Category{CategoryPermission}, Regex: regexp.MustCompile(`(?i)\bDROP\s+USER\b`)},
		{Keyword: "CREATE ROLE", Categories: []Category{CategoryPermission}, Regex: regexp.MustCompile(`(?i)\bCREATE\s+ROLE\b`)},
		{Keyword: "DROP ROLE", Categories: []Category{CategoryPermission}, Regex: regexp.MustCompile(`(?i)\bDROP\s+ROLE\b`)},

		// Server administration and file I/O
		{Keyword: "SET GLOBAL", Categories: []Category{CategorySystem}, Regex: regexp.MustCompile(`(?i)\bSET\s+GLOBAL\b`)},
		{Keyword: "FLUSH", Categories: []Category{CategorySystem}, Regex: regexp.MustCompile(`(?i)\bFLUSH\b`)},
		{Keyword: "LOAD DATA", Categories: []Category{CategorySystem}, Regex: regexp.MustCompile(`(?i)\bLOAD\s+DATA\b`)},
		{Keyword: "INTO OUTFILE", Categories: []Category{CategorySystem}, Regex: regexp.MustCompile(`(?i)\bINTO\s+(OUT|DUMP)FILE\b`)},
		{Keyword: "COPY", Categories: []Category{CategorySystem}, Regex: regexp.MustCompile(`(?i)(?:\A|;)\s*COPY\s`)},
	}
}

// DetectMutatingKeywords reports every mutating keyword found in sql together
// with its category tags. An empty set means no known mutating operation is
// present; pure SELECT and WITH queries must stay empty.
func (g *Guard) DetectMutatingKeywords(sql string) KeywordSet {
	found := make(KeywordSet)
	if sql == "" {
		return found
	}

	normalized := Normalize(g.truncate(sql))
	for _, rule := range g.keywords {
		if rule.Regex.MatchString(normalized) {
			found[rule.Keyword] = true
			for _, c := range rule.Categories {
				found[c.String()] = true
			}
		}
	}
	return found
}

// DetectMutatingKeywords runs the default guard's keyword detection.
func DetectMutatingKeywords(sql string) KeywordSet {
	return defaultGuard.DetectMutatingKeywords(sql)
}
