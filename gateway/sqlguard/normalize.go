package sqlguard

import "regexp"

// Comment markers are removed before pattern matching so a comment can neither
// hide a keyword nor split one across a boundary. Every removed comment is
// replaced with a single space, never the empty string, so stripping cannot
// join two tokens into a new identifier.
var (
	blockCommentRegex = regexp.MustCompile(`/\*[\s\S]*?\*/`)
	lineCommentRegex  = regexp.MustCompile(`--[^\n]*`)
)

// Normalize prepares raw SQL text for keyword and signature matching.
// Block comments are stripped before line comments: a `--` inside `/* ... */`
// must not eat the block terminator. Case folding is left to the (?i) flag on
// the patterns themselves. String literals are intentionally not parsed;
// keywords inside literals over-detect rather than under-detect.
func Normalize(sql string) string {
	out := blockCommentRegex.ReplaceAllString(sql, " ")
	out = lineCommentRegex.ReplaceAllString(out, " ")
	return out
}
