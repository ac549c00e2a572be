package job

import "strings"

// Compare evaluates actual output against expected output. Both sides are
// normalized first: outer whitespace trimmed, CRLF line endings folded to LF.
// Callers must skip Compare entirely when the execution itself errored (the
// verdict is failed) or when no expected output was supplied (not_applicable).
func Compare(actual, expected string) Verdict {
	if normalize(actual) == normalize(expected) {
		return VerdictPassed
	}
	return VerdictFailed
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\r\n", "\n")
}
