package codec

import "strings"

// IndexLine returns the index of the first occurrence of line in s that
// starts at the beginning of a line and ends at the end of a line, or -1.
// line may span several lines. This keeps "rule foo" from matching inside
// "rule foobar".
func IndexLine(s, line string) int {
	if line == "" {
		return -1
	}
	offset := 0
	for offset <= len(s) {
		i := strings.Index(s[offset:], line)
		if i < 0 {
			return -1
		}
		i += offset
		end := i + len(line)
		if (i == 0 || s[i-1] == '\n') && (end == len(s) || s[end] == '\n' || s[end] == '\r') {
			return i
		}
		offset = i + 1
	}
	return -1
}

// CutLine is strings.Cut restricted to whole-line matches of sep.
func CutLine(s, sep string) (before, after string, found bool) {
	i := IndexLine(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

// ContainsLine reports whether line occurs in s as whole lines.
func ContainsLine(s, line string) bool {
	return IndexLine(s, line) >= 0
}
