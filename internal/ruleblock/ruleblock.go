// Package ruleblock edits managed rule blocks inside the shared document.
//
// Every function works on a document string the caller just fetched and
// returns a new string; nothing here performs I/O. When an operation is a
// no-op the input document is returned unchanged.
package ruleblock

import (
	"strings"

	"github.com/aatumaykin/ruletoggle/internal/codec"
)

// Separator joins top-level sections of the document.
const Separator = "\n---\n"

// TrimSeparators strips stray dashes and newlines from both ends of s.
func TrimSeparators(s string) string {
	return strings.Trim(s, "-\n")
}

// Insert appends block to the end of document.
func Insert(document, block string) string {
	content := strings.TrimSpace(TrimSeparators(document))
	block = strings.TrimSpace(block)
	if content == "" {
		return block
	}
	return content + Separator + block
}

// Contains reports whether the start border of m is present.
func Contains(document string, m codec.Markers) bool {
	return codec.ContainsLine(document, m.Start)
}

// Remove deletes the block delimited by m. found is false when the start
// border is absent. A start border without an end border returns
// codec.ErrBlockMalformed and leaves the document untouched.
func Remove(document string, m codec.Markers) (string, bool, error) {
	content := TrimSeparators(document)
	before, rest, found := codec.CutLine(content, m.Start)
	if !found {
		return document, false, nil
	}
	_, after, found := codec.CutLine(rest, m.End)
	if !found {
		return document, false, codec.ErrBlockMalformed
	}
	joined := TrimSeparators(before) + Separator + TrimSeparators(after)
	return TrimSeparators(joined), true, nil
}

// Toggle rewrites the body of the block delimited by m into the target
// state. The block is located by its start border plus info header, so a
// block rendered for a different schedule is not touched.
func Toggle(document string, m codec.Markers, target codec.State) (string, bool, error) {
	before, rest, found := codec.CutLine(document, m.Opening())
	if !found {
		return document, false, nil
	}
	body, after, found := codec.CutLine(rest, m.End)
	if !found {
		return document, false, codec.ErrBlockMalformed
	}

	parts := make([]string, 0, 6)
	if prefix := strings.TrimSpace(before); prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, m.Start, m.Header, codec.ApplyState(strings.TrimSpace(body), target), m.End)
	if suffix := strings.TrimSpace(after); suffix != "" {
		parts = append(parts, suffix)
	}
	return strings.Join(parts, "\n"), true, nil
}
