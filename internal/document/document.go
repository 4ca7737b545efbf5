// Package document owns the shared configuration document: reading it,
// writing it through a validating, optimistic writer, keeping a revision
// log, and watching it for edits made by someone else.
package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrRevisionConflict is returned when the document changed between
	// Fetch and Update.
	ErrRevisionConflict = errors.New("document changed since it was fetched")

	// ErrSyntaxRejected matches every *SyntaxError.
	ErrSyntaxRejected = errors.New("document rejected by syntax check")
)

// Page is one fetched revision of the document.
type Page interface {
	Content() string
	Revision() string
	// Update replaces the document with content. On success the page
	// moves to the new revision, so a page can be updated more than once.
	Update(ctx context.Context, content, reason string) error
}

// Store fetches the current document.
type Store interface {
	Fetch(ctx context.Context) (Page, error)
}

// SyntaxError is the document owner refusing content.
type SyntaxError struct {
	Section int
	Reason  string
}

func (e *SyntaxError) Error() string {
	if e.Section > 0 {
		return fmt.Sprintf("document rejected: section %d: %s", e.Section, e.Reason)
	}
	return "document rejected: " + e.Reason
}

// Is makes errors.Is(err, ErrSyntaxRejected) work.
func (e *SyntaxError) Is(target error) bool {
	return target == ErrSyntaxRejected
}

// ExtractReason returns the owner's rejection message when err carries one.
func ExtractReason(err error) (string, bool) {
	var se *SyntaxError
	if errors.As(err, &se) && se.Reason != "" {
		return se.Reason, true
	}
	return "", false
}

// Revision identifies content.
func Revision(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:8])
}
