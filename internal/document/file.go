package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aatumaykin/ruletoggle/internal/logger"
)

// FileStore keeps the document in a single file. A missing file is an empty
// document.
type FileStore struct {
	path      string
	validator Validator
	history   *History
	logger    *logger.Logger

	mu          sync.Mutex
	ownRevision string
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithValidator runs v before every write.
func WithValidator(v Validator) Option {
	return func(s *FileStore) { s.validator = v }
}

// WithHistory records every write in h.
func WithHistory(h *History) Option {
	return func(s *FileStore) { s.history = h }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *FileStore) { s.logger = l }
}

// NewFileStore creates a store for the document at path.
func NewFileStore(path string, opts ...Option) *FileStore {
	s := &FileStore{
		path:   filepath.Clean(path),
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path is the document file.
func (s *FileStore) Path() string { return s.path }

// Fetch reads the current document.
func (s *FileStore) Fetch(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := s.read()
	if err != nil {
		return nil, err
	}
	return &filePage{store: s, content: content, revision: Revision(content)}, nil
}

// IsOwnRevision reports whether revision is the last one this store wrote.
func (s *FileStore) IsOwnRevision(revision string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownRevision == revision
}

func (s *FileStore) read() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return string(data), nil
}

func (s *FileStore) write(ctx context.Context, base, content, reason string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return "", err
	}
	if Revision(current) != base {
		return "", ErrRevisionConflict
	}

	if s.validator != nil {
		if err := s.validator.Validate(content); err != nil {
			s.logger.Warn("document write rejected",
				logger.Field{Key: "reason", Value: reason},
				logger.Field{Key: "error", Value: err.Error()})
			return "", err
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return "", fmt.Errorf("failed to create document directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write document: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return "", fmt.Errorf("failed to replace document: %w", err)
	}

	revision := Revision(content)
	s.ownRevision = revision

	s.logger.Info("document updated",
		logger.Field{Key: "revision", Value: revision},
		logger.Field{Key: "reason", Value: reason})

	if s.history != nil {
		if err := s.history.Append(HistoryEntry{Revision: revision, Reason: reason, Bytes: len(content)}); err != nil {
			s.logger.Error("failed to append document history", err,
				logger.Field{Key: "revision", Value: revision})
		}
	}
	return revision, nil
}

type filePage struct {
	store    *FileStore
	content  string
	revision string
}

func (p *filePage) Content() string  { return p.content }
func (p *filePage) Revision() string { return p.revision }

func (p *filePage) Update(ctx context.Context, content, reason string) error {
	revision, err := p.store.write(ctx, p.revision, content, reason)
	if err != nil {
		return err
	}
	p.content = content
	p.revision = revision
	return nil
}
