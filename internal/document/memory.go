package document

import (
	"context"
	"sync"
)

// Write is one accepted update recorded by MemoryStore.
type Write struct {
	Content string
	Reason  string
}

// MemoryStore keeps the document in memory. Failures can be scripted per
// write, which makes it the store of choice in tests.
type MemoryStore struct {
	mu        sync.Mutex
	content   string
	validator Validator
	failures  []error
	writes    []Write
}

// NewMemoryStore starts with content.
func NewMemoryStore(content string) *MemoryStore {
	return &MemoryStore{content: content}
}

// SetValidator runs v before every write.
func (s *MemoryStore) SetValidator(v Validator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validator = v
}

// FailWrites queues errors returned by the next writes, one per write.
// A nil entry lets that write through.
func (s *MemoryStore) FailWrites(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Set replaces the content as an outside editor would.
func (s *MemoryStore) Set(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = content
}

// Content is the current document.
func (s *MemoryStore) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

// Writes lists accepted updates in order.
func (s *MemoryStore) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Write, len(s.writes))
	copy(out, s.writes)
	return out
}

func (s *MemoryStore) Fetch(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return &memoryPage{store: s, content: s.content, revision: Revision(s.content)}, nil
}

func (s *MemoryStore) write(ctx context.Context, base, content, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		if err != nil {
			return err
		}
	}
	if Revision(s.content) != base {
		return ErrRevisionConflict
	}
	if s.validator != nil {
		if err := s.validator.Validate(content); err != nil {
			return err
		}
	}
	s.content = content
	s.writes = append(s.writes, Write{Content: content, Reason: reason})
	return nil
}

type memoryPage struct {
	store    *MemoryStore
	content  string
	revision string
}

func (p *memoryPage) Content() string  { return p.content }
func (p *memoryPage) Revision() string { return p.revision }

func (p *memoryPage) Update(ctx context.Context, content, reason string) error {
	if err := p.store.write(ctx, p.revision, content, reason); err != nil {
		return err
	}
	p.content = content
	p.revision = Revision(content)
	return nil
}
