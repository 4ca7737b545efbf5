package document

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// HistoryEntry is one line of the revision log.
type HistoryEntry struct {
	At       time.Time `json:"at"`
	Revision string    `json:"revision"`
	Reason   string    `json:"reason"`
	Bytes    int       `json:"bytes"`
}

// History is an append-only JSONL log of document writes.
type History struct {
	path string
	mu   sync.Mutex
}

// NewHistory logs to path.
func NewHistory(path string) *History {
	return &History{path: path}
}

// HistoryPath is the default log location for a document.
func HistoryPath(documentPath string) string {
	return documentPath + ".history.jsonl"
}

// Append adds e to the log.
func (h *History) Append(e HistoryEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(h.path), 0755); err != nil {
		return err
	}
	file, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write(append(data, '\n'))
	return err
}

// Recent returns up to limit entries, newest last. limit <= 0 means all.
func (h *History) Recent(limit int) ([]HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	file, err := os.Open(h.path)
	if errors.Is(err, os.ErrNotExist) {
		return []HistoryEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	entries := []HistoryEntry{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e HistoryEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}
