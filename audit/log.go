// Package audit persists every model exchange of a session as a JSON array
// file. The file is rewritten in full after each append, so a crash loses at
// most the exchange being written.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/martinemde/fileagent/unifiedllm"
)

// Kind tells which call of a prompt an entry belongs to.
type Kind string

const (
	KindInitial      Kind = "initial"
	KindContinuation Kind = "continuation"
)

// Entry is one persisted request/response pair. Entries are never modified
// after they are recorded.
type Entry struct {
	Timestamp time.Time                  `json:"timestamp"`
	Kind      Kind                       `json:"kind"`
	Request   unifiedllm.RequestSnapshot `json:"request"`
	Response  *unifiedllm.Response       `json:"response"`
}

// Log is an append-only list of entries mirrored to a file.
type Log struct {
	path    string
	entries []Entry
	mu      sync.Mutex
}

// New returns an empty log that writes to path. Nothing touches the disk
// until the first Record.
func New(path string) *Log {
	return &Log{path: path}
}

// DefaultPath returns the log file used for target: "<stem>_agent_log.json"
// in the target's directory.
func DefaultPath(target string) string {
	base := filepath.Base(target)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(filepath.Dir(target), stem+"_agent_log.json")
}

// Path returns the file the log writes to.
func (l *Log) Path() string { return l.path }

// Record appends an entry and rewrites the file. The entry stays in memory
// even when the write fails, so the next successful write includes it.
func (l *Log) Record(kind Kind, req unifiedllm.RequestSnapshot, resp *unifiedllm.Response) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, Entry{
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Request:   req,
		Response:  resp,
	})
	return l.flush()
}

// Entries returns a copy of the recorded entries in chronological order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) flush() error {
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode audit log: %w", err)
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write audit log %s: %w", l.path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write audit log %s: %w", l.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write audit log %s: %w", l.path, err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write audit log %s: %w", l.path, err)
	}
	return nil
}

// Load reads a log file written by Record.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode audit log %s: %w", path, err)
	}
	return entries, nil
}
