// Package rulesfile persists expectation rules as a JSON document on disk.
package rulesfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/couchcryptid/telemetry-arrival-report/internal/domain"
)

// Store reads and writes the rules file. It is safe for concurrent use.
type Store struct {
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewStore creates a Store for the file at path.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the location of the rules file.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the rules file is present.
func (s *Store) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.path)
	return err == nil
}

// Load returns the stored rules. A missing, unreadable or malformed file
// yields the default rules; Load only fails when ctx is done.
func (s *Store) Load(ctx context.Context) (domain.Rules, error) {
	if err := ctx.Err(); err != nil {
		return domain.Rules{}, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(s.path)
	s.mu.RUnlock()

	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("rules file unreadable, using defaults", "path", s.path, "error", err)
		}
		return domain.DefaultRules(), nil
	}

	// Decode numbers exactly so large counts survive a reload.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		s.logger.Warn("rules file malformed, using defaults", "path", s.path, "error", err)
		return domain.DefaultRules(), nil
	}
	return domain.NormalizeRules(raw), nil
}

// Save normalizes raw and writes it atomically, creating parent directories
// as needed. It returns the rules as written.
func (s *Store) Save(ctx context.Context, raw any) (domain.Rules, error) {
	if err := ctx.Err(); err != nil {
		return domain.Rules{}, err
	}

	rules := domain.NormalizeRules(raw)
	data, err := encode(rules)
	if err != nil {
		return domain.Rules{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.path, data); err != nil {
		return domain.Rules{}, fmt.Errorf("save rules: %w", err)
	}
	return rules, nil
}

// encode renders rules as two-space indented JSON with a trailing newline.
// Non-ASCII station names and keys are written as-is.
func encode(rules domain.Rules) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rules); err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	return buf.Bytes(), nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".rules-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
