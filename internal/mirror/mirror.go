// Package mirror is a small persistent key-value store surviving process
// restarts. It is the last-resort fallback behind the in-memory cache:
// never authoritative, written best-effort, rebuilt from the store on any
// successful read. One versioned schema, keys are "<purpose>:<identity>".
package mirror

import (
	"os"
	"path/filepath"
	"sync"

	"neon_checkin_miniapp/pkg/logger"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const schemaVersion = 1

type file struct {
	Version int               `json:"version"`
	Entries map[string]string `json:"entries"`
}

type Store struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
}

// Open loads the mirror file if present. A missing, unreadable or
// version-mismatched file starts an empty mirror; the mirror is a
// resilience aid, so none of that is an error.
func Open(path string) *Store {
	s := &Store{
		path:    path,
		entries: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil || f.Version != schemaVersion {
		logger.Logger().Warn("discarding unreadable local mirror", zap.String("path", path))
		return s
	}
	if f.Entries != nil {
		s.entries = f.Entries
	}

	return s
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries[key]
	return v, ok
}

func (s *Store) Set(key, value string) {
	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()

	s.flush()
}

func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()

	s.flush()
}

// flush persists the current state. Failures are logged and swallowed:
// losing the mirror only costs a fallback, never correctness.
func (s *Store) flush() {
	s.mu.Lock()
	f := file{Version: schemaVersion, Entries: make(map[string]string, len(s.entries))}
	for k, v := range s.entries {
		f.Entries[k] = v
	}
	s.mu.Unlock()

	data, err := json.Marshal(f)
	if err != nil {
		logger.Logger().Warn("failed to encode local mirror", zap.Error(err))
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		logger.Logger().Warn("failed to create mirror directory", zap.Error(err))
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Logger().Warn("failed to write local mirror", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		logger.Logger().Warn("failed to replace local mirror", zap.Error(err))
	}
}
