// Package store persists opaque JSON documents for UI surfaces. The backend
// never interprets document contents; callers get "data or no data" and all
// failures collapse to the latter.
package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/vterm/vterm/backend/internal/infrastructure/logging"
)

// Store reads and writes named JSON documents under a data directory.
type Store struct {
	dir    string
	logger *logging.Logger
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string, logger *logging.Logger) *Store {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("Failed to create data directory",
			zap.String("dir", dir), zap.Error(err))
	}
	return &Store{
		dir:    dir,
		logger: logger.Named("store"),
	}
}

// Load returns a document's raw JSON. A missing document, an unusable name
// and a corrupt file all report no data.
func (s *Store) Load(name string) ([]byte, bool) {
	path, ok := s.resolve(name)
	if !ok {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read document",
				zap.String("name", name), zap.Error(err))
		}
		return nil, false
	}
	if !sonic.Valid(data) {
		s.logger.Warn("Document is not valid JSON", zap.String("name", name))
		return nil, false
	}
	return data, true
}

// Save writes a document atomically (temp file + rename) and reports whether
// the write landed. Invalid JSON is rejected.
func (s *Store) Save(name string, doc []byte) bool {
	path, ok := s.resolve(name)
	if !ok {
		return false
	}
	if !sonic.Valid(doc) {
		s.logger.Warn("Refusing to save invalid JSON", zap.String("name", name))
		return false
	}

	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		s.logger.Warn("Failed to create temp file",
			zap.String("name", name), zap.Error(err))
		return false
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		s.logger.Warn("Failed to write document",
			zap.String("name", name), zap.Error(err))
		return false
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return false
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		s.logger.Warn("Failed to replace document",
			zap.String("name", name), zap.Error(err))
		return false
	}
	return true
}

// resolve maps a document name to its path, rejecting names that would
// escape the data directory or hide as dotfiles.
func (s *Store) resolve(name string) (string, bool) {
	if !validName(name) {
		s.logger.Warn("Rejected document name", zap.String("name", name))
		return "", false
	}
	return filepath.Join(s.dir, name), true
}

// validName accepts flat names of letters, digits, dot, dash and underscore,
// not starting with a dot.
func validName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
