// Package archive keeps exported evidence bundles in content-addressed
// storage, keyed by the SHA-256 of the bundle bytes.
package archive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/canonicalize"
)

// ErrNotFound is returned when no bundle has the requested hash.
var ErrNotFound = errors.New("archive: bundle not found")

// Store is content-addressed bundle storage.
type Store interface {
	// Put persists data and returns its "sha256:" content hash.
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, hash string) ([]byte, error)
	Exists(ctx context.Context, hash string) (bool, error)
	Delete(ctx context.Context, hash string) error
}

// parseHash validates a prefixed hash and returns its hex digest.
func parseHash(hash string) (string, error) {
	raw, ok := strings.CutPrefix(hash, canonicalize.HashPrefix)
	if !ok {
		return "", fmt.Errorf("invalid hash format: %s", hash)
	}
	if len(raw) != 64 {
		return "", fmt.Errorf("invalid hash length: %s", hash)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("invalid hash hex: %w", err)
	}
	return raw, nil
}

func objectKey(prefix, raw string) string {
	return prefix + raw + ".zip"
}

// FileStore keeps bundles in a local directory.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates the directory if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to ensure archive dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(raw string) string {
	return filepath.Join(s.baseDir, objectKey("", raw))
}

func (s *FileStore) Put(_ context.Context, data []byte) (string, error) {
	hash := canonicalize.HashBytes(data)
	raw, _ := parseHash(hash)

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(raw)
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	// Write to temp, then rename, so readers never see a partial bundle.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write bundle: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to commit bundle: %w", err)
	}
	return hash, nil
}

func (s *FileStore) Get(_ context.Context, hash string) ([]byte, error) {
	raw, err := parseHash(hash)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(raw))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
		}
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}
	return data, nil
}

func (s *FileStore) Exists(_ context.Context, hash string) (bool, error) {
	raw, err := parseHash(hash)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = os.Stat(s.path(raw))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat bundle: %w", err)
}

func (s *FileStore) Delete(_ context.Context, hash string) error {
	raw, err := parseHash(hash)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(raw)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete bundle: %w", err)
	}
	return nil
}
