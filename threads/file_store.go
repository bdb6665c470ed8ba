package threads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// FileStore keeps one JSON document per thread under a directory.
// Suitable for single-node deployments.
type FileStore struct {
	dir    string
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("threads directory not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create threads directory: %w", err)
	}

	return &FileStore{
		dir:    dir,
		logger: logger.With(zap.String("component", "thread_store"), zap.String("driver", "file")),
	}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the thread atomically: temp file then rename.
func (s *FileStore) Save(ctx context.Context, thread *Thread) error {
	if err := ValidateID(thread.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(thread, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode thread: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}

	target := s.path(thread.ID)
	tempPath := target + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tempPath, target); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return nil
}

// Get loads a thread by id.
func (s *FileStore) Get(ctx context.Context, id string) (*Thread, error) {
	if err := ValidateID(id); err != nil {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var thread Thread
	if err := json.Unmarshal(data, &thread); err != nil {
		return nil, fmt.Errorf("failed to decode thread %s: %w", id, err)
	}
	return &thread, nil
}

// List scans the directory. Unreadable or corrupt files are skipped and logged.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Summary{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("skip unreadable thread file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		var thread Thread
		if err := json.Unmarshal(data, &thread); err != nil {
			s.logger.Warn("skip corrupt thread file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		if thread.ID == "" {
			thread.ID = strings.TrimSuffix(entry.Name(), ".json")
		}
		out = append(out, thread.Summary())
	}

	sortSummaries(out)
	return out, nil
}

// Delete removes the thread file.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// Ping checks that the directory is still there.
func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

// Close marks the store closed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
