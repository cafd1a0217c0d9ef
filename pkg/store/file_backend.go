package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/WuVi5054/mentor-ai/pkg/relay"
)

// ErrInvalidPathComponent is returned when a record id contains unsafe
// characters.
var ErrInvalidPathComponent = errors.New("invalid path component: contains path separator or traversal sequence")

func validatePathComponent(s string) error {
	if s == "" {
		return errors.New("path component cannot be empty")
	}
	if strings.ContainsAny(s, `/\`) || strings.Contains(s, "..") {
		return ErrInvalidPathComponent
	}
	return nil
}

// FileStore implements Store using one JSON file per record.
// Storage layout:
//
//	~/.mentor-ai/records/
//	  └── <record-id>.json
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
	closed  bool
}

// NewFileStore creates a file-based record store.
// If baseDir is empty, uses ~/.mentor-ai/records.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".mentor-ai", "records")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create records directory: %w", err)
	}

	return &FileStore{baseDir: baseDir}, nil
}

// Save persists a record envelope.
func (f *FileStore) Save(ctx context.Context, rec *relay.Record, delivered bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStoreClosed
	}
	if err := validatePathComponent(rec.ID); err != nil {
		return fmt.Errorf("invalid record id: %w", err)
	}

	env := Envelope{Record: rec, Delivered: delivered, UpdatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	path := filepath.Join(f.baseDir, rec.ID+".json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// Pending returns undelivered records, oldest first.
func (f *FileStore) Pending(ctx context.Context) ([]*relay.Record, error) {
	envs, err := f.load(func(e *Envelope) bool { return !e.Delivered })
	if err != nil {
		return nil, err
	}
	return records(envs), nil
}

// MarkDelivered flags a record as delivered.
func (f *FileStore) MarkDelivered(ctx context.Context, recordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStoreClosed
	}
	if err := validatePathComponent(recordID); err != nil {
		return fmt.Errorf("invalid record id: %w", err)
	}

	path := filepath.Join(f.baseDir, recordID+".json")
	data, err := os.ReadFile(path) // #nosec G304 - record id validated to prevent traversal
	if err != nil {
		if os.IsNotExist(err) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("read record: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("parse record: %w", err)
	}
	env.Delivered = true
	env.UpdatedAt = time.Now().UTC()

	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// History returns all records for a user, oldest first.
func (f *FileStore) History(ctx context.Context, userID string) ([]*relay.Record, error) {
	envs, err := f.load(func(e *Envelope) bool { return e.Record.UserID == userID })
	if err != nil {
		return nil, err
	}
	return records(envs), nil
}

// Close marks the store closed.
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FileStore) load(keep func(*Envelope) bool) ([]*Envelope, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrStoreClosed
	}

	entries, err := os.ReadDir(f.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read records directory: %w", err)
	}

	var envs []*Envelope
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.baseDir, de.Name())) // #nosec G304 - names come from ReadDir
		if err != nil {
			return nil, fmt.Errorf("read record %s: %w", de.Name(), err)
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("parse record %s: %w", de.Name(), err)
		}
		if keep(&env) {
			envs = append(envs, &env)
		}
	}

	sort.Slice(envs, func(i, j int) bool {
		return envs[i].Record.CapturedAt.Before(envs[j].Record.CapturedAt)
	})
	return envs, nil
}

func records(envs []*Envelope) []*relay.Record {
	out := make([]*relay.Record, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Record)
	}
	return out
}
