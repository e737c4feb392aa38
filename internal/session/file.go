package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps all sessions in one JSON file, rewritten atomically on
// every change. It suits a single CLI user across invocations.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("session file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) load() (map[string]Session, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Session{}, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	sessions := map[string]Session{}
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	return sessions, nil
}

func (f *FileStore) save(sessions map[string]Session) error {
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write session temp file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}

func (f *FileStore) Get(_ context.Context, id string) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sessions, err := f.load()
	if err != nil {
		return Session{}, err
	}
	s, ok := sessions[id]
	if !ok {
		return Session{}, ErrNotConnected
	}
	return s, nil
}

func (f *FileStore) Set(_ context.Context, s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sessions, err := f.load()
	if err != nil {
		return err
	}
	sessions[s.ID] = s
	return f.save(sessions)
}

func (f *FileStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sessions, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := sessions[id]; !ok {
		return nil
	}
	delete(sessions, id)
	return f.save(sessions)
}

func (f *FileStore) Close() error { return nil }
