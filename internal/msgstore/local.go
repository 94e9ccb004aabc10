package msgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const fileExt = ".eml"

// LocalFileStore stores each message as <id>.eml under a base directory.
type LocalFileStore struct {
	basePath string
}

// NewLocalFileStore creates the base directory if needed.
func NewLocalFileStore(basePath string) (*LocalFileStore, error) {
	if basePath == "" {
		return nil, errors.New("msgstore: local store requires a path")
	}
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("msgstore: create base directory: %w", err)
	}
	return &LocalFileStore{basePath: basePath}, nil
}

// Put writes to a temp file in the same directory and renames it into place,
// so readers never see a partial message.
func (s *LocalFileStore) Put(_ context.Context, messageID string, data []byte) error {
	name, err := fileName(messageID)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.basePath, ".tmp-*")
	if err != nil {
		return fmt.Errorf("msgstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("msgstore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("msgstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.basePath, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("msgstore: rename temp file: %w", err)
	}
	return nil
}

// Get returns ErrNotFound if the message does not exist.
func (s *LocalFileStore) Get(_ context.Context, messageID string) ([]byte, error) {
	name, err := fileName(messageID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgstore: read file: %w", err)
	}
	return data, nil
}

// Delete is a no-op for a missing message.
func (s *LocalFileStore) Delete(_ context.Context, messageID string) error {
	name, err := fileName(messageID)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.basePath, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("msgstore: remove file: %w", err)
	}
	return nil
}

// List ignores temp files and anything without the .eml extension.
func (s *LocalFileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("msgstore: read directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// fileName rejects ids that would escape the base directory.
func fileName(messageID string) (string, error) {
	if messageID == "" || strings.ContainsAny(messageID, `/\`) || strings.HasPrefix(messageID, ".") {
		return "", fmt.Errorf("msgstore: invalid message id %q", messageID)
	}
	return messageID + fileExt, nil
}
