// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package file implements a store.Store persisted as a single JSON document on disk.
// Every write replaces the document atomically while holding an exclusive lock
// file next to it, so several processes can share the same document.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mia-platform/logrelay/internal/store"
)

const (
	backendName = "file"

	dirPermissions  = 0o700
	filePermissions = 0o600

	lockSuffix        = ".lock"
	lockRetryInterval = 10 * time.Millisecond
	staleLockAge      = 30 * time.Second
)

var (
	_ store.Store   = &fileStore{}
	_ store.Updater = &fileStore{}
)

type fileStore struct {
	path string

	lock sync.Mutex
}

// New returns a store.Store persisted at path. The parent directory is created when missing.
func New(path string) (store.Store, error) {
	if path == "" {
		return nil, store.Wrap(backendName, "", errors.New("empty path"))
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, store.Wrap(backendName, "", err)
	}

	return &fileStore{path: path}, nil
}

// DefaultPath returns the store location inside the user home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".logrelay", "store.json"), nil
}

func (s *fileStore) Get(_ context.Context, key string) ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	values, err := s.load()
	if err != nil {
		return nil, store.Wrap(backendName, key, err)
	}

	value, ok := values[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return value, nil
}

func (s *fileStore) Set(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return store.Wrap(backendName, key, errors.New("value is not a JSON document"))
	}

	return s.Update(ctx, key, func([]byte) ([]byte, error) {
		return value, nil
	})
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	return s.Update(ctx, key, func([]byte) ([]byte, error) {
		return nil, nil
	})
}

// Update runs update holding both the process lock and the lock file.
func (s *fileStore) Update(ctx context.Context, key string, update store.UpdateFunc) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	release, err := s.acquire(ctx)
	if err != nil {
		return store.Wrap(backendName, key, err)
	}
	defer release()

	values, err := s.load()
	if err != nil {
		return store.Wrap(backendName, key, err)
	}

	var current []byte
	if value, ok := values[key]; ok {
		current = value
	}

	next, err := update(current)
	if err != nil {
		return err
	}

	if next == nil {
		if current == nil {
			return nil
		}
		delete(values, key)
		return store.Wrap(backendName, key, s.save(values))
	}

	if !json.Valid(next) {
		return store.Wrap(backendName, key, errors.New("value is not a JSON document"))
	}
	values[key] = json.RawMessage(next)
	return store.Wrap(backendName, key, s.save(values))
}

// acquire creates the lock file, waiting while another writer holds it. A lock
// file older than staleLockAge is left over by a crashed process and is removed.
func (s *fileStore) acquire(ctx context.Context) (func(), error) {
	lockPath := s.path + lockSuffix
	for {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePermissions)
		if err == nil {
			lockFile.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}

		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			os.Remove(lockPath)
			continue
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", lockPath, ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}
}

func (s *fileStore) Close() error {
	return nil
}

func (s *fileStore) load() (map[string]json.RawMessage, error) {
	values := make(map[string]json.RawMessage)

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return values, nil
	case err != nil:
		return nil, err
	case len(data) == 0:
		return values, nil
	}

	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("corrupted store file %s: %w", s.path, err)
	}
	return values, nil
}

// save replaces the store file atomically: a crash leaves either the old or the new content.
func (s *fileStore) save(values map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(filePermissions); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, s.path)
}
