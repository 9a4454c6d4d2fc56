// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package memory implements a store.Store kept in process memory.
// Nothing survives a restart; it backs tests and the ephemeral mode of the CLI.
package memory

import (
	"context"
	"sync"

	"github.com/mia-platform/logrelay/internal/store"
)

var (
	_ store.Store   = &Store{}
	_ store.Updater = &Store{}
)

// Store is an in-memory store.Store. FailWith, when set, makes every operation fail.
type Store struct {
	lock   sync.RWMutex
	values map[string][]byte

	FailWith error
}

func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.FailWith != nil {
		return nil, store.Wrap("memory", key, s.FailWith)
	}

	value, ok := s.values[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.FailWith != nil {
		return store.Wrap("memory", key, s.FailWith)
	}

	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.FailWith != nil {
		return store.Wrap("memory", key, s.FailWith)
	}

	delete(s.values, key)
	return nil
}

// Update applies update while holding the store lock, so every holder of the
// same Store sees it as a single step.
func (s *Store) Update(_ context.Context, key string, update store.UpdateFunc) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.FailWith != nil {
		return store.Wrap("memory", key, s.FailWith)
	}

	var current []byte
	if value, ok := s.values[key]; ok {
		current = append([]byte(nil), value...)
	}

	next, err := update(current)
	if err != nil {
		return err
	}

	if next == nil {
		delete(s.values, key)
		return nil
	}
	s.values[key] = append([]byte(nil), next...)
	return nil
}

func (s *Store) Close() error {
	return nil
}

// Keys returns the number of stored keys.
func (s *Store) Keys() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.values)
}
