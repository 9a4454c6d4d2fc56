// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package store

import (
	"context"
	"errors"
)

const (
	// PendingLogsKey holds the entries awaiting their first delivery attempt.
	PendingLogsKey = "pendingLogs"
	// FailedLogsKey holds the failed delivery records.
	FailedLogsKey = "failedLogs"
	// TokenKey holds the last bearer token obtained from the evaluation server.
	TokenKey = "evaluationToken"
	// CredentialsKey holds the client credentials obtained at registration.
	CredentialsKey = "evaluationCredentials"
)

var (
	// ErrNotFound is returned by Get when the key has never been set or has been deleted.
	ErrNotFound = errors.New("key not found")
	// ErrConflict is returned by Update when concurrent writers kept changing the key.
	ErrConflict = errors.New("too many concurrent updates")
)

// Store is a durable map from string keys to opaque values.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// UpdateFunc receives the current value of a key, nil when it is missing, and
// returns the value to write. A nil result deletes the key.
type UpdateFunc func(current []byte) ([]byte, error)

// Updater is implemented by the stores able to apply an UpdateFunc atomically,
// so that processes sharing the same backend never overwrite each other.
type Updater interface {
	Update(ctx context.Context, key string, update UpdateFunc) error
}

// StoreError wraps the failures of a storage backend.
type StoreError struct {
	Backend string
	Key     string
	err     error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return e.Backend + " store: " + e.err.Error()
	}
	return e.Backend + " store: " + e.Key + ": " + e.err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.err
}

// Wrap returns err as a *StoreError for backend and key. nil and ErrNotFound are returned unchanged.
func Wrap(backend, key string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}

	return &StoreError{
		Backend: backend,
		Key:     key,
		err:     err,
	}
}
