// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mia-platform/logrelay/internal/logentry"
)

// Queues keeps the pending and failed logs inside a Store.
// Every read-modify-write cycle runs under a single lock, so concurrent appends
// from the same process never overwrite each other. When the Store is an Updater
// the cycle is also atomic for the other processes sharing it.
type Queues struct {
	store       Store
	failedLimit int

	lock sync.Mutex
}

// NewQueues returns Queues backed by store. The failed log keeps at most
// failedLimit records, oldest first out; zero or a negative value disables the limit.
func NewQueues(store Store, failedLimit int) *Queues {
	return &Queues{
		store:       store,
		failedLimit: failedLimit,
	}
}

// Store returns the underlying Store.
func (q *Queues) Store() Store {
	return q.store
}

// AppendPending adds entry at the end of the pending log.
func (q *Queues) AppendPending(ctx context.Context, entry logentry.LogEntry) error {
	return updateList(ctx, q, PendingLogsKey, func(entries []logentry.LogEntry) []logentry.LogEntry {
		return append(entries, entry)
	})
}

// Pending returns the pending log in insertion order.
func (q *Queues) Pending(ctx context.Context) ([]logentry.LogEntry, error) {
	q.lock.Lock()
	defer q.lock.Unlock()

	return readList[logentry.LogEntry](ctx, q.store, PendingLogsKey)
}

// RemovePending drops from the pending log the entries whose ID is in ids and
// returns how many were removed. Entries appended after they were read are kept.
func (q *Queues) RemovePending(ctx context.Context, ids map[string]struct{}) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	removed := 0
	err := updateList(ctx, q, PendingLogsKey, func(entries []logentry.LogEntry) []logentry.LogEntry {
		removed = 0
		kept := make([]logentry.LogEntry, 0, len(entries))
		for _, entry := range entries {
			if _, ok := ids[entry.ID]; ok {
				removed++
				continue
			}
			kept = append(kept, entry)
		}
		return kept
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// AppendFailed adds record at the end of the failed log and returns how many of
// the oldest records were evicted to respect the retention limit.
func (q *Queues) AppendFailed(ctx context.Context, record logentry.FailedRecord) (int, error) {
	evicted := 0
	err := updateList(ctx, q, FailedLogsKey, func(records []logentry.FailedRecord) []logentry.FailedRecord {
		records, evicted = q.retain(append(records, record))
		return records
	})
	if err != nil {
		return 0, err
	}
	return evicted, nil
}

// Failed returns the failed log, oldest record first.
func (q *Queues) Failed(ctx context.Context) ([]logentry.FailedRecord, error) {
	q.lock.Lock()
	defer q.lock.Unlock()

	return readList[logentry.FailedRecord](ctx, q.store, FailedLogsKey)
}

// UpdateFailed rewrites the failed log with the result of update applied to the
// current content. Records appended while update runs are not lost, as update
// runs inside the same read-modify-write cycle. update may run more than once
// when another process changes the log concurrently.
func (q *Queues) UpdateFailed(ctx context.Context, update func([]logentry.FailedRecord) []logentry.FailedRecord) error {
	return updateList(ctx, q, FailedLogsKey, func(records []logentry.FailedRecord) []logentry.FailedRecord {
		records, _ = q.retain(update(records))
		return records
	})
}

func (q *Queues) retain(records []logentry.FailedRecord) ([]logentry.FailedRecord, int) {
	if q.failedLimit <= 0 || len(records) <= q.failedLimit {
		return records, 0
	}

	evicted := len(records) - q.failedLimit
	return records[evicted:], evicted
}

// updateList applies modify to the list stored under key. An empty result deletes the key.
func updateList[T any](ctx context.Context, q *Queues, key string, modify func([]T) []T) error {
	q.lock.Lock()
	defer q.lock.Unlock()

	updater, ok := q.store.(Updater)
	if !ok {
		list, err := readList[T](ctx, q.store, key)
		if err != nil {
			return err
		}

		list = modify(list)
		if len(list) == 0 {
			return q.store.Delete(ctx, key)
		}
		return writeList(ctx, q.store, key, list)
	}

	return updater.Update(ctx, key, func(current []byte) ([]byte, error) {
		var list []T
		if current != nil {
			if err := json.Unmarshal(current, &list); err != nil {
				return nil, fmt.Errorf("decoding %s: %w", key, err)
			}
		}

		list = modify(list)
		if len(list) == 0 {
			return nil, nil
		}

		data, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", key, err)
		}
		return data, nil
	})
}

// GetJSON decodes the value stored under key into target.
func GetJSON(ctx context.Context, store Store, key string, target any) error {
	data, err := store.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// SetJSON stores value under key as a JSON document.
func SetJSON(ctx context.Context, store Store, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return store.Set(ctx, key, data)
}

func readList[T any](ctx context.Context, store Store, key string) ([]T, error) {
	var list []T
	if err := GetJSON(ctx, store, key, &list); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return list, nil
}

func writeList[T any](ctx context.Context, store Store, key string, list []T) error {
	if list == nil {
		list = []T{}
	}
	return SetJSON(ctx, store, key, list)
}
