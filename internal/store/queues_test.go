// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package store_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/logrelay/internal/logentry"
	"github.com/mia-platform/logrelay/internal/store"
	"github.com/mia-platform/logrelay/internal/store/memory"
)

var testTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testEntry(message string) logentry.LogEntry {
	return logentry.New(logentry.StackFrontend, logentry.LevelInfo, "home", message, testTime)
}

func TestPendingQueue(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	backend := memory.New()
	queues := store.NewQueues(backend, 0)

	pending, err := queues.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	first, second := testEntry("first"), testEntry("second")
	require.NoError(t, queues.AppendPending(ctx, first))
	require.NoError(t, queues.AppendPending(ctx, second))

	pending, err = queues.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []logentry.LogEntry{first, second}, pending)

	raw, err := backend.Get(ctx, store.PendingLogsKey)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"message":"first"`)

	removed, err := queues.RemovePending(ctx, map[string]struct{}{first.ID: {}, second.ID: {}})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	pending, err = queues.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	_, err = backend.Get(ctx, store.PendingLogsKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// plainStore hides the Update method of the wrapped store.
type plainStore struct {
	store.Store
}

func TestRemovePending(t *testing.T) {
	t.Parallel()

	testCases := map[string]func() store.Store{
		"atomic store": func() store.Store { return memory.New() },
		"plain store":  func() store.Store { return plainStore{Store: memory.New()} },
	}

	for name, newStore := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			backend := newStore()
			flushing := store.NewQueues(backend, 0)
			appending := store.NewQueues(backend, 0)

			walked, late := testEntry("walked"), testEntry("late")
			require.NoError(t, appending.AppendPending(ctx, walked))

			pending, err := flushing.Pending(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 1)

			require.NoError(t, appending.AppendPending(ctx, late))

			removed, err := flushing.RemovePending(ctx, map[string]struct{}{pending[0].ID: {}})
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			pending, err = flushing.Pending(ctx)
			require.NoError(t, err)
			assert.Equal(t, []logentry.LogEntry{late}, pending)

			removed, err = flushing.RemovePending(ctx, nil)
			require.NoError(t, err)
			assert.Zero(t, removed)
		})
	}
}

func TestConcurrentAppendsFromSeveralQueues(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	backend := memory.New()

	var wg sync.WaitGroup
	for i := range 20 {
		queues := store.NewQueues(backend, 0)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, queues.AppendPending(ctx, testEntry(fmt.Sprintf("m%d", i))))
			_, err := queues.AppendFailed(ctx, logentry.NewFailedRecord(testEntry(fmt.Sprintf("f%d", i)), assert.AnError, testTime))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	queues := store.NewQueues(backend, 0)
	pending, err := queues.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 20)
	failed, err := queues.Failed(ctx)
	require.NoError(t, err)
	assert.Len(t, failed, 20)
}

func TestFailedQueueRetention(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		limit            int
		appends          int
		expectedMessages []string
		expectedEvicted  int
	}{
		"unbounded": {
			limit:            0,
			appends:          4,
			expectedMessages: []string{"m0", "m1", "m2", "m3"},
		},
		"under the limit": {
			limit:            5,
			appends:          3,
			expectedMessages: []string{"m0", "m1", "m2"},
		},
		"oldest records are evicted": {
			limit:            2,
			appends:          4,
			expectedMessages: []string{"m2", "m3"},
			expectedEvicted:  2,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			queues := store.NewQueues(memory.New(), tc.limit)

			evicted := 0
			for i := range tc.appends {
				record := logentry.NewFailedRecord(testEntry(fmt.Sprintf("m%d", i)), assert.AnError, testTime)
				count, err := queues.AppendFailed(ctx, record)
				require.NoError(t, err)
				evicted += count
			}

			failed, err := queues.Failed(ctx)
			require.NoError(t, err)
			messages := make([]string, 0, len(failed))
			for _, record := range failed {
				messages = append(messages, record.LogEntry.Message)
			}
			assert.Equal(t, tc.expectedMessages, messages)
			assert.Equal(t, tc.expectedEvicted, evicted)
		})
	}
}

func TestUpdateFailed(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	backend := memory.New()
	queues := store.NewQueues(backend, 0)

	for _, message := range []string{"keep", "drop"} {
		_, err := queues.AppendFailed(ctx, logentry.NewFailedRecord(testEntry(message), assert.AnError, testTime))
		require.NoError(t, err)
	}

	err := queues.UpdateFailed(ctx, func(records []logentry.FailedRecord) []logentry.FailedRecord {
		return records[:1]
	})
	require.NoError(t, err)

	failed, err := queues.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "keep", failed[0].LogEntry.Message)

	err = queues.UpdateFailed(ctx, func([]logentry.FailedRecord) []logentry.FailedRecord { return nil })
	require.NoError(t, err)
	_, err = backend.Get(ctx, store.FailedLogsKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentAppends(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	queues := store.NewQueues(memory.New(), 0)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, queues.AppendPending(ctx, testEntry(fmt.Sprintf("m%d", i))))
		}()
	}
	wg.Wait()

	pending, err := queues.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 20)
}

func TestStorageErrors(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	backend := memory.New()
	queues := store.NewQueues(backend, 0)

	require.NoError(t, backend.Set(ctx, store.PendingLogsKey, []byte("not json")))
	_, err := queues.Pending(ctx)
	assert.ErrorContains(t, err, "decoding pendingLogs")

	assert.ErrorContains(t, queues.AppendPending(ctx, testEntry("x")), "decoding pendingLogs")

	backend.FailWith = assert.AnError
	assert.ErrorIs(t, queues.AppendPending(ctx, testEntry("x")), assert.AnError)
	_, err = queues.AppendFailed(ctx, logentry.NewFailedRecord(testEntry("x"), assert.AnError, testTime))
	assert.ErrorIs(t, err, assert.AnError)
}
