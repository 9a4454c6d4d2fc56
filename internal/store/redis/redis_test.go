// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/logrelay/internal/store"
)

func TestNewInvalidURL(t *testing.T) {
	t.Parallel()

	s, err := New(t.Context(), "http://localhost:6379", "")
	var storeErr *store.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "redis", storeErr.Backend)
	assert.Nil(t, s)
}

func TestNewUnreachableServer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	// port 1 is never a redis server
	s, err := New(ctx, "redis://127.0.0.1:1/0", "")
	assert.ErrorContains(t, err, "failed to connect")
	assert.Nil(t, s)
}

func TestDefaultPrefix(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	s := NewWithClient(client, "")
	rs, ok := s.(*redisStore)
	require.True(t, ok)
	assert.Equal(t, DefaultPrefix, rs.prefix)

	s = NewWithClient(client, "custom:")
	rs, ok = s.(*redisStore)
	require.True(t, ok)
	assert.Equal(t, "custom:", rs.prefix)
	require.NoError(t, s.Close())
}

func TestUpdateUnreachableServer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	s := NewWithClient(client, "")
	defer s.Close()

	called := false
	err := s.(store.Updater).Update(ctx, store.PendingLogsKey, func([]byte) ([]byte, error) {
		called = true
		return nil, nil
	})
	var storeErr *store.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, store.PendingLogsKey, storeErr.Key)
	assert.False(t, called)
}
