// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/logrelay/internal/store"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s := New()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	value := []byte(`["a"]`)
	require.NoError(t, s.Set(ctx, "key", value))
	value[0] = '{'

	stored, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, `["a"]`, string(stored), "stored value is a copy")
	assert.Equal(t, 1, s.Keys())

	require.NoError(t, s.Delete(ctx, "key"))
	_, err = s.Get(ctx, "key")
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, s.Close())
}

func TestMemoryStoreFailure(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s := New()
	s.FailWith = assert.AnError

	var storeErr *store.StoreError
	_, err := s.Get(ctx, "key")
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "memory", storeErr.Backend)
	assert.ErrorIs(t, s.Set(ctx, "key", nil), assert.AnError)
	assert.ErrorIs(t, s.Delete(ctx, "key"), assert.AnError)
}

func TestMemoryStoreUpdate(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s := New()

	err := s.Update(ctx, "key", func(current []byte) ([]byte, error) {
		assert.Nil(t, current)
		return []byte(`["a"]`), nil
	})
	require.NoError(t, err)

	err = s.Update(ctx, "key", func(current []byte) ([]byte, error) {
		assert.Equal(t, `["a"]`, string(current))
		return nil, assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	stored, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, `["a"]`, string(stored), "a failed update leaves the value untouched")

	require.NoError(t, s.Update(ctx, "key", func([]byte) ([]byte, error) { return nil, nil }))
	_, err = s.Get(ctx, "key")
	assert.ErrorIs(t, err, store.ErrNotFound)

	s.FailWith = assert.AnError
	assert.ErrorIs(t, s.Update(ctx, "key", func([]byte) ([]byte, error) { return nil, nil }), assert.AnError)
}
